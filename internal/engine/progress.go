package engine

import (
	"math"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
)

// funnelPhases maps each SPIN stage to its funnel label.
var funnelPhases = map[domain.SPINStage]string{
	domain.StageSituation:   "discovery",
	domain.StageProblem:     "diagnosis",
	domain.StageImplication: "impact",
	domain.StageNeedPayoff:  "solution",
	domain.StageClosing:     "closing",
}

// Progress combines SPIN completion and BANT completion into one view of how
// far the qualification has come.
type Progress struct {
	SpinPercent        int      `json:"spinProgress"`
	BantPercent        int      `json:"bantScore"`
	OverallPercent     int      `json:"percentComplete"`
	Phase              string   `json:"phase"`
	ReadyForScheduling bool     `json:"readyForScheduling"`
	SlotsCollected     []string `json:"slotsCollected"`
	SlotsMissing       []string `json:"slotsMissing"`
}

const (
	spinWeight = 0.6
	bantWeight = 0.4
	// Overall percentage at which a conversation is scheduling-ready even
	// before reaching closing.
	schedulingThreshold = 85
)

// ComputeProgress scores the conversation. SPIN contributes 60%, BANT 40%.
func ComputeProgress(machine *StageMachine, ledger *Ledger) Progress {
	spinPercent := spinPercentOf(machine)
	score := ledger.Score()

	overall := int(math.Round(spinWeight*float64(spinPercent) + bantWeight*float64(score.Percent)))

	ready := machine.Current == domain.StageClosing ||
		overall >= schedulingThreshold ||
		(ledger.Get(FieldTimingUrgencia) == "alta" && ledger.IsSet(FieldProblemaIdentificado))

	return Progress{
		SpinPercent:        spinPercent,
		BantPercent:        score.Percent,
		OverallPercent:     overall,
		Phase:              funnelPhases[machine.Current],
		ReadyForScheduling: ready,
		SlotsCollected:     score.Collected,
		SlotsMissing:       score.Missing,
	}
}

// spinPercentOf scores the stage machine: full credit for completed stages
// plus partial credit for questions asked within the current stage.
func spinPercentOf(machine *StageMachine) int {
	totalStages := len(domain.StageOrder)
	stageIdx := domain.StageIndex(machine.Current)
	if stageIdx < 0 {
		stageIdx = 0
	}

	percent := 100 * float64(stageIdx) / float64(totalStages)

	if questions := QuestionsInStage(machine.Current); questions > 0 {
		asked := machine.QuestionsAskedInStage(machine.Current)
		if asked > questions {
			asked = questions
		}
		percent += float64(asked) / float64(questions) * (100 / float64(totalStages))
	}

	if percent > 100 {
		percent = 100
	}
	return int(math.Round(percent))
}
