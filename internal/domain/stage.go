package domain

// SPINStage is one of the five ordered discovery phases. The order is total:
// a conversation only advances forward along it, or regresses to an earlier
// stage on an explicit resistance signal.
type SPINStage string

const (
	StageSituation   SPINStage = "situation"
	StageProblem     SPINStage = "problem"
	StageImplication SPINStage = "implication"
	StageNeedPayoff  SPINStage = "needPayoff"
	StageClosing     SPINStage = "closing"
)

// StageOrder lists the stages in discovery order.
var StageOrder = []SPINStage{
	StageSituation,
	StageProblem,
	StageImplication,
	StageNeedPayoff,
	StageClosing,
}

// StageIndex returns the position of the stage in the discovery order, or -1
// for an unknown stage.
func StageIndex(stage SPINStage) int {
	for i, s := range StageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// NextStage returns the stage after the given one. Closing is terminal and
// returns itself.
func NextStage(stage SPINStage) SPINStage {
	idx := StageIndex(stage)
	if idx < 0 || idx >= len(StageOrder)-1 {
		return StageClosing
	}
	return StageOrder[idx+1]
}

// IsValidStage reports whether the string names one of the five stages.
func IsValidStage(stage SPINStage) bool {
	return StageIndex(stage) >= 0
}
