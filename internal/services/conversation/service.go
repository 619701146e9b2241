package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ClareAI/astra-sales-engine/internal/cache"
	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/ClareAI/astra-sales-engine/internal/engine"
	"github.com/ClareAI/astra-sales-engine/internal/repository"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"github.com/ClareAI/astra-sales-engine/pkg/redis"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

const (
	// InvalidationChannel broadcasts snapshot updates so other pods drop
	// their in-memory copy and rehydrate on the next turn.
	InvalidationChannel = "astra:sales:snapshot:invalidate"

	hotSnapshotTTL = 24 * time.Hour
	lockStripes    = 64
)

type invalidationMessage struct {
	ContactID string `json:"contactId"`
	PodID     string `json:"podId"`
}

// Service orchestrates turn processing around the engine: it enforces
// per-contact serialization, keeps a bounded in-memory state cache, and
// writes snapshots through to Redis and Postgres after every turn.
type Service struct {
	engine   *engine.Engine
	repos    repository.RepositoryManager
	redisSvc redis.RedisServiceInterface
	podID    string

	states *cache.Cache[string, *engine.ConversationState]
	locks  [lockStripes]sync.Mutex
}

// NewService wires the conversation service. repos and redisSvc may be nil
// (tests, local runs); persistence is then skipped.
func NewService(eng *engine.Engine, repos repository.RepositoryManager, redisSvc redis.RedisServiceInterface, podID string, maxContacts int, stateTTL time.Duration) *Service {
	if maxContacts <= 0 {
		maxContacts = 5000
	}
	s := &Service{
		engine:   eng,
		repos:    repos,
		redisSvc: redisSvc,
		podID:    podID,
		states:   cache.New[string, *engine.ConversationState](maxContacts, stateTTL),
	}
	s.subscribeInvalidation()
	return s
}

// ProcessMessage runs one turn for a contact. Turns for the same contact are
// serialized by lock striping; different contacts proceed in parallel.
func (s *Service) ProcessMessage(ctx context.Context, contactID, text string) (*engine.Response, error) {
	if contactID == "" {
		return nil, fmt.Errorf("contact ID cannot be empty")
	}

	lock := s.lockFor(contactID)
	lock.Lock()
	defer lock.Unlock()

	state := s.loadState(ctx, contactID)
	resp := s.engine.ProcessMessage(ctx, state, text)
	s.states.Set(contactID, state)
	s.persist(ctx, state, resp, text)

	return resp, nil
}

// Progress returns the current qualification progress for a contact without
// running a turn.
func (s *Service) Progress(ctx context.Context, contactID string) (engine.Progress, error) {
	if contactID == "" {
		return engine.Progress{}, fmt.Errorf("contact ID cannot be empty")
	}

	lock := s.lockFor(contactID)
	lock.Lock()
	defer lock.Unlock()

	state := s.loadState(ctx, contactID)
	return engine.ComputeProgress(state.Spin, state.Bant), nil
}

// Snapshot returns a deep copy of the contact's serialized state, so callers
// can inspect it without aliasing the cached state.
func (s *Service) Snapshot(ctx context.Context, contactID string) (*engine.Snapshot, error) {
	lock := s.lockFor(contactID)
	lock.Lock()
	defer lock.Unlock()

	state := s.loadState(ctx, contactID)
	snap := state.Serialize()

	var out engine.Snapshot
	if err := copier.CopyWithOption(&out, snap, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy snapshot: %w", err)
	}
	return &out, nil
}

// OverrideArchetype pins a persona for a contact (locked), or clears the
// lock when unlock is requested. Accepts legacy persona names.
func (s *Service) OverrideArchetype(ctx context.Context, contactID, name string, unlock bool) (*engine.DetectionResult, error) {
	lock := s.lockFor(contactID)
	lock.Lock()
	defer lock.Unlock()

	state := s.loadState(ctx, contactID)

	if unlock {
		state.Archetype.Unlock()
	} else {
		archetype, ok := engine.CanonicalArchetype(name)
		if !ok {
			return nil, fmt.Errorf("unknown archetype: %s", name)
		}
		state.Archetype.SetManual(archetype)
	}

	s.states.Set(contactID, state)
	s.persist(ctx, state, nil, "")

	result := engine.DetectionResult{
		Archetype:  state.Archetype.Detected,
		Confidence: state.Archetype.Confidence,
		Signals:    state.Archetype.Signals,
	}
	return &result, nil
}

// loadState resolves a contact's state: memory cache, then the Redis hot
// copy, then Postgres, then a fresh state.
func (s *Service) loadState(ctx context.Context, contactID string) *engine.ConversationState {
	if state, ok := s.states.Get(contactID); ok {
		return state
	}

	if snap := s.loadSnapshotFromRedis(ctx, contactID); snap != nil {
		return engine.Restore(snap)
	}
	if snap := s.loadSnapshotFromDB(ctx, contactID); snap != nil {
		return engine.Restore(snap)
	}
	return engine.NewConversationState(contactID)
}

func (s *Service) loadSnapshotFromRedis(ctx context.Context, contactID string) *engine.Snapshot {
	if s.redisSvc == nil {
		return nil
	}
	key := s.redisSvc.GenerateKey(redis.CONVERSATION_SNAPSHOT, contactID)
	raw, err := s.redisSvc.GetValue(ctx, key)
	if err != nil {
		if err != redis.ErrKeyNotExist {
			logger.Base().Warn("redis snapshot read failed",
				zap.String("contact_id", contactID), zap.Error(err))
		}
		return nil
	}
	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		logger.Base().Warn("redis snapshot was not valid json",
			zap.String("contact_id", contactID), zap.Error(err))
		return nil
	}
	return &snap
}

func (s *Service) loadSnapshotFromDB(ctx context.Context, contactID string) *engine.Snapshot {
	if s.repos == nil {
		return nil
	}
	row, err := s.repos.Conversations().GetByContactID(ctx, contactID)
	if err != nil {
		logger.Base().Warn("conversation row read failed",
			zap.String("contact_id", contactID), zap.Error(err))
		return nil
	}
	if row == nil {
		return nil
	}
	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(row.Snapshot), &snap); err != nil {
		logger.Base().Warn("stored snapshot was not valid json",
			zap.String("contact_id", contactID), zap.Error(err))
		return nil
	}
	return &snap
}

// persist writes the snapshot through to Postgres and Redis and broadcasts
// the invalidation. Persistence failures are logged, never surfaced: the
// turn already completed.
func (s *Service) persist(ctx context.Context, state *engine.ConversationState, resp *engine.Response, inbound string) {
	snap := state.Serialize()
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Base().Error("snapshot marshal failed",
			zap.String("contact_id", state.ContactID), zap.Error(err))
		return
	}

	if s.repos != nil {
		progress := 0
		ready := false
		if resp != nil {
			progress = resp.Progress.OverallPercent
			ready = resp.ReadyForScheduling
		}
		if err := s.repos.Conversations().UpsertSnapshot(ctx, state.ContactID, string(data),
			string(state.Spin.Current), state.TurnCount, progress, ready); err != nil {
			logger.Base().Error("snapshot upsert failed",
				zap.String("contact_id", state.ContactID), zap.Error(err))
		}
		s.persistTranscript(ctx, state, resp, inbound)
	}

	if s.redisSvc != nil {
		key := s.redisSvc.GenerateKey(redis.CONVERSATION_SNAPSHOT, state.ContactID)
		if err := s.redisSvc.SetValue(ctx, key, string(data), hotSnapshotTTL); err != nil {
			logger.Base().Warn("redis snapshot write failed",
				zap.String("contact_id", state.ContactID), zap.Error(err))
		}
		if err := s.redisSvc.Publish(ctx, InvalidationChannel, invalidationMessage{
			ContactID: state.ContactID,
			PodID:     s.podID,
		}); err != nil {
			logger.Base().Warn("invalidation publish failed",
				zap.String("contact_id", state.ContactID), zap.Error(err))
		}
	}
}

func (s *Service) persistTranscript(ctx context.Context, state *engine.ConversationState, resp *engine.Response, inbound string) {
	var messages []*domain.SalesMessage
	if inbound != "" {
		messages = append(messages, &domain.SalesMessage{
			ContactID: state.ContactID,
			Turn:      state.TurnCount,
			Role:      domain.MessageRoleUser,
			Content:   inbound,
		})
	}
	if resp != nil && resp.Message != "" {
		messages = append(messages, &domain.SalesMessage{
			ContactID: state.ContactID,
			Turn:      state.TurnCount,
			Role:      domain.MessageRoleAgent,
			Content:   resp.Message,
		})
	}
	if err := s.repos.Messages().CreateBatch(ctx, messages); err != nil {
		logger.Base().Error("transcript write failed",
			zap.String("contact_id", state.ContactID), zap.Error(err))
	}
}

func (s *Service) subscribeInvalidation() {
	if s.redisSvc == nil {
		return
	}
	err := s.redisSvc.Subscribe(context.Background(), InvalidationChannel, func(payload string) {
		var msg invalidationMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Base().Error("invalidation message was not valid json", zap.Error(err))
			return
		}
		if msg.PodID == s.podID {
			return
		}
		s.states.Delete(msg.ContactID)
	})
	if err != nil {
		logger.Base().Warn("invalidation subscribe failed", zap.Error(err))
	}
}

func (s *Service) lockFor(contactID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(contactID))
	return &s.locks[h.Sum32()%lockStripes]
}
