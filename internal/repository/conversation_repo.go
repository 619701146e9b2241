package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository handles database operations for sales conversations
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// UpsertSnapshot stores the latest engine snapshot for a contact, creating
// the row on first write.
func (r *ConversationRepository) UpsertSnapshot(ctx context.Context, contactID, snapshot, spinStage string, turn, progress int, ready bool) error {
	if contactID == "" {
		return fmt.Errorf("contact ID cannot be empty")
	}

	now := time.Now()
	row := &domain.SalesConversation{
		ID:                 uuid.New().String(),
		ContactID:          contactID,
		Snapshot:           snapshot,
		Turn:               turn,
		SpinStage:          spinStage,
		Progress:           progress,
		ReadyForScheduling: ready,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "contact_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"snapshot", "turn", "spin_stage", "progress", "ready_for_scheduling", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert conversation snapshot: %w", err)
	}
	return nil
}

// GetByContactID retrieves the conversation row for a contact, nil when the
// contact has no history yet.
func (r *ConversationRepository) GetByContactID(ctx context.Context, contactID string) (*domain.SalesConversation, error) {
	var conversation domain.SalesConversation
	if err := r.db.WithContext(ctx).Where("contact_id = ?", contactID).First(&conversation).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

// FindReadyForScheduling lists conversations flagged ready within a window.
func (r *ConversationRepository) FindReadyForScheduling(ctx context.Context, since time.Time) ([]*domain.SalesConversation, error) {
	var conversations []*domain.SalesConversation
	err := r.db.WithContext(ctx).
		Where("ready_for_scheduling = ? AND updated_at >= ?", true, since).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find ready conversations: %w", err)
	}
	return conversations, nil
}

// Delete removes a conversation row. The engine never calls this; retention
// is the operator's decision.
func (r *ConversationRepository) Delete(ctx context.Context, contactID string) error {
	if err := r.db.WithContext(ctx).Where("contact_id = ?", contactID).Delete(&domain.SalesConversation{}).Error; err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// MessageRepository handles database operations for transcript messages
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateBatch persists transcript entries for one turn
func (r *MessageRepository) CreateBatch(ctx context.Context, messages []*domain.SalesMessage) error {
	if len(messages) == 0 {
		return nil
	}

	now := time.Now()
	for _, msg := range messages {
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
	}

	if err := r.db.WithContext(ctx).CreateInBatches(messages, 100).Error; err != nil {
		return fmt.Errorf("failed to create messages: %w", err)
	}
	return nil
}

// GetByContactID retrieves the transcript for a contact in turn order
func (r *MessageRepository) GetByContactID(ctx context.Context, contactID string, limit int) ([]*domain.SalesMessage, error) {
	query := r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("turn ASC, created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []*domain.SalesMessage
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}
