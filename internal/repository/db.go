package repository

import (
	"context"

	"gorm.io/gorm"
)

// RepositoryManager combines all repositories
type RepositoryManager interface {
	Conversations() *ConversationRepository
	Messages() *MessageRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM
type GormRepositoryManager struct {
	db               *gorm.DB
	conversationRepo *ConversationRepository
	messageRepo      *MessageRepository
}

// NewGormRepositoryManager creates a new GORM repository manager
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:               db,
		conversationRepo: NewConversationRepository(db),
		messageRepo:      NewMessageRepository(db),
	}
}

// Conversations returns the conversation repository
func (m *GormRepositoryManager) Conversations() *ConversationRepository {
	return m.conversationRepo
}

// Messages returns the message repository
func (m *GormRepositoryManager) Messages() *MessageRepository {
	return m.messageRepo
}

// Ping checks the database connection
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
