package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go-advisor/internal/goal"
)

// ConversationRecord is the snapshot kept after a conversation ends.
type ConversationRecord struct {
	ID            string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID        string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	State         datatypes.JSON `json:"state"`
	Turns         int            `gorm:"not null;default:0" json:"turns"`
	GoalsComplete int            `gorm:"not null;default:0" json:"goals_complete"`
	GoalsTotal    int            `gorm:"not null;default:0" json:"goals_total"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       time.Time      `json:"ended_at"`
}

// TableName specifies the table name for GORM
func (ConversationRecord) TableName() string {
	return "advisor_conversations"
}

type Archive struct {
	db *gorm.DB
}

func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

func (a *Archive) Migrate() error {
	return a.db.AutoMigrate(&ConversationRecord{})
}

// Save snapshots conv. Saving the same conversation twice overwrites.
func (a *Archive) Save(ctx context.Context, conv Conversation, endedAt time.Time) (ConversationRecord, error) {
	state, err := json.Marshal(conv.State)
	if err != nil {
		return ConversationRecord{}, fmt.Errorf("encode state: %w", err)
	}
	rec := ConversationRecord{
		ID:            conv.ID,
		UserID:        conv.UserID,
		State:         datatypes.JSON(state),
		Turns:         conv.Turns,
		GoalsComplete: goal.CountComplete(conv.State.Goals),
		GoalsTotal:    len(conv.State.Goals),
		StartedAt:     conv.CreatedAt,
		EndedAt:       endedAt.UTC(),
	}
	if err := a.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return ConversationRecord{}, fmt.Errorf("archive conversation %s: %w", conv.ID, err)
	}
	return rec, nil
}

// ListByUser returns a user's archived conversations, newest first.
func (a *Archive) ListByUser(ctx context.Context, userID string) ([]ConversationRecord, error) {
	var recs []ConversationRecord
	err := a.db.WithContext(ctx).Where("user_id = ?", userID).Order("ended_at desc").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list archived conversations: %w", err)
	}
	return recs, nil
}
