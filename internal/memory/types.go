package memory

import (
	"errors"
	"time"
)

// MemoryType categorizes a stored memory.
type MemoryType string

const (
	TypeConversation MemoryType = "conversation"
	TypeFact         MemoryType = "fact"
	TypePreference   MemoryType = "preference"
	TypeGoal         MemoryType = "goal"
	TypeLearning     MemoryType = "learning"
)

func (t MemoryType) Valid() bool {
	switch t {
	case TypeConversation, TypeFact, TypePreference, TypeGoal, TypeLearning:
		return true
	}
	return false
}

var (
	ErrNotFound      = errors.New("memory not found")
	ErrInvalidType   = errors.New("invalid memory type")
	ErrEmptyContent  = errors.New("memory content is empty")
	ErrMissingUserID = errors.New("memory user id is required")
)

// Item is one importance-scored memory belonging to a user.
type Item struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	OrgID         string         `json:"org_id,omitempty"`
	Type          MemoryType     `json:"type"`
	Content       string         `json:"content"`
	Context       map[string]any `json:"context,omitempty"`
	Importance    float64        `json:"importance"`
	CreatedAt     time.Time      `json:"created_at"`
	LastAccessed  time.Time      `json:"last_accessed"`
	AccessCount   int            `json:"access_count"`
	Tags          []string       `json:"tags"`
	Relationships []string       `json:"relationships"`
}

// RetrievalQuery selects memories for one user. Zero Limit means the
// service default; empty MemoryTypes means every type. A non-empty OrgID
// keeps only that org's memories.
type RetrievalQuery struct {
	UserID        string       `json:"user_id"`
	OrgID         string       `json:"org_id,omitempty"`
	Query         string       `json:"query"`
	Limit         int          `json:"limit"`
	MemoryTypes   []MemoryType `json:"memory_types,omitempty"`
	MinImportance float64      `json:"min_importance,omitempty"`
}

// Fact is a ranked hit from the fact store.
type Fact struct {
	ID           string         `json:"id"`
	Value        string         `json:"value"`
	Importance   float64        `json:"importance"`
	LastAccessed time.Time      `json:"last_accessed"`
	AccessCount  int            `json:"access_count"`
	Metadata     map[string]any `json:"metadata"`
	Score        float64        `json:"score"`
}

// FactQuery scopes a fact store search.
type FactQuery struct {
	OrgID         string
	UserID        string
	Limit         int
	MinImportance float64
}
