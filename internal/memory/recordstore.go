package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Filter selects records. UserID is required; ID narrows to one record.
type Filter struct {
	UserID string
	ID     string
}

// Patch is the access bookkeeping written by UpdateOne.
type Patch struct {
	AccessCount  int
	LastAccessed time.Time
	Importance   float64
}

// RecordStore is the backing store for memory items.
type RecordStore interface {
	Select(ctx context.Context, f Filter) ([]Item, error)
	InsertOne(ctx context.Context, item Item) (Item, error)
	UpdateOne(ctx context.Context, id string, patch Patch) (Item, error)
}

// MemoryRecord is the persisted form of an Item.
type MemoryRecord struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	OrgID         string         `gorm:"type:varchar(64);index" json:"org_id"`
	Type          string         `gorm:"type:varchar(20);not null" json:"type"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	Context       datatypes.JSON `json:"context"`
	Importance    float64        `gorm:"not null" json:"importance"`
	LastAccessed  time.Time      `gorm:"not null" json:"last_accessed"`
	AccessCount   int            `gorm:"not null;default:0" json:"access_count"`
	Tags          datatypes.JSON `json:"tags"`
	Relationships datatypes.JSON `json:"relationships"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (MemoryRecord) TableName() string {
	return "advisor_memories"
}

// GormRecordStore keeps memories in postgres (or sqlite) through gorm.
type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

// Migrate creates or updates the memory table.
func (s *GormRecordStore) Migrate() error {
	return s.db.AutoMigrate(&MemoryRecord{})
}

func (s *GormRecordStore) Select(ctx context.Context, f Filter) ([]Item, error) {
	if f.UserID == "" {
		return nil, ErrMissingUserID
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", f.UserID)
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	var recs []MemoryRecord
	if err := q.Order("created_at asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("select memories: %w", err)
	}
	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		item, err := r.toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *GormRecordStore) InsertOne(ctx context.Context, item Item) (Item, error) {
	rec, err := recordFromItem(item)
	if err != nil {
		return Item{}, err
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Item{}, fmt.Errorf("insert memory: %w", err)
	}
	return rec.toItem()
}

func (s *GormRecordStore) UpdateOne(ctx context.Context, id string, patch Patch) (Item, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&MemoryRecord{}).Where("id = ?", id).Updates(map[string]any{
		"access_count":  patch.AccessCount,
		"last_accessed": patch.LastAccessed,
		"importance":    patch.Importance,
	})
	if res.Error != nil {
		return Item{}, fmt.Errorf("update memory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Item{}, ErrNotFound
	}
	var rec MemoryRecord
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("reload memory: %w", err)
	}
	return rec.toItem()
}

func recordFromItem(item Item) (MemoryRecord, error) {
	ctxJSON, err := marshalJSON(item.Context, "{}")
	if err != nil {
		return MemoryRecord{}, fmt.Errorf("encode context: %w", err)
	}
	tagsJSON, err := marshalJSON(item.Tags, "[]")
	if err != nil {
		return MemoryRecord{}, fmt.Errorf("encode tags: %w", err)
	}
	relJSON, err := marshalJSON(item.Relationships, "[]")
	if err != nil {
		return MemoryRecord{}, fmt.Errorf("encode relationships: %w", err)
	}
	return MemoryRecord{
		ID:            item.ID,
		UserID:        item.UserID,
		OrgID:         item.OrgID,
		Type:          string(item.Type),
		Content:       item.Content,
		Context:       ctxJSON,
		Importance:    item.Importance,
		LastAccessed:  item.LastAccessed,
		AccessCount:   item.AccessCount,
		Tags:          tagsJSON,
		Relationships: relJSON,
		CreatedAt:     item.CreatedAt,
	}, nil
}

func (r MemoryRecord) toItem() (Item, error) {
	item := Item{
		ID:            r.ID,
		UserID:        r.UserID,
		OrgID:         r.OrgID,
		Type:          MemoryType(r.Type),
		Content:       r.Content,
		Context:       map[string]any{},
		Importance:    r.Importance,
		CreatedAt:     r.CreatedAt,
		LastAccessed:  r.LastAccessed,
		AccessCount:   r.AccessCount,
		Tags:          []string{},
		Relationships: []string{},
	}
	if err := unmarshalJSON(r.Context, &item.Context); err != nil {
		return Item{}, fmt.Errorf("decode context of %s: %w", r.ID, err)
	}
	if err := unmarshalJSON(r.Tags, &item.Tags); err != nil {
		return Item{}, fmt.Errorf("decode tags of %s: %w", r.ID, err)
	}
	if err := unmarshalJSON(r.Relationships, &item.Relationships); err != nil {
		return Item{}, fmt.Errorf("decode relationships of %s: %w", r.ID, err)
	}
	return item, nil
}

func marshalJSON(v any, empty string) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		raw = []byte(empty)
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON(raw datatypes.JSON, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
