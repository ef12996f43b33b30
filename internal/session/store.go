package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"go-advisor/internal/dialogue"
)

const keyPrefix = "conversation:"

var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is one user's live dialogue state.
type Conversation struct {
	ID        string                     `json:"id"`
	UserID    string                     `json:"user_id"`
	State     dialogue.ConversationState `json:"state"`
	Turns     int                        `json:"turns"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

type Store interface {
	Create(ctx context.Context, userID string, state dialogue.ConversationState) (Conversation, error)
	Load(ctx context.Context, id string) (Conversation, error)
	Save(ctx context.Context, conv Conversation) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps each conversation as a JSON value with a sliding TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func key(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, userID string, state dialogue.ConversationState) (Conversation, error) {
	now := s.now().UTC()
	conv := Conversation{
		ID:        ulid.Make().String(),
		UserID:    userID,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(ctx, conv); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (Conversation, error) {
	raw, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation %s: %w", id, err)
	}
	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv, nil
}

// Save writes conv back and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, conv Conversation) error {
	conv.UpdatedAt = s.now().UTC()
	return s.write(ctx, conv)
}

func (s *RedisStore) write(ctx context.Context, conv Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	if err := s.rdb.Set(ctx, key(conv.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ActiveCount returns the number of live conversations.
func (s *RedisStore) ActiveCount(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		for _, k := range keys {
			if strings.TrimPrefix(k, keyPrefix) != "" {
				count++
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return count, nil
}
