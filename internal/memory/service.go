package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRetrievalLimit applies when a query does not set Limit.
const DefaultRetrievalLimit = 5

var ErrNoResponder = errors.New("memory service has no contextual responder")

// Service stores and retrieves importance-scored memories with a per-user
// cache in front of the record store and an optional fact store.
type Service struct {
	store     RecordStore
	facts     FactStore
	responder ContextualResponder
	inspector func([]Fact)
	cache     *Cache
	cacheTTL  time.Duration
	limit     int
	ctxFloor  float64
	log       *zap.Logger
	now       func() time.Time
	rebuilds  singleflight.Group
}

type ServiceOption func(*Service)

func WithFactStore(f FactStore) ServiceOption {
	return func(s *Service) { s.facts = f }
}

func WithResponder(r ContextualResponder) ServiceOption {
	return func(s *Service) { s.responder = r }
}

// WithInspector registers a callback fired with every non-empty fact store
// result. Panics inside it are logged and swallowed.
func WithInspector(fn func([]Fact)) ServiceOption {
	return func(s *Service) { s.inspector = fn }
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.cacheTTL = ttl }
}

func WithDefaultLimit(n int) ServiceOption {
	return func(s *Service) { s.limit = n }
}

// WithContextMinImportance drops memories below min from prompt context.
func WithContextMinImportance(min float64) ServiceOption {
	return func(s *Service) { s.ctxFloor = min }
}

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l.Named("memory")
		}
	}
}

// WithClock replaces time.Now for timestamps and cache ages.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store RecordStore, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		limit: DefaultRetrievalLimit,
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limit <= 0 {
		s.limit = DefaultRetrievalLimit
	}
	s.cache = NewCache(s.cacheTTL)
	s.cache.now = s.now
	return s
}

// StoreMemory scores, links and persists a new memory and returns its id.
// An "org_id" string in extra is recorded as the item's OrgID. Write
// failures are logged and returned; fact indexing failures are only logged.
func (s *Service) StoreMemory(ctx context.Context, userID string, t MemoryType, content string, extra map[string]any, tags []string) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}

	gen := s.cache.Generation(userID)
	existing, selectErr := s.store.Select(ctx, Filter{UserID: userID})
	if selectErr != nil {
		s.log.Warn("could not load existing memories for linking", zap.String("user_id", userID), zap.Error(selectErr))
	}

	now := s.now().UTC()
	item := Item{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         t,
		Content:      content,
		Context:      copyContext(extra),
		Importance:   ScoreImportance(t, content, extra),
		CreatedAt:    now,
		LastAccessed: now,
		Tags:         append([]string{}, tags...),
	}
	if org, ok := extra["org_id"].(string); ok {
		item.OrgID = org
	}
	item.Relationships = Relate(content, existing, item.ID)

	saved, err := s.store.InsertOne(ctx, item)
	if err != nil {
		s.log.Error("failed to store memory", zap.String("user_id", userID), zap.String("type", string(t)), zap.Error(err))
		return "", fmt.Errorf("store memory: %w", err)
	}

	if indexer, ok := s.facts.(FactIndexer); ok {
		if err := indexer.IndexMemory(ctx, saved); err != nil {
			s.log.Warn("failed to index memory", zap.String("memory_id", saved.ID), zap.Error(err))
		}
	}

	// rebuilds already in flight read the store before this insert
	s.rebuilds.Forget(userID)
	if selectErr != nil || !s.cache.PutIfGeneration(userID, gen, rankItems(append(existing, saved))) {
		s.cache.Invalidate(userID)
	}
	s.log.Debug("memory stored",
		zap.String("user_id", userID),
		zap.String("memory_id", saved.ID),
		zap.Float64("importance", saved.Importance),
		zap.Int("relationships", len(saved.Relationships)))
	return saved.ID, nil
}

// RetrieveMemories serves from a fresh cache entry when it can satisfy the
// limit, then tries the fact store, then ranks a full scan of the record
// store. Store failures degrade to an empty result.
func (s *Service) RetrieveMemories(ctx context.Context, q RetrievalQuery) ([]Item, error) {
	if q.UserID == "" {
		return nil, ErrMissingUserID
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.limit
	}

	if cached, ok := s.cache.Get(q.UserID); ok {
		if hits := filterItems(cached, q); len(hits) >= limit {
			return hits[:limit], nil
		}
	}

	if items := s.retrieveFacts(ctx, q, limit); len(items) > 0 {
		return truncate(items, limit), nil
	}

	v, err, _ := s.rebuilds.Do(q.UserID, func() (any, error) {
		gen := s.cache.Generation(q.UserID)
		all, err := s.store.Select(ctx, Filter{UserID: q.UserID})
		if err != nil {
			return nil, err
		}
		ranked := rankItems(all)
		if !s.cache.PutIfGeneration(q.UserID, gen, ranked) {
			s.log.Debug("discarded stale memory rebuild", zap.String("user_id", q.UserID))
		}
		return ranked, nil
	})
	if err != nil {
		s.log.Warn("full scan retrieval failed", zap.String("user_id", q.UserID), zap.Error(err))
		return []Item{}, nil
	}
	return truncate(filterItems(v.([]Item), q), limit), nil
}

func (s *Service) retrieveFacts(ctx context.Context, q RetrievalQuery, limit int) []Item {
	if s.facts == nil {
		return nil
	}
	facts, err := s.facts.RetrieveRelevantFacts(ctx, q.Query, FactQuery{
		OrgID:         q.OrgID,
		UserID:        q.UserID,
		Limit:         limit,
		MinImportance: q.MinImportance,
	})
	if err != nil {
		s.log.Warn("fact store retrieval failed, falling back to full scan", zap.String("user_id", q.UserID), zap.Error(err))
		return nil
	}
	if len(facts) == 0 {
		return nil
	}
	s.inspect(facts)

	items := make([]Item, 0, len(facts))
	for _, f := range facts {
		items = append(items, factToItem(q, f))
	}
	return filterItems(items, q)
}

func (s *Service) inspect(facts []Fact) {
	if s.inspector == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("facts inspector panicked", zap.Any("panic", r))
		}
	}()
	s.inspector(facts)
}

// UpdateMemoryAccess records one access of a memory and grows its
// importance. The user's cache entry is dropped afterwards and the item is
// re-indexed in the fact store; indexing failures are only logged.
func (s *Service) UpdateMemoryAccess(ctx context.Context, memoryID, userID string) (Item, error) {
	if userID == "" {
		return Item{}, ErrMissingUserID
	}
	found, err := s.store.Select(ctx, Filter{UserID: userID, ID: memoryID})
	if err != nil {
		return Item{}, fmt.Errorf("load memory %s: %w", memoryID, err)
	}
	if len(found) == 0 {
		return Item{}, ErrNotFound
	}

	cur := found[0]
	count := cur.AccessCount + 1
	updated, err := s.store.UpdateOne(ctx, memoryID, Patch{
		AccessCount:  count,
		LastAccessed: s.now().UTC(),
		Importance:   GrowImportance(cur.Importance, count),
	})
	if err != nil {
		s.log.Error("failed to update memory access", zap.String("memory_id", memoryID), zap.Error(err))
		return Item{}, fmt.Errorf("update memory %s: %w", memoryID, err)
	}
	s.cache.Invalidate(userID)
	if indexer, ok := s.facts.(FactIndexer); ok {
		if err := indexer.IndexMemory(ctx, updated); err != nil {
			s.log.Warn("failed to reindex memory", zap.String("memory_id", memoryID), zap.Error(err))
		}
	}
	return updated, nil
}

// GenerateContextualResponse answers query with the responder and, when
// the user has relevant memories, puts a memory block ahead of the answer.
func (s *Service) GenerateContextualResponse(ctx context.Context, userID, query string, extra map[string]any) (string, error) {
	if s.responder == nil {
		return "", ErrNoResponder
	}
	memories, err := s.RetrieveMemories(ctx, RetrievalQuery{UserID: userID, Query: query})
	if err != nil {
		return "", err
	}
	answer, err := s.responder.Respond(ctx, userID, query, extra)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return answer, nil
	}
	return FormatMemoryBlock(memories) + "\n\n" + answer, nil
}

// ContextFor returns the user's relevant memories formatted for a prompt,
// or "" when there are none.
func (s *Service) ContextFor(ctx context.Context, userID, query string) (string, error) {
	memories, err := s.RetrieveMemories(ctx, RetrievalQuery{UserID: userID, Query: query, MinImportance: s.ctxFloor})
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "", nil
	}
	return FormatMemoryBlock(memories), nil
}

// ClearCache drops one user's cache entry, or every entry when userID is
// empty.
func (s *Service) ClearCache(userID string) {
	if userID == "" {
		s.cache.Clear()
		return
	}
	s.cache.Invalidate(userID)
}

func FormatMemoryBlock(items []Item) string {
	var b strings.Builder
	b.WriteString("Relevant memories:")
	for _, it := range items {
		fmt.Fprintf(&b, "\n- [%s] %s", it.Type, it.Content)
	}
	return b.String()
}

// rankItems orders by importance, most recently accessed first on ties.
func rankItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	return out
}

func filterItems(items []Item, q RetrievalQuery) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Importance < q.MinImportance {
			continue
		}
		if q.OrgID != "" && it.OrgID != q.OrgID {
			continue
		}
		if len(q.MemoryTypes) > 0 && !containsType(q.MemoryTypes, it.Type) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func containsType(types []MemoryType, t MemoryType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func truncate(items []Item, limit int) []Item {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func factToItem(q RetrievalQuery, f Fact) Item {
	item := Item{
		ID:            f.ID,
		UserID:        q.UserID,
		OrgID:         q.OrgID,
		Type:          TypeFact,
		Content:       f.Value,
		Context:       copyContext(f.Metadata),
		Importance:    clampImportance(f.Importance),
		LastAccessed:  f.LastAccessed,
		AccessCount:   f.AccessCount,
		Tags:          []string{},
		Relationships: []string{},
	}
	if t, ok := f.Metadata["type"].(string); ok && MemoryType(t).Valid() {
		item.Type = MemoryType(t)
	}
	if org, ok := f.Metadata["org_id"].(string); ok && org != "" {
		item.OrgID = org
	}
	if tags, ok := f.Metadata["tags"].([]string); ok {
		item.Tags = append(item.Tags, tags...)
	}
	return item
}

func copyContext(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
