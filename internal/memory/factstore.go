package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// FactStore answers relevance-ranked searches over a user's facts.
type FactStore interface {
	RetrieveRelevantFacts(ctx context.Context, query string, q FactQuery) ([]Fact, error)
}

// FactIndexer receives each newly stored memory so the fact store can
// search it later.
type FactIndexer interface {
	IndexMemory(ctx context.Context, item Item) error
}

// TextEmbedder turns text into a vector.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QdrantFactStore is a FactStore and FactIndexer backed by a qdrant
// collection, one point per memory.
type QdrantFactStore struct {
	client     *qdrant.Client
	collection string
	vectorSize uint64
	embedder   TextEmbedder
	log        *zap.Logger
}

type QdrantOptions struct {
	URL        string
	Collection string
	APIKey     string
	VectorSize int
}

// NewQdrantFactStore connects over gRPC and makes sure the collection
// and its payload indexes exist.
func NewQdrantFactStore(ctx context.Context, opts QdrantOptions, embedder TextEmbedder, log *zap.Logger) (*QdrantFactStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   qdrantHost(opts.URL),
		Port:   6334,
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	size := opts.VectorSize
	if size <= 0 {
		size = 384
	}
	s := &QdrantFactStore{
		client:     client,
		collection: opts.Collection,
		vectorSize: uint64(size),
		embedder:   embedder,
		log:        log.Named("facts"),
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return s, nil
}

func (s *QdrantFactStore) Close() error {
	return s.client.Close()
}

// qdrantHost strips scheme and port; the gRPC port is always 6334.
func qdrantHost(raw string) string {
	host := strings.TrimPrefix(raw, "http://")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimSuffix(host, "/")
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func (s *QdrantFactStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{"user_id", qdrant.FieldType_FieldTypeKeyword},
		{"org_id", qdrant.FieldType_FieldTypeKeyword},
		{"type", qdrant.FieldType_FieldTypeKeyword},
		{"importance", qdrant.FieldType_FieldTypeFloat},
	}
	wait := true
	for _, idx := range indexes {
		fieldType := idx.typ
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      idx.field,
			FieldType:      &fieldType,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("failed to create index for %s: %w", idx.field, err)
		}
	}
	return nil
}

// IndexMemory upserts the memory as a point keyed by its id.
func (s *QdrantFactStore) IndexMemory(ctx context.Context, item Item) error {
	vec, err := s.embedder.Embed(ctx, item.Content)
	if err != nil {
		return fmt.Errorf("embed memory %s: %w", item.ID, err)
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(item.ID),
			Vectors: qdrant.NewVectors(vec...),
			Payload: itemPayload(item),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert memory %s: %w", item.ID, err)
	}
	return nil
}

func (s *QdrantFactStore) RetrieveRelevantFacts(ctx context.Context, query string, q FactQuery) ([]Fact, error) {
	if q.UserID == "" {
		return nil, ErrMissingUserID
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	limit := uint64(q.Limit)
	if limit == 0 {
		limit = 5
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         factFilter(q),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	facts := make([]Fact, 0, len(points))
	for _, p := range points {
		facts = append(facts, pointToFact(p.GetPayload(), p.GetScore()))
	}
	s.log.Debug("facts retrieved", zap.String("user_id", q.UserID), zap.Int("count", len(facts)))
	return facts, nil
}

func factFilter(q FactQuery) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch("user_id", q.UserID)}
	if q.OrgID != "" {
		must = append(must, qdrant.NewMatch("org_id", q.OrgID))
	}
	if q.MinImportance > 0 {
		min := q.MinImportance
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "importance",
					Range: &qdrant.Range{Gte: &min},
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}

func itemPayload(item Item) map[string]*qdrant.Value {
	tags := make([]*qdrant.Value, len(item.Tags))
	for i, t := range item.Tags {
		tags[i] = qdrant.NewValueString(t)
	}
	return map[string]*qdrant.Value{
		"memory_id":     qdrant.NewValueString(item.ID),
		"user_id":       qdrant.NewValueString(item.UserID),
		"org_id":        qdrant.NewValueString(item.OrgID),
		"type":          qdrant.NewValueString(string(item.Type)),
		"content":       qdrant.NewValueString(item.Content),
		"importance":    qdrant.NewValueDouble(item.Importance),
		"last_accessed": qdrant.NewValueInt(item.LastAccessed.Unix()),
		"access_count":  qdrant.NewValueInt(int64(item.AccessCount)),
		"tags":          {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: tags}}},
	}
}

func pointToFact(payload map[string]*qdrant.Value, score float32) Fact {
	return Fact{
		ID:           payloadString(payload, "memory_id"),
		Value:        payloadString(payload, "content"),
		Importance:   payloadFloat(payload, "importance"),
		LastAccessed: time.Unix(payloadInt(payload, "last_accessed"), 0).UTC(),
		AccessCount:  int(payloadInt(payload, "access_count")),
		Metadata: map[string]any{
			"type":   payloadString(payload, "type"),
			"org_id": payloadString(payload, "org_id"),
			"tags":   payloadStrings(payload, "tags"),
		},
		Score: float64(score),
	}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func payloadFloat(payload map[string]*qdrant.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}

func payloadStrings(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok || v.GetListValue() == nil {
		return []string{}
	}
	out := make([]string, 0, len(v.GetListValue().GetValues()))
	for _, s := range v.GetListValue().GetValues() {
		if str := s.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}
