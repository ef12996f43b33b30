package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-advisor/internal/config"
	"go-advisor/internal/dialogue"
	"go-advisor/internal/llm"
	"go-advisor/internal/memory"
)

// core is the dialogue engine plus the services it depends on.
type core struct {
	engine *dialogue.Engine
	memory *memory.Service
	queue  *llm.Manager
	facts  *memory.QdrantFactStore
}

func (c *core) Close() {
	c.queue.Stop()
	if c.facts != nil {
		c.facts.Close()
	}
}

func loadPersona(cfg *config.Config) (dialogue.Persona, error) {
	if cfg.PersonaPath == "" {
		return dialogue.DefaultPersona(), nil
	}
	return dialogue.LoadPersona(cfg.PersonaPath)
}

func queueConfig(cfg *config.Config) *llm.Config {
	q := llm.DefaultConfig()
	g := cfg.Generation
	q.MaxConcurrent = g.MaxConcurrent
	q.CriticalQueueSize = g.CriticalQueueSize
	q.BackgroundQueueSize = g.BackgroundQueueSize
	q.CriticalTimeout = cfg.GenerationTimeout()
	q.BreakerFailures = g.BreakerFailures
	q.BreakerTimeout = time.Duration(g.BreakerTimeoutSeconds) * time.Second
	return q
}

// buildCore wires generation, memory and the engine. With a nil db the
// engine runs without memory context.
func buildCore(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*core, error) {
	persona, err := loadPersona(cfg)
	if err != nil {
		return nil, err
	}
	model, ok := cfg.GenerationLLM()
	if !ok {
		return nil, fmt.Errorf("no llm configured for generation")
	}

	qcfg := queueConfig(cfg)
	breaker := llm.NewCircuitBreaker(qcfg.BreakerFailures, qcfg.BreakerTimeout, log)
	queue := llm.NewManager(qcfg, breaker, log)
	turnGen := llm.NewChatGenerator(llm.NewClient(queue, llm.PriorityCritical, qcfg.CriticalTimeout), model.URL, model.Name, cfg.Generation.Temperature)

	c := &core{queue: queue}
	opts := []dialogue.Option{
		dialogue.WithTimeout(cfg.GenerationTimeout()),
		dialogue.WithLogger(log),
	}

	if db != nil {
		svcOpts := []memory.ServiceOption{
			memory.WithCacheTTL(cfg.CacheTTL()),
			memory.WithDefaultLimit(cfg.Memory.RetrievalLimit),
			memory.WithContextMinImportance(cfg.Memory.MinImportance),
			memory.WithServiceLogger(log),
			memory.WithResponder(memory.NewLLMResponder(llm.NewChatGenerator(
				llm.NewClient(queue, llm.PriorityBackground, qcfg.BackgroundTimeout), model.URL, model.Name, cfg.Generation.Temperature))),
		}
		if facts := connectFacts(ctx, cfg, log); facts != nil {
			c.facts = facts
			svcOpts = append(svcOpts, memory.WithFactStore(facts), memory.WithInspector(func(found []memory.Fact) {
				log.Debug("facts retrieved", zap.Int("count", len(found)))
			}))
		}
		c.memory = memory.NewService(memory.NewGormRecordStore(db), svcOpts...)
		opts = append(opts, dialogue.WithContextSource(c.memory))
	}

	engine, err := dialogue.NewEngine(persona, turnGen, opts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.engine = engine
	return c, nil
}

// connectFacts returns nil when qdrant or the embedding model is not
// configured or unreachable; retrieval then uses full scans only.
func connectFacts(ctx context.Context, cfg *config.Config, log *zap.Logger) *memory.QdrantFactStore {
	m := cfg.Memory
	if m.Qdrant.URL == "" || m.EmbeddingModel.URL == "" {
		return nil
	}
	facts, err := memory.NewQdrantFactStore(ctx, memory.QdrantOptions{
		URL:        m.Qdrant.URL,
		Collection: m.Qdrant.Collection,
		APIKey:     m.Qdrant.APIKey,
		VectorSize: m.Qdrant.VectorSize,
	}, memory.NewEmbedder(m.EmbeddingModel.URL, m.EmbeddingModel.Name), log)
	if err != nil {
		log.Warn("fact store unavailable, using full scan retrieval", zap.Error(err))
		return nil
	}
	return facts
}
