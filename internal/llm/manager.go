package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("llm queue full")
	ErrStopped   = errors.New("llm queue stopped")
)

// Manager coordinates all LLM requests: two priority queues drained by one
// dispatcher, with a semaphore bounding in-flight HTTP calls.
type Manager struct {
	criticalQueue   chan *Request
	backgroundQueue chan *Request

	semaphore chan struct{}

	circuitBreaker *CircuitBreaker
	httpClient     *http.Client

	mu      sync.RWMutex
	metrics Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	config *Config
	log    *zap.Logger
}

// NewManager creates a new queue manager and starts its dispatcher.
func NewManager(config *Config, circuitBreaker *CircuitBreaker, logger *zap.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		criticalQueue:   make(chan *Request, config.CriticalQueueSize),
		backgroundQueue: make(chan *Request, config.BackgroundQueueSize),
		semaphore:       make(chan struct{}, config.MaxConcurrent),
		circuitBreaker:  circuitBreaker,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		metrics: Metrics{
			CurrentQueueDepth: map[Priority]int{
				PriorityCritical:   0,
				PriorityBackground: 0,
			},
		},
		stopCh: make(chan struct{}),
		config: config,
		log:    logger.Named("llm"),
	}

	m.wg.Add(1)
	go m.dispatcher()

	m.log.Info("queue started", zap.Int("max_concurrent", config.MaxConcurrent))
	return m
}

// Submit adds a request to its priority queue. A full queue rejects the
// request instead of blocking the caller.
func (m *Manager) Submit(req *Request) error {
	select {
	case <-m.stopCh:
		return ErrStopped
	default:
	}

	queue := m.backgroundQueue
	if req.Priority == PriorityCritical {
		queue = m.criticalQueue
	}

	m.mu.Lock()
	if req.Priority == PriorityCritical {
		m.metrics.CriticalEnqueued++
	} else {
		m.metrics.BackgroundEnqueued++
	}
	m.mu.Unlock()

	select {
	case queue <- req:
		return nil
	default:
		m.mu.Lock()
		if req.Priority == PriorityCritical {
			m.metrics.CriticalDropped++
		} else {
			m.metrics.BackgroundDropped++
		}
		m.mu.Unlock()
		m.log.Warn("queue full, dropping request", zap.String("priority", req.Priority.String()), zap.String("request_id", req.ID))
		return ErrQueueFull
	}
}

// dispatcher selects next request (critical first, then background)
func (m *Manager) dispatcher() {
	defer m.wg.Done()

	for {
		var req *Request
		select {
		case <-m.stopCh:
			return
		case req = <-m.criticalQueue:
		case req = <-m.backgroundQueue:
			// a critical request that arrived meanwhile goes first
			select {
			case crit := <-m.criticalQueue:
				m.requeue(req)
				req = crit
			default:
			}
		}

		select {
		case <-m.stopCh:
			req.ErrorCh <- ErrStopped
			return
		case m.semaphore <- struct{}{}:
		}

		m.wg.Add(1)
		go m.processRequest(req)
	}
}

func (m *Manager) requeue(req *Request) {
	select {
	case m.backgroundQueue <- req:
	default:
		req.ErrorCh <- ErrQueueFull
	}
}

// processRequest executes the actual LLM call
func (m *Manager) processRequest(req *Request) {
	defer func() {
		<-m.semaphore
		m.wg.Done()

		m.mu.Lock()
		if req.Priority == PriorityCritical {
			m.metrics.CriticalProcessed++
		} else {
			m.metrics.BackgroundProcessed++
		}
		m.mu.Unlock()
	}()

	start := time.Now()
	if err := req.Context.Err(); err != nil {
		req.ErrorCh <- err
		return
	}

	ctx := req.Context
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context, req.Timeout)
		defer cancel()
	}

	resp, err := m.executeHTTPRequest(ctx, req)
	if err != nil {
		m.log.Warn("request failed", zap.String("request_id", req.ID), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		req.ErrorCh <- err
		return
	}
	m.log.Debug("request completed", zap.String("request_id", req.ID), zap.Duration("elapsed", time.Since(start)))
	req.ResponseCh <- resp
}

// executeHTTPRequest performs the actual HTTP call
func (m *Manager) executeHTTPRequest(ctx context.Context, req *Request) (*Response, error) {
	if m.circuitBreaker != nil {
		if err := m.circuitBreaker.Allow(); err != nil {
			return nil, err
		}
	}

	resp, err := m.doPost(ctx, req)
	if m.circuitBreaker != nil {
		// 4xx is the caller's fault and says nothing about backend health
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			m.circuitBreaker.Record(fmt.Errorf("status %d", resp.StatusCode))
		} else {
			m.circuitBreaker.Record(err)
		}
	}
	return resp, err
}

func (m *Manager) doPost(ctx context.Context, req *Request) (*Response, error) {
	jsonData, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// GetMetrics returns current queue statistics
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := m.metrics
	metrics.CurrentQueueDepth = map[Priority]int{
		PriorityCritical:   len(m.criticalQueue),
		PriorityBackground: len(m.backgroundQueue),
	}
	return metrics
}

// Stop shuts the dispatcher down and waits for in-flight requests.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.httpClient.CloseIdleConnections()
		m.log.Info("queue stopped")
	})
}
