package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"go-advisor/internal/auth"
	"go-advisor/internal/config"
	"go-advisor/internal/db"
	"go-advisor/internal/dialogue"
	"go-advisor/internal/llm"
	"go-advisor/internal/memory"
	"go-advisor/internal/session"
)

const testSecret = "test-secret"

// stubGenerator answers every prompt with reply, or fails with err.
type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []llm.Prompt
}

func (g *stubGenerator) Invoke(_ context.Context, p llm.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *stubGenerator) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type testEnv struct {
	router *gin.Engine
	gen    *stubGenerator
	deps   Deps
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbConn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Migrate(dbConn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := dbConn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return dbConn
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	dbConn := setupTestDB(t)

	gen := &stubGenerator{reply: "Happy to help. What outcome would make this a success for you?"}
	engine, err := dialogue.NewEngine(dialogue.DefaultPersona(), gen)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.JWTSecret = testSecret
	deps := Deps{
		Config:        cfg,
		Engine:        engine,
		Conversations: session.NewRedisStore(rdb, time.Hour),
		Archive:       session.NewArchive(dbConn),
		Memory: memory.NewService(memory.NewGormRecordStore(dbConn),
			memory.WithResponder(memory.NewLLMResponder(gen))),
	}
	return &testEnv{router: SetupRouter(deps), gen: gen, deps: deps}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateJWT(testSecret, userID, userID, "", time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode JSON %q: %v", w.Body.String(), err)
	}
	return v
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}](t, w)
	return body.Error.Message
}

var errModelDown = errors.New("model down")

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}
