package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codelab/internal/auth"
	"codelab/internal/common/cache"
	"codelab/internal/common/db"
	commonmw "codelab/internal/common/http/middleware"
	"codelab/internal/engine"
	"codelab/internal/practice/catalog"
	"codelab/internal/practice/repository"
	"codelab/internal/practice/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codelab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

const baseConfig = `
database:
  dsn: "user:pass@tcp(127.0.0.1:3306)/codelab"
redis:
  addr: "127.0.0.1:6379"
auth:
  jwtSecret: "secret"
catalog:
  path: "configs/exercises.yaml"
`

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Engine != engine.DefaultLimits() {
		t.Fatalf("unexpected engine limits %+v", cfg.Engine)
	}
	if cfg.Redis.PoolSize != cache.DefaultRedisConfig().PoolSize {
		t.Fatalf("redis defaults not applied")
	}
	if cfg.Database.MaxOpenConnections != db.DefaultMySQLConfig().MaxOpenConnections {
		t.Fatalf("mysql defaults not applied")
	}
	if cfg.Submission.EventTopic != defaultEventTopic {
		t.Fatalf("unexpected event topic %s", cfg.Submission.EventTopic)
	}
	if cfg.MinIOEnabled() || cfg.KafkaEnabled() {
		t.Fatalf("minio and kafka should be optional")
	}
}

func TestLoadAppConfigOverrides(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, baseConfig+`
engine:
  maxLoopIterations: 500
kafka:
  brokers: ["127.0.0.1:9092"]
submission:
  rateLimit:
    userMax: 5
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.MaxLoopIterations != 500 || cfg.Engine.MaxOutputBytes != engine.DefaultMaxOutputBytes {
		t.Fatalf("unexpected engine limits %+v", cfg.Engine)
	}
	if !cfg.KafkaEnabled() {
		t.Fatalf("kafka should be enabled")
	}
	if cfg.Submission.RateLimit.Window != time.Minute {
		t.Fatalf("rate limit window should default, got %s", cfg.Submission.RateLimit.Window)
	}
}

func TestLoadAppConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing dsn", strings.Replace(baseConfig, `dsn: "user:pass@tcp(127.0.0.1:3306)/codelab"`, `dsn: ""`, 1), "database dsn"},
		{"missing secret", strings.Replace(baseConfig, `jwtSecret: "secret"`, `jwtSecret: ""`, 1), "jwtSecret"},
		{"missing catalog", strings.Replace(baseConfig, `path: "configs/exercises.yaml"`, `path: ""`, 1), "catalog path or object"},
		{"object without minio", baseConfig + "\n  object: exercises.yaml.zst\n", "requires minio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadAppConfig(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}

type emptyRepo struct{}

func (emptyRepo) Create(context.Context, db.Transaction, *repository.Submission) error { return nil }

func (emptyRepo) GetByID(context.Context, db.Transaction, string) (*repository.Submission, error) {
	return nil, repository.ErrSubmissionNotFound
}

func (emptyRepo) ListByUserExercise(context.Context, int64, string, int) ([]*repository.Submission, error) {
	return nil, nil
}

func newRouter(t *testing.T, ready func(context.Context) error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	exercises, err := catalog.New([]*catalog.Exercise{
		{ID: "hello", Title: "Hello", ExpectedOutput: "Hello"},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	svc, err := service.NewPracticeService(service.Config{
		Engine:         engine.New(engine.DefaultLimits()),
		Catalog:        exercises,
		SubmissionRepo: emptyRepo{},
		Cache:          redisCache,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	authService := auth.NewAuthService(auth.Config{JWTSecret: "secret"}, redisCache)
	cfg := ServerConfig{
		CORS:      commonmw.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
		RateLimit: commonmw.RateLimitPolicy{IPMax: 100},
	}
	return buildRouter(cfg, redisCache, svc, authService, ready)
}

func TestBuildRouter(t *testing.T) {
	healthy := newRouter(t, func(context.Context) error { return nil })
	broken := newRouter(t, func(context.Context) error { return errors.New("mysql down") })

	tests := []struct {
		name   string
		router *gin.Engine
		method string
		path   string
		status int
	}{
		{"health", healthy, http.MethodGet, "/healthz", http.StatusOK},
		{"ready", healthy, http.MethodGet, "/readyz", http.StatusOK},
		{"not ready", broken, http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{"exercises", healthy, http.MethodGet, "/api/v1/exercises", http.StatusOK},
		{"logout needs token", healthy, http.MethodPost, "/api/v1/auth/logout", http.StatusUnauthorized},
		{"preflight", healthy, http.MethodOptions, "/api/v1/run", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", "https://codelab.example")
			w := httptest.NewRecorder()
			tt.router.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.status, w.Body.String())
			}
			if w.Header().Get("X-Trace-Id") == "" {
				t.Fatalf("trace header missing")
			}
		})
	}
}

func TestSampleCatalog(t *testing.T) {
	exercises, err := catalog.LoadFile(filepath.Join("..", "..", "configs", "exercises.yaml"))
	if err != nil {
		t.Fatalf("load sample catalog: %v", err)
	}
	if exercises.Len() == 0 {
		t.Fatalf("sample catalog is empty")
	}
	eng := engine.New(engine.DefaultLimits())
	for _, ex := range exercises.List(catalog.Filter{}) {
		t.Run(ex.ID, func(t *testing.T) {
			res := eng.RunProgram(ex.StarterCode)
			if res.Status != engine.StatusAccepted {
				t.Fatalf("starter code should run, got %s: %s", res.Status, res.Diagnostic)
			}
		})
	}
}
