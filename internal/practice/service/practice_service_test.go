package service_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"codelab/internal/common/cache"
	"codelab/internal/common/db"
	"codelab/internal/common/storage"
	"codelab/internal/engine"
	"codelab/internal/practice/catalog"
	"codelab/internal/practice/repository"
	"codelab/internal/practice/service"
	appErr "codelab/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const helloSource = `#include <stdio.h>

int main() {
    printf("Hello, World!\n");
    return 0;
}
`

type fakeRepo struct {
	mu   sync.Mutex
	subs map[string]*repository.Submission
	err  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: map[string]*repository.Submission{}}
}

func (f *fakeRepo) Create(ctx context.Context, tx db.Transaction, s *repository.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subs[s.ID] = s
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, tx db.Transaction, id string) (*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	return s, nil
}

func (f *fakeRepo) ListByUserExercise(ctx context.Context, userID int64, exerciseID string, limit int) ([]*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Submission
	for _, s := range f.subs {
		if s.UserID == userID && s.ExerciseID == exerciseID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*repository.Submission
	err    error
}

func (f *fakeEvents) PublishJudged(ctx context.Context, s *repository.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, s)
	return f.err
}

type fakeStorage struct {
	objects map[string]string
}

func (f *fakeStorage) GetObject(ctx context.Context, bucket, key string) (storage.ObjectReader, error) {
	return io.NopCloser(strings.NewReader(f.objects[bucket+"/"+key])), nil
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = string(data)
	return nil
}

func (f *fakeStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, nil
}

type fixture struct {
	svc     *service.PracticeService
	repo    *fakeRepo
	events  *fakeEvents
	storage *fakeStorage
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T, mutate func(*service.Config)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	cat, err := catalog.New([]*catalog.Exercise{
		{ID: "hello", Title: "Hello World", ExpectedOutput: "Hello, World!"},
		{ID: "count", Title: "Count", ExpectedOutput: "1 2 3", Difficulty: catalog.DifficultyMedium},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}

	f := &fixture{
		repo:    newFakeRepo(),
		events:  &fakeEvents{},
		storage: &fakeStorage{objects: map[string]string{}},
		mr:      mr,
	}
	cfg := service.Config{
		Engine:         engine.New(engine.DefaultLimits()),
		Catalog:        cat,
		SubmissionRepo: f.repo,
		Events:         f.events,
		Cache:          c,
		Storage:        f.storage,
		SourceBucket:   "codelab",
		RateLimit:      service.RateLimitConfig{UserMax: 3, Window: time.Minute},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.svc, err = service.NewPracticeService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return f
}

func TestNewPracticeServiceRequiresDependencies(t *testing.T) {
	if _, err := service.NewPracticeService(service.Config{}); err == nil {
		t.Fatalf("expected missing dependency error")
	}
}

func TestRunMemoisesResult(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Run(ctx, helloSource)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Status != engine.StatusAccepted || res.Output != "Hello, World!\n" {
		t.Fatalf("unexpected result %+v", res)
	}
	keys := f.mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "run:result:") {
		t.Fatalf("expected one memo key, got %v", keys)
	}

	// A doctored memo proves the second run never reached the engine.
	f.mr.Set(keys[0], `{"output":"memo","status":"Accepted"}`)
	res, err = f.svc.Run(ctx, helloSource)
	if err != nil || res.Output != "memo" {
		t.Fatalf("expected memoised result, got %+v, %v", res, err)
	}
}

func TestRunConcurrentIdenticalSources(t *testing.T) {
	f := newFixture(t, nil)
	var wg sync.WaitGroup
	results := make([]engine.ExecutionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Run(context.Background(), helloSource)
			if err != nil {
				t.Errorf("run failed: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()
	for _, res := range results {
		if res.Output != "Hello, World!\n" {
			t.Fatalf("unexpected output %q", res.Output)
		}
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	f := newFixture(t, func(cfg *service.Config) { cfg.MaxCodeBytes = 32 })
	if _, err := f.svc.Run(context.Background(), "   "); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Run(context.Background(), helloSource); !appErr.Is(err, appErr.CodeTooLarge) {
		t.Fatalf("expected CodeTooLarge, got %v", err)
	}
	if _, err := f.svc.Validate(helloSource); !appErr.Is(err, appErr.CodeTooLarge) {
		t.Fatalf("validate should apply the size limit, got %v", err)
	}
	v, err := f.svc.Validate("int main() {}")
	if err != nil || v.OK {
		t.Fatalf("expected a structural diagnostic, got %+v %v", v, err)
	}
}

func TestCheck(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	got, err := f.svc.Check(ctx, "hello", helloSource)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !got.Passed {
		t.Fatalf("hello world should pass, result %+v", got.Result)
	}
	got, err = f.svc.Check(ctx, "count", helloSource)
	if err != nil || got.Passed {
		t.Fatalf("wrong output must not pass: %+v, %v", got, err)
	}
	if _, err := f.svc.Check(ctx, "missing", helloSource); !appErr.Is(err, appErr.ExerciseNotFound) {
		t.Fatalf("expected ExerciseNotFound, got %v", err)
	}
	if len(f.repo.subs) != 0 {
		t.Fatalf("check must not persist")
	}
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.Submit(ctx, service.SubmitInput{UserID: 5, ExerciseID: "hello", Code: helloSource})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	sub := out.Submission
	if sub.ID == "" || !sub.Passed || sub.Status != "Accepted" || sub.UserID != 5 {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if _, ok := f.repo.subs[sub.ID]; !ok {
		t.Fatalf("submission not persisted")
	}
	if len(f.events.events) != 1 || f.events.events[0].ID != sub.ID {
		t.Fatalf("expected judged event for %s", sub.ID)
	}
	if f.storage.objects["codelab/"+sub.SourceKey] != helloSource {
		t.Fatalf("source not archived under %q", sub.SourceKey)
	}

	failing := strings.Replace(helloSource, `printf("Hello, World!\n");`, `int x = 1 / 0;`, 1)
	out, err = f.svc.Submit(ctx, service.SubmitInput{UserID: 5, ExerciseID: "hello", Code: failing})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.Submission.Passed || out.Submission.Status != string(engine.StatusRuntimeError) {
		t.Fatalf("runtime error must be recorded as failed, got %+v", out.Submission)
	}
	if out.Result.ErrorKind != engine.KindDivisionByZero {
		t.Fatalf("unexpected error kind %s", out.Result.ErrorKind)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	input := service.SubmitInput{UserID: 9, ExerciseID: "hello", Code: helloSource}
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Submit(ctx, input); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	if _, err := f.svc.Submit(ctx, input); !appErr.Is(err, appErr.SubmitTooFrequently) {
		t.Fatalf("expected SubmitTooFrequently, got %v", err)
	}
	f.mr.FastForward(time.Minute + time.Second)
	if _, err := f.svc.Submit(ctx, input); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
	// Other users have their own window.
	if _, err := f.svc.Submit(ctx, service.SubmitInput{UserID: 10, ExerciseID: "hello", Code: helloSource}); err != nil {
		t.Fatalf("other user throttled: %v", err)
	}
}

func TestSubmitIdempotency(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	input := service.SubmitInput{UserID: 5, ExerciseID: "hello", Code: helloSource, IdempotencyKey: "req-1"}

	first, err := f.svc.Submit(ctx, input)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	second, err := f.svc.Submit(ctx, input)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if first.Submission.ID != second.Submission.ID || len(f.repo.subs) != 1 {
		t.Fatalf("replay should return the original submission")
	}
	if second.Result.Output != "Hello, World!\n" {
		t.Fatalf("replay should carry the stored output")
	}

	other := input
	other.UserID = 6
	third, err := f.svc.Submit(ctx, other)
	if err != nil {
		t.Fatalf("same key from another user failed: %v", err)
	}
	if third.Submission.ID == first.Submission.ID || third.Submission.UserID != 6 || len(f.repo.subs) != 2 {
		t.Fatalf("keys must be scoped per user")
	}
}

func TestSubmitReleasesIdempotencyOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.err = errors.New("db down")
	ctx := context.Background()
	input := service.SubmitInput{UserID: 5, ExerciseID: "hello", Code: helloSource, IdempotencyKey: "req-2"}

	if _, err := f.svc.Submit(ctx, input); !appErr.Is(err, appErr.SubmissionCreateFailed) {
		t.Fatalf("expected SubmissionCreateFailed, got %v", err)
	}
	if f.mr.Exists("submit:idempotency:5:hello:req-2") {
		t.Fatalf("idempotency key should be released")
	}
	f.repo.err = nil
	if _, err := f.svc.Submit(ctx, input); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestSubmitSurvivesEventFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.events.err = errors.New("broker down")
	if _, err := f.svc.Submit(context.Background(), service.SubmitInput{UserID: 5, ExerciseID: "hello", Code: helloSource}); err != nil {
		t.Fatalf("event failure must not fail the submission: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name  string
		input service.SubmitInput
		code  appErr.ErrorCode
	}{
		{"no user", service.SubmitInput{ExerciseID: "hello", Code: helloSource}, appErr.ValidationFailed},
		{"no code", service.SubmitInput{UserID: 1, ExerciseID: "hello"}, appErr.ValidationFailed},
		{"unknown exercise", service.SubmitInput{UserID: 1, ExerciseID: "nope", Code: helloSource}, appErr.ExerciseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Submit(context.Background(), tt.input); !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestGetAndListSubmissions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	out, err := f.svc.Submit(ctx, service.SubmitInput{UserID: 5, ExerciseID: "hello", Code: helloSource})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	got, err := f.svc.GetSubmission(ctx, 5, out.Submission.ID)
	if err != nil || got.ID != out.Submission.ID {
		t.Fatalf("get failed: %v", err)
	}
	if _, err := f.svc.GetSubmission(ctx, 6, out.Submission.ID); !appErr.Is(err, appErr.Forbidden) {
		t.Fatalf("expected Forbidden for another user, got %v", err)
	}
	if _, err := f.svc.GetSubmission(ctx, 5, "missing"); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}

	list, err := f.svc.ListSubmissions(ctx, 5, "hello", 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list %v, %v", list, err)
	}
	if _, err := f.svc.ListSubmissions(ctx, 5, "missing", 0); !appErr.Is(err, appErr.ExerciseNotFound) {
		t.Fatalf("expected ExerciseNotFound, got %v", err)
	}
}
