package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codelab/internal/common/cache"
	"codelab/internal/common/storage"
	"codelab/internal/engine"
	"codelab/internal/practice/catalog"
	"codelab/internal/practice/repository"
	appErr "codelab/pkg/errors"
	"codelab/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	runCacheKeyPrefix    = "run:result:"
	idempotencyKeyPrefix = "submit:idempotency:"
	rateUserKeyPrefix    = "submit:rate:user:"
	defaultSourcePrefix  = "submissions"
	defaultMaxCodeBytes  = 64 * 1024
	defaultRunCacheTTL   = 10 * time.Minute
	defaultListLimit     = 20
	processingMarker     = "processing"
)

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	Window  time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// Config holds practice service dependencies and settings.
type Config struct {
	Engine         *engine.Engine
	Catalog        *catalog.Catalog
	SubmissionRepo repository.SubmissionRepository
	Events         repository.EventPublisher
	Cache          cache.Cache
	// Storage is optional; when set with SourceBucket each submitted
	// source is archived.
	Storage storage.ObjectStorage

	SourceBucket    string
	SourceKeyPrefix string
	MaxCodeBytes    int
	RunCacheTTL     time.Duration
	IdempotencyTTL  time.Duration
	ListLimit       int
	RateLimit       RateLimitConfig
	Timeouts        TimeoutConfig
}

// PracticeService runs, checks and records attempts at exercises.
type PracticeService struct {
	engine         *engine.Engine
	catalog        *catalog.Catalog
	submissionRepo repository.SubmissionRepository
	events         repository.EventPublisher
	cache          cache.Cache
	storage        storage.ObjectStorage

	sourceBucket    string
	sourceKeyPrefix string
	maxCodeBytes    int
	runCacheTTL     time.Duration
	idempotencyTTL  time.Duration
	listLimit       int
	rateLimit       RateLimitConfig
	timeouts        TimeoutConfig

	runs singleflight.Group
}

// SubmitInput describes a graded submission.
type SubmitInput struct {
	UserID         int64
	ExerciseID     string
	Code           string
	IdempotencyKey string
}

// CheckResult is an ungraded run judged against an exercise.
type CheckResult struct {
	ExerciseID string                 `json:"exercise_id"`
	Passed     bool                   `json:"passed"`
	Result     engine.ExecutionResult `json:"result"`
}

// SubmitResult is the outcome of a graded submission.
type SubmitResult struct {
	Submission *repository.Submission `json:"submission"`
	Result     engine.ExecutionResult `json:"result"`
}

// NewPracticeService creates a new practice service.
func NewPracticeService(cfg Config) (*PracticeService, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Events == nil {
		cfg.Events = repository.NopEventPublisher{}
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.RunCacheTTL <= 0 {
		cfg.RunCacheTTL = defaultRunCacheTTL
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaultListLimit
	}
	return &PracticeService{
		engine:          cfg.Engine,
		catalog:         cfg.Catalog,
		submissionRepo:  cfg.SubmissionRepo,
		events:          cfg.Events,
		cache:           cfg.Cache,
		storage:         cfg.Storage,
		sourceBucket:    cfg.SourceBucket,
		sourceKeyPrefix: cfg.SourceKeyPrefix,
		maxCodeBytes:    cfg.MaxCodeBytes,
		runCacheTTL:     cfg.RunCacheTTL,
		idempotencyTTL:  cfg.IdempotencyTTL,
		listLimit:       cfg.ListLimit,
		rateLimit:       cfg.RateLimit,
		timeouts:        cfg.Timeouts,
	}, nil
}

// ListExercises returns the catalog entries matching f.
func (s *PracticeService) ListExercises(f catalog.Filter) []*catalog.Exercise {
	return s.catalog.List(f)
}

// ExerciseStats counts the catalog per difficulty.
func (s *PracticeService) ExerciseStats() catalog.Stats {
	return s.catalog.Stats()
}

// GetExercise returns one exercise.
func (s *PracticeService) GetExercise(id string) (*catalog.Exercise, error) {
	return s.catalog.Get(id)
}

// Validate checks the structure of source without running it.
func (s *PracticeService) Validate(source string) (engine.ValidationResult, error) {
	if err := s.validateCode(source); err != nil {
		return engine.ValidationResult{}, err
	}
	return engine.Validate(source), nil
}

// Run executes source without judging it. Results are memoised per source
// and limits; identical concurrent runs share one execution.
func (s *PracticeService) Run(ctx context.Context, source string) (engine.ExecutionResult, error) {
	if err := s.validateCode(source); err != nil {
		return engine.ExecutionResult{}, err
	}
	key := s.runCacheKey(source)

	if res, ok := s.cachedRun(ctx, key); ok {
		logger.Debug(ctx, "run served from cache", zap.String("key", key))
		return res, nil
	}

	v, _, _ := s.runs.Do(key, func() (interface{}, error) {
		res := s.engine.RunProgram(source)
		s.storeRun(ctx, key, res)
		return res, nil
	})
	res := v.(engine.ExecutionResult)
	logger.Info(ctx, "program executed",
		zap.String("status", string(res.Status)),
		zap.String("error_kind", string(res.ErrorKind)),
		zap.Int("iterations", res.Iterations),
		zap.Float64("elapsed_ms", res.ElapsedTimeMs),
	)
	return res, nil
}

// Check runs source and judges it against the exercise's expected output
// without recording anything.
func (s *PracticeService) Check(ctx context.Context, exerciseID, source string) (*CheckResult, error) {
	ex, err := s.catalog.Get(exerciseID)
	if err != nil {
		return nil, err
	}
	res, err := s.Run(ctx, source)
	if err != nil {
		return nil, err
	}
	return &CheckResult{
		ExerciseID: ex.ID,
		Passed:     res.Succeeded() && engine.Judge(res.Output, ex.ExpectedOutput),
		Result:     res,
	}, nil
}

// Submit judges a graded attempt, records it and announces the verdict.
func (s *PracticeService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if input.UserID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if err := s.validateCode(input.Code); err != nil {
		return nil, err
	}
	ex, err := s.catalog.Get(input.ExerciseID)
	if err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, input.UserID); err != nil {
		return nil, err
	}

	idemKey := idempotencyCacheKey(input)
	acquired, existingID, err := s.acquireIdempotency(ctx, idemKey)
	if err != nil {
		return nil, err
	}
	if !acquired && existingID != "" {
		submission, err := s.GetSubmission(ctx, input.UserID, existingID)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Submission: submission, Result: resultOf(submission)}, nil
	}

	res, err := s.Run(ctx, input.Code)
	if err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, err
	}

	submission := &repository.Submission{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		ExerciseID: ex.ID,
		Code:       input.Code,
		Output:     res.Output,
		Passed:     res.Succeeded() && engine.Judge(res.Output, ex.ExpectedOutput),
		Status:     string(res.Status),
		Diagnostic: res.Diagnostic,
		ElapsedMs:  res.ElapsedTimeMs,
		CreatedAt:  time.Now(),
	}
	if err := s.archiveSource(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, err
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, err
	}
	s.finalizeIdempotency(ctx, idemKey, submission.ID, acquired)

	// The verdict is already stored; a lost event is not worth failing the request.
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.events.PublishJudged(ctxMQ.ctx, submission); err != nil {
		logger.Warn(ctx, "publish judged event failed", zap.String("submission_id", submission.ID), zap.Error(err))
	}

	logger.Info(ctx, "submission judged",
		zap.String("submission_id", submission.ID),
		zap.String("exercise_id", submission.ExerciseID),
		zap.Bool("passed", submission.Passed),
		zap.String("status", submission.Status),
	)
	return &SubmitResult{Submission: submission, Result: res}, nil
}

// GetSubmission returns a submission owned by userID.
func (s *PracticeService) GetSubmission(ctx context.Context, userID int64, submissionID string) (*repository.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if submission.UserID != userID {
		return nil, appErr.ForbiddenError("submission belongs to another user")
	}
	return submission, nil
}

// ListSubmissions returns the user's latest submissions for an exercise.
func (s *PracticeService) ListSubmissions(ctx context.Context, userID int64, exerciseID string, limit int) ([]*repository.Submission, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if _, err := s.catalog.Get(exerciseID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	list, err := s.submissionRepo.ListByUserExercise(ctxDB.ctx, userID, exerciseID, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return list, nil
}

func (s *PracticeService) validateCode(source string) error {
	if strings.TrimSpace(source) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(source) > s.maxCodeBytes {
		return appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxCodeBytes)
	}
	return nil
}

func (s *PracticeService) runCacheKey(source string) string {
	limits := s.engine.Limits()
	h := sha256.New()
	fmt.Fprintf(h, "%d:%d:%d:", limits.MaxLoopIterations, limits.MaxOutputBytes, limits.MaxArrayCells)
	h.Write([]byte(source))
	return runCacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (s *PracticeService) cachedRun(ctx context.Context, key string) (engine.ExecutionResult, bool) {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	raw, err := s.cache.Get(ctxCache.ctx, key)
	if err != nil || raw == "" {
		return engine.ExecutionResult{}, false
	}
	var res engine.ExecutionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return engine.ExecutionResult{}, false
	}
	return res, true
}

func (s *PracticeService) storeRun(ctx context.Context, key string, res engine.ExecutionResult) {
	// Internal failures may be transient.
	if res.ErrorKind == engine.KindInternal {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, key, string(payload), cache.JitterTTL(s.runCacheTTL)); err != nil {
		logger.Warn(ctx, "cache run result failed", zap.Error(err))
	}
}

func (s *PracticeService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.rateLimit.Window <= 0 || s.rateLimit.UserMax <= 0 {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	count, err := s.cache.IncrWindow(ctxCache.ctx, fmt.Sprintf("%s%d", rateUserKeyPrefix, userID), s.rateLimit.Window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if int(count) > s.rateLimit.UserMax {
		return appErr.New(appErr.SubmitTooFrequently)
	}
	return nil
}

// idempotencyCacheKey scopes the client's key to the user and exercise. It is
// empty when the client sent no key.
func idempotencyCacheKey(input SubmitInput) string {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return ""
	}
	return fmt.Sprintf("%s%d:%s:%s", idempotencyKeyPrefix, input.UserID, input.ExerciseID, key)
}

func (s *PracticeService) acquireIdempotency(ctx context.Context, cacheKey string) (bool, string, error) {
	if cacheKey == "" {
		return true, "", nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
}

func (s *PracticeService) finalizeIdempotency(ctx context.Context, cacheKey, submissionID string, acquired bool) {
	if !acquired || cacheKey == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, cacheKey, submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *PracticeService) releaseIdempotency(ctx context.Context, cacheKey string, acquired bool) {
	if !acquired || cacheKey == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, cacheKey); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

func (s *PracticeService) archiveSource(ctx context.Context, submission *repository.Submission) error {
	if s.storage == nil || s.sourceBucket == "" {
		return nil
	}
	key := fmt.Sprintf("%s/%s/main.c", s.sourceKeyPrefix, submission.ID)
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	err := s.storage.PutObject(ctxStorage.ctx, s.sourceBucket, key,
		strings.NewReader(submission.Code), int64(len(submission.Code)), "text/x-c; charset=utf-8")
	if err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "archive source failed")
	}
	submission.SourceKey = key
	return nil
}

func (s *PracticeService) createSubmission(ctx context.Context, submission *repository.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, nil, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

// resultOf rebuilds the visible part of a stored run.
func resultOf(submission *repository.Submission) engine.ExecutionResult {
	return engine.ExecutionResult{
		Output:        submission.Output,
		Diagnostic:    submission.Diagnostic,
		ElapsedTimeMs: submission.ElapsedMs,
		Status:        engine.Status(submission.Status),
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
