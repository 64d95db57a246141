package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codelab/internal/common/cache"
	"codelab/internal/common/db"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"

	maxListLimit = 100
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrDuplicateID        = errors.New("submission id already exists")
)

// Submission is a judged attempt at an exercise.
type Submission struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	ExerciseID string    `json:"exercise_id"`
	Code       string    `json:"code"`
	SourceKey  string    `json:"source_key,omitempty"`
	Output     string    `json:"output"`
	Passed     bool      `json:"passed"`
	Status     string    `json:"status"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	ElapsedMs  float64   `json:"elapsed_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
	// ListByUserExercise returns the newest submissions first.
	ListByUserExercise(ctx context.Context, userID int64, exerciseID string, limit int) ([]*Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL and a
// read-through cache.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *MySQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// Schema creates the submissions table.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id          CHAR(36)     NOT NULL PRIMARY KEY,
	user_id     BIGINT       NOT NULL,
	exercise_id VARCHAR(64)  NOT NULL,
	code        MEDIUMTEXT   NOT NULL,
	source_key  VARCHAR(255) NOT NULL DEFAULT '',
	output      MEDIUMTEXT   NOT NULL,
	passed      BOOLEAN      NOT NULL,
	status      VARCHAR(32)  NOT NULL,
	diagnostic  TEXT         NOT NULL,
	elapsed_ms  DOUBLE       NOT NULL,
	created_at  DATETIME(3)  NOT NULL,
	KEY idx_user_exercise (user_id, exercise_id, created_at)
)`

// Migrate creates the schema if it is missing.
func (r *MySQLSubmissionRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, Schema)
	return err
}

const submissionColumns = "id, user_id, exercise_id, code, source_key, output, passed, status, diagnostic, elapsed_ms, created_at"

// Create inserts a submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.ExerciseID == "" {
		return errors.New("exerciseID is required")
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}

	query := "INSERT INTO submissions (" + submissionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.UserID,
		submission.ExerciseID,
		submission.Code,
		submission.SourceKey,
		submission.Output,
		submission.Passed,
		submission.Status,
		submission.Diagnostic,
		submission.ElapsedMs,
		submission.CreatedAt,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrDuplicateID
		}
		return err
	}
	if r.cache != nil && tx == nil {
		r.setCache(ctx, submission)
	}
	return nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submission id is required")
	}
	if r.cache == nil || tx != nil {
		return r.getByIDFromDB(ctx, tx, submissionID)
	}
	submission, err := cache.GetWithCached[*Submission](
		ctx,
		r.cache,
		submissionCacheKey(submissionID),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(submission *Submission) bool { return submission == nil },
		marshalSubmission,
		unmarshalSubmission,
		func(ctx context.Context) (*Submission, error) {
			submission, err := r.getByIDFromDB(ctx, nil, submissionID)
			if errors.Is(err, ErrSubmissionNotFound) {
				return nil, nil
			}
			return submission, err
		},
	)
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, ErrSubmissionNotFound
	}
	return submission, nil
}

// ListByUserExercise returns at most limit submissions, newest first.
func (r *MySQLSubmissionRepository) ListByUserExercise(ctx context.Context, userID int64, exerciseID string, limit int) ([]*Submission, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE user_id = ? AND exercise_id = ? ORDER BY created_at DESC LIMIT ?"
	rows, err := r.db.Query(ctx, query, userID, exerciseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func scanSubmission(row db.Row) (*Submission, error) {
	submission := &Submission{}
	if err := row.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ExerciseID,
		&submission.Code,
		&submission.SourceKey,
		&submission.Output,
		&submission.Passed,
		&submission.Status,
		&submission.Diagnostic,
		&submission.ElapsedMs,
		&submission.CreatedAt,
	); err != nil {
		return nil, err
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) setCache(ctx context.Context, submission *Submission) {
	payload, err := marshalSubmission(submission)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, submissionCacheKey(submission.ID), payload, cache.JitterTTL(r.ttl))
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(submission *Submission) (string, error) {
	data, err := json.Marshal(submission)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalSubmission(data string) (*Submission, error) {
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

var _ SubmissionRepository = (*MySQLSubmissionRepository)(nil)
