package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codelab/internal/common/mq"
)

const (
	EventSubmissionJudged = "submission.judged"
	headerEventType       = "event-type"
)

// SubmissionJudgedEvent is emitted after a submission is persisted.
type SubmissionJudgedEvent struct {
	EventType    string    `json:"event_type"`
	SubmissionID string    `json:"submission_id"`
	UserID       int64     `json:"user_id"`
	ExerciseID   string    `json:"exercise_id"`
	Passed       bool      `json:"passed"`
	Status       string    `json:"status"`
	ElapsedMs    float64   `json:"elapsed_ms"`
	JudgedAt     time.Time `json:"judged_at"`
}

// EventPublisher announces judged submissions.
type EventPublisher interface {
	PublishJudged(ctx context.Context, submission *Submission) error
}

// MQEventPublisher publishes events to a message queue topic.
type MQEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQEventPublisher returns a publisher bound to topic.
func NewMQEventPublisher(producer mq.Producer, topic string) *MQEventPublisher {
	return &MQEventPublisher{producer: producer, topic: topic}
}

// PublishJudged sends a SubmissionJudgedEvent keyed by submission id.
func (p *MQEventPublisher) PublishJudged(ctx context.Context, submission *Submission) error {
	if p == nil || p.producer == nil || p.topic == "" {
		return nil
	}
	if submission == nil {
		return fmt.Errorf("submission is nil")
	}
	event := SubmissionJudgedEvent{
		EventType:    EventSubmissionJudged,
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ExerciseID:   submission.ExerciseID,
		Passed:       submission.Passed,
		Status:       submission.Status,
		ElapsedMs:    submission.ElapsedMs,
		JudgedAt:     submission.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal judged event failed: %w", err)
	}
	msg := mq.NewMessage(payload)
	msg.ID = submission.ID
	msg.SetHeader(headerEventType, EventSubmissionJudged)
	return p.producer.Publish(ctx, p.topic, msg)
}

// NopEventPublisher drops events; used when no broker is configured.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishJudged(context.Context, *Submission) error { return nil }
