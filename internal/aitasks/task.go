// Package aitasks runs the asynchronous AI verification jobs of a claim with
// a fixed retry ladder, a dead-letter state and an aggregation barrier that
// hands the claim to admin review once every job has completed.
package aitasks

import (
	"context"
	"encoding/json"
	"time"

	"claims_backend/internal/claims/domain"

	"github.com/google/uuid"
)

// TaskType names an AI job.
type TaskType string

const (
	TaskOCR            TaskType = "ocr"
	TaskSatellite      TaskType = "satellite"
	TaskFraudDetection TaskType = "fraud_detection"
)

// ReportKey is the ai_report member the task type writes.
func (t TaskType) ReportKey() string {
	switch t {
	case TaskFraudDetection:
		return "fraudDetection"
	default:
		return string(t)
	}
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskOCR, TaskSatellite, TaskFraudDetection:
		return true
	}
	return false
}

// Status of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MaxRetries bounds automatic retries after the initial attempt.
const MaxRetries = 3

// RetryDelays is indexed by the retry count after increment, minus one.
var RetryDelays = [MaxRetries]time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}

// Input is the immutable snapshot a task runs against.
type Input struct {
	ClaimID       uuid.UUID        `json:"claimId"`
	ClaimNumber   string           `json:"claimNumber"`
	FarmerID      uuid.UUID        `json:"farmerId"`
	PolicyID      uuid.UUID        `json:"policyId"`
	IncidentDate  time.Time        `json:"incidentDate"`
	IncidentType  string           `json:"incidentType"`
	CropType      string           `json:"cropType,omitempty"`
	ClaimedAmount float64          `json:"claimedAmount"`
	SumInsured    float64          `json:"sumInsured"`
	CoverageStart time.Time        `json:"coverageStart"`
	CoverageEnd   time.Time        `json:"coverageEnd"`
	Location      *domain.Location `json:"location,omitempty"`
	Images        []string         `json:"images,omitempty"`
	Documents     []string         `json:"documents,omitempty"`
	SubmittedAt   time.Time        `json:"submittedAt"`
}

// Task is one row of the queue.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	ClaimID      uuid.UUID       `json:"claimId"`
	TaskType     TaskType        `json:"taskType"`
	Status       Status          `json:"status"`
	Input        Input           `json:"inputData"`
	Output       json.RawMessage `json:"outputData,omitempty"`
	RetryCount   int             `json:"retryCount"`
	MaxRetries   int             `json:"maxRetries"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// DeadLettered reports whether the task exhausted its automatic retries.
func (t Task) DeadLettered() bool {
	return t.Status == StatusFailed && t.RetryCount >= t.MaxRetries
}

// Result is what a handler produces. Report is stored under ai_report.<key>.
type Result struct {
	DamagePercent     *float64 `json:"damagePercent,omitempty"`
	RecommendedAmount *float64 `json:"recommendedAmount,omitempty"`
	ValidationFlags   []string `json:"validationFlags,omitempty"`
	Report            any      `json:"report"`
}

// Handler runs one task type.
type Handler interface {
	Handle(ctx context.Context, in Input) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in Input) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}

// Dispatcher schedules an attempt of taskID after delay.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID uuid.UUID, delay time.Duration) error
}

// StuckClaim is a claim whose AI pipeline has not converged.
type StuckClaim struct {
	ClaimID     uuid.UUID `json:"claimId"`
	ClaimNumber string    `json:"claimNumber"`
	Total       int       `json:"total"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	CreatedAt   time.Time `json:"createdAt"`
}
