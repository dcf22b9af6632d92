package aitasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"claims_backend/internal/events"
	"claims_backend/platform/apperr"
	"claims_backend/platform/clock"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultFailedLimit = 50
	maxFailedLimit     = 500
)

var errAttemptTimedOut = errors.New("attempt timed out")

// Queue owns the per-task state machine: pending, processing, then completed
// or, after the retry ladder, failed.
type Queue struct {
	store      Store
	dispatcher Dispatcher
	handlers   map[TaskType]Handler
	bus        events.Bus
	clock      clock.Clock
	log        *logger.Logger
}

// NewQueue wires a queue. Handlers are registered with Register.
func NewQueue(store Store, dispatcher Dispatcher, bus events.Bus, clk clock.Clock, log *logger.Logger) *Queue {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Queue{
		store:      store,
		dispatcher: dispatcher,
		handlers:   make(map[TaskType]Handler),
		bus:        bus,
		clock:      clk,
		log:        log,
	}
}

// SetDispatcher swaps the transport after construction.
func (q *Queue) SetDispatcher(d Dispatcher) {
	q.dispatcher = d
}

// Register installs the handler for a task type.
func (q *Queue) Register(taskType TaskType, h Handler) {
	q.handlers[taskType] = h
}

// Supports reports whether a handler is registered for taskType.
func (q *Queue) Supports(taskType TaskType) bool {
	_, ok := q.handlers[taskType]
	return ok
}

// EnqueueResult reports a batch enqueue. TaskIDs lists every stored task;
// Dispatched counts those whose first attempt was handed to the dispatcher.
type EnqueueResult struct {
	TaskIDs    []uuid.UUID
	Dispatched int
}

// EnqueueAll stores every task of a claim in one transaction and dispatches
// them only after it commits, so no attempt can complete while a sibling is
// still missing from the aggregation barrier. A task whose dispatch fails is
// marked failed; the returned error joins those failures.
func (q *Queue) EnqueueAll(ctx context.Context, claimID uuid.UUID, taskTypes []TaskType, input Input) (EnqueueResult, error) {
	if len(taskTypes) == 0 {
		return EnqueueResult{}, nil
	}
	now := q.clock.Now()
	pending := make([]Task, 0, len(taskTypes))
	for _, taskType := range taskTypes {
		if !taskType.Valid() {
			return EnqueueResult{}, apperr.Validation(fmt.Sprintf("unknown ai task type %q", taskType))
		}
		pending = append(pending, Task{
			ID:         uuid.New(),
			ClaimID:    claimID,
			TaskType:   taskType,
			Status:     StatusPending,
			Input:      input,
			MaxRetries: MaxRetries,
			CreatedAt:  now,
		})
	}

	stored, err := q.store.InsertBatch(ctx, pending)
	if err != nil {
		return EnqueueResult{}, err
	}

	res := EnqueueResult{TaskIDs: make([]uuid.UUID, 0, len(stored))}
	var errs []error
	for _, task := range stored {
		res.TaskIDs = append(res.TaskIDs, task.ID)
		if err := q.dispatchFirst(ctx, task); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Dispatched++
	}
	return res, errors.Join(errs...)
}

// Enqueue is EnqueueAll for a single task.
func (q *Queue) Enqueue(ctx context.Context, claimID uuid.UUID, taskType TaskType, input Input) (uuid.UUID, error) {
	res, err := q.EnqueueAll(ctx, claimID, []TaskType{taskType}, input)
	if len(res.TaskIDs) == 0 {
		return uuid.Nil, err
	}
	return res.TaskIDs[0], err
}

func (q *Queue) dispatchFirst(ctx context.Context, task Task) error {
	taskID, claimID, taskType := task.ID.String(), task.ClaimID.String(), string(task.TaskType)
	if err := q.dispatcher.Dispatch(ctx, task.ID, 0); err != nil {
		msg := fmt.Sprintf("dispatch failed: %v", err)
		if markErr := q.store.MarkFailed(ctx, task.ID, msg, q.clock.Now()); markErr != nil {
			q.log.DatabaseError("aitasks.enqueue.mark_failed", markErr)
		}
		q.log.TaskEvent("ai_task_dispatch_failed", taskID, claimID, taskType, 0, err)
		return fmt.Errorf("dispatch ai task %s: %w", task.ID, err)
	}
	q.log.TaskEvent("ai_task_enqueued", taskID, claimID, taskType, 0, nil)
	return nil
}

// Process runs one attempt. Handler failures are absorbed by the retry ladder
// and do not surface as errors; only infrastructure failures do.
func (q *Queue) Process(ctx context.Context, taskID uuid.UUID) error {
	task, claimed, err := q.store.ClaimPending(ctx, taskID, q.clock.Now())
	if err != nil {
		return err
	}
	if !claimed {
		q.log.Debug("ai task not pending, skipping attempt", "task_id", taskID)
		return nil
	}

	q.log.TaskEvent("ai_task_started", task.ID.String(), task.ClaimID.String(), string(task.TaskType), task.RetryCount, nil)
	var startedAt time.Time
	if task.ProcessedAt != nil {
		startedAt = *task.ProcessedAt
	}

	result, err := q.run(ctx, task)
	if err != nil {
		return q.fail(ctx, task, err)
	}

	report, err := json.Marshal(result.Report)
	if err != nil {
		return q.fail(ctx, task, fmt.Errorf("encode report: %w", err))
	}
	output, err := json.Marshal(result)
	if err != nil {
		return q.fail(ctx, task, fmt.Errorf("encode output: %w", err))
	}

	barrier, err := q.store.Complete(ctx, CompleteParams{
		TaskID:    task.ID,
		ClaimID:   task.ClaimID,
		TaskType:  task.TaskType,
		Output:    output,
		Report:    report,
		Result:    result,
		StartedAt: startedAt,
		Now:       q.clock.Now(),
	})
	if err != nil {
		return q.fail(ctx, task, fmt.Errorf("apply result: %w", err))
	}

	q.log.TaskEvent("ai_task_completed", task.ID.String(), task.ClaimID.String(), string(task.TaskType), task.RetryCount, nil)

	if barrier != nil {
		q.log.Info("claim ai processing complete", "claim_id", barrier.ClaimID, "claim_number", barrier.ClaimNumber)
		q.publish(ctx, events.ClaimAIProcessed{
			BaseEvent: events.NewBaseEvent(),
			ClaimRef: events.ClaimRef{
				ClaimID:     barrier.ClaimID,
				ClaimNumber: barrier.ClaimNumber,
				FarmerID:    barrier.FarmerID,
				InsurerID:   barrier.InsurerID,
			},
			ValidationFlags: barrier.ValidationFlags,
			DamagePercent:   barrier.DamagePercent,
		})
	}
	return nil
}

func (q *Queue) run(ctx context.Context, task Task) (result Result, err error) {
	h, ok := q.handlers[task.TaskType]
	if !ok {
		return Result{}, fmt.Errorf("no handler registered for %s", task.TaskType)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, task.Input)
}

// fail applies the retry ladder: retries 1..3 wait 1s, 5s, 15s, and a failure
// at retry 3 dead-letters the task.
func (q *Queue) fail(ctx context.Context, task Task, cause error) error {
	msg := cause.Error()

	if task.RetryCount < task.MaxRetries {
		next := task.RetryCount + 1
		if err := q.store.ScheduleRetry(ctx, task.ID, next, msg); err != nil {
			return err
		}
		delay := RetryDelays[next-1]
		q.log.TaskEvent("ai_task_retry_scheduled", task.ID.String(), task.ClaimID.String(), string(task.TaskType), next, cause)
		if err := q.dispatcher.Dispatch(ctx, task.ID, delay); err != nil {
			dispatchMsg := fmt.Sprintf("%s; retry dispatch failed: %v", msg, err)
			if markErr := q.store.MarkFailed(ctx, task.ID, dispatchMsg, q.clock.Now()); markErr != nil {
				return markErr
			}
			q.log.TaskEvent("ai_task_dispatch_failed", task.ID.String(), task.ClaimID.String(), string(task.TaskType), next, err)
		}
		return nil
	}

	if err := q.store.MarkFailed(ctx, task.ID, msg, q.clock.Now()); err != nil {
		return err
	}
	q.log.TaskEvent("ai_task_dead_lettered", task.ID.String(), task.ClaimID.String(), string(task.TaskType), task.RetryCount, cause)
	q.publish(ctx, events.AITaskDeadLettered{
		BaseEvent: events.NewBaseEvent(),
		TaskID:    task.ID,
		ClaimID:   task.ClaimID,
		TaskType:  string(task.TaskType),
		Error:     msg,
	})
	return nil
}

// GetFailedTasks lists the dead-letter queue, newest first.
func (q *Queue) GetFailedTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}
	if limit > maxFailedLimit {
		limit = maxFailedLimit
	}
	return q.store.ListFailed(ctx, limit)
}

// RetryTask gives a failed task a fresh retry budget and dispatches it.
func (q *Queue) RetryTask(ctx context.Context, taskID uuid.UUID) (Task, error) {
	task, reset, err := q.store.ResetForRetry(ctx, taskID, q.clock.Now())
	if err != nil {
		return Task{}, err
	}
	if !reset {
		if _, getErr := q.store.Get(ctx, taskID); getErr != nil {
			return Task{}, getErr
		}
		return Task{}, apperr.Conflict("only failed tasks can be retried").WithCode(apperr.CodeInvalidTransition)
	}

	q.log.TaskEvent("ai_task_manual_retry", task.ID.String(), task.ClaimID.String(), string(task.TaskType), 0, nil)
	if err := q.dispatcher.Dispatch(ctx, task.ID, 0); err != nil {
		msg := fmt.Sprintf("dispatch failed: %v", err)
		if markErr := q.store.MarkFailed(ctx, task.ID, msg, q.clock.Now()); markErr != nil {
			q.log.DatabaseError("aitasks.retry.mark_failed", markErr)
		}
		return Task{}, apperr.Wrap(apperr.KindInternal, "could not dispatch retried task", err)
	}
	return task, nil
}

// RecoverStalled rescues tasks that no worker is going to finish. An attempt
// left processing for longer than timeout, after a crash or a lost status
// write, counts as a failed attempt and goes through the retry ladder. A
// pending task untouched for as long lost its dispatch and is dispatched
// again. It returns how many tasks were acted on.
func (q *Queue) RecoverStalled(ctx context.Context, timeout time.Duration, limit int) (int, error) {
	stalled, err := q.store.ListStalled(ctx, q.clock.Now().Add(-timeout), limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, task := range stalled {
		switch task.Status {
		case StatusProcessing:
			err = q.fail(ctx, task, fmt.Errorf("%w after %s", errAttemptTimedOut, timeout))
		case StatusPending:
			err = q.dispatcher.Dispatch(ctx, task.ID, 0)
		default:
			continue
		}
		if err != nil {
			q.log.TaskEvent("ai_task_recovery_failed", task.ID.String(), task.ClaimID.String(), string(task.TaskType), task.RetryCount, err)
			continue
		}
		q.log.TaskEvent("ai_task_recovered", task.ID.String(), task.ClaimID.String(), string(task.TaskType), task.RetryCount, nil)
		recovered++
	}
	return recovered, nil
}

// ListClaimTasks returns every task of one claim.
func (q *Queue) ListClaimTasks(ctx context.Context, claimID uuid.UUID) ([]Task, error) {
	return q.store.ListByClaim(ctx, claimID)
}

// ListStuckClaims returns claims created more than olderThan ago whose tasks
// have not all completed.
func (q *Queue) ListStuckClaims(ctx context.Context, olderThan time.Duration, limit int) ([]StuckClaim, error) {
	return q.store.ListStuckClaims(ctx, q.clock.Now().Add(-olderThan), limit)
}

func (q *Queue) publish(ctx context.Context, event events.Event) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(ctx, event)
}
