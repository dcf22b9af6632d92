package aitasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"claims_backend/platform/clock"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
)

// Processor runs one attempt of a task.
type Processor interface {
	Process(ctx context.Context, taskID uuid.UUID) error
}

// LocalDispatcher runs attempts in-process on clock timers. It serves
// development without Redis and tests driven by a fake clock.
type LocalDispatcher struct {
	clock     clock.Clock
	log       *logger.Logger
	mu        sync.Mutex
	processor Processor
	base      context.Context
}

// NewLocalDispatcher builds a dispatcher; Bind must be called before use.
func NewLocalDispatcher(clk clock.Clock, log *logger.Logger) *LocalDispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	return &LocalDispatcher{clock: clk, log: log, base: context.Background()}
}

// Bind sets the processor that timers invoke.
func (d *LocalDispatcher) Bind(p Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processor = p
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, taskID uuid.UUID, delay time.Duration) error {
	d.mu.Lock()
	p := d.processor
	d.mu.Unlock()
	if p == nil {
		return errors.New("local dispatcher has no processor bound")
	}

	d.clock.AfterFunc(delay, func() {
		if err := p.Process(d.base, taskID); err != nil {
			d.log.Error("local ai task attempt failed", "task_id", taskID, "error", err)
		}
	})
	return nil
}

var _ Dispatcher = (*LocalDispatcher)(nil)
