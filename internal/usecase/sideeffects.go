package usecase

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// SideEffects groups the collaborators touched after a response is sent.
// Any of them may be nil; a nil effect is simply skipped.
type SideEffects struct {
	History domain.EvaluationRepository
	Usage   domain.UsageCounterRepository
	XP      domain.XPLedger
}

type effectTask struct {
	record domain.Evaluation
	award  *domain.XPAward
}

// SideEffectDispatcher runs post-evaluation effects on a small worker pool.
// Effects are independent: a history failure never blocks the usage bump or
// the XP award, and nothing here reaches the client.
type SideEffectDispatcher struct {
	fx      SideEffects
	tasks   chan effectTask
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewSideEffectDispatcher starts workers draining the effect queue.
func NewSideEffectDispatcher(fx SideEffects, queueSize, workers int, timeout time.Duration) *SideEffectDispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &SideEffectDispatcher{
		fx:      fx,
		tasks:   make(chan effectTask, queueSize),
		timeout: timeout,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch queues the effects for one evaluation. It never blocks the
// caller: when the queue is full the task is dropped and counted.
func (d *SideEffectDispatcher) Dispatch(record domain.Evaluation, award *domain.XPAward) {
	select {
	case d.tasks <- effectTask{record: record, award: award}:
	default:
		slog.Error("side effect queue full, dropping task", slog.String("trace_id", record.TraceID))
		observability.SideEffectFailuresTotal.WithLabelValues("enqueue").Inc()
	}
}

// Close stops intake and waits for queued tasks to drain.
func (d *SideEffectDispatcher) Close() {
	close(d.tasks)
	d.wg.Wait()
}

func (d *SideEffectDispatcher) worker() {
	defer d.wg.Done()
	for t := range d.tasks {
		d.run(t)
	}
}

// run executes the three effects with a fresh context each. The request
// context is long gone by the time these fire.
func (d *SideEffectDispatcher) run(t effectTask) {
	if d.fx.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.fx.History.Save(ctx, t.record); err != nil {
			slog.Error("history save failed", slog.String("trace_id", t.record.TraceID), slog.Any("error", err))
			observability.SideEffectFailuresTotal.WithLabelValues("history").Inc()
		}
		cancel()
	}
	if d.fx.Usage != nil && t.record.TemplateID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if _, err := d.fx.Usage.Increment(ctx, t.record.TemplateID, t.record.UserID, t.record.CreatedAt); err != nil {
			slog.Error("usage increment failed", slog.String("trace_id", t.record.TraceID), slog.Any("error", err))
			observability.SideEffectFailuresTotal.WithLabelValues("usage").Inc()
		}
		cancel()
	}
	if d.fx.XP != nil && t.award != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if total, err := d.fx.XP.Award(ctx, *t.award); err != nil {
			slog.Error("xp award failed", slog.String("trace_id", t.record.TraceID), slog.Any("error", err))
			observability.SideEffectFailuresTotal.WithLabelValues("xp").Inc()
		} else {
			slog.Debug("xp awarded", slog.String("trace_id", t.record.TraceID), slog.Int64("total", total))
		}
		cancel()
	}
}
