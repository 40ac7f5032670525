/*
Package scheduler runs the redelivery loop: every interval it pushes due,
still-queued scheduled messages to their devices.

Policy:
  - Ticks are single-flight. A Tick that starts while another is running
    returns immediately with Skipped set.
  - A candidate whose device is offline stays queued and is retried on every
    later tick. There is no backoff or attempt ceiling.
  - Candidates are isolated: one failing candidate never stops the others.
*/
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/adapter/pubsub"
	"github.com/hadlocna/PaperDrop/internal/domain/event"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"github.com/hadlocna/PaperDrop/internal/service"
	"github.com/hadlocna/PaperDrop/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Candidate outcomes reported to metrics.
const (
	resultDelivered = "delivered"
	resultOffline   = "offline"
	resultSettled   = "settled"
	resultFailed    = "failed"
)

// TickReport summarizes one scan.
type TickReport struct {
	Skipped    bool
	Candidates int
	Delivered  int
	Offline    int
	Failed     int
}

type Redeliverer struct {
	messages    store.MessageStore
	dispatcher  service.Dispatcher
	events      pubsub.EventDispatcher
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	interval    time.Duration
	concurrency int
	now         func() time.Time

	running atomic.Bool
}

func NewRedeliverer(
	st store.Store,
	dispatcher service.Dispatcher,
	events pubsub.EventDispatcher,
	m *metrics.Metrics,
	tracer trace.Tracer,
	cfg *config.Config,
	logger *slog.Logger,
) *Redeliverer {
	return &Redeliverer{
		messages:    st,
		dispatcher:  dispatcher,
		events:      events,
		metrics:     m,
		tracer:      tracer,
		logger:      logger.With("component", "redelivery"),
		interval:    cfg.Scheduler.Interval,
		concurrency: cfg.Scheduler.Concurrency,
		now:         time.Now,
	}
}

// Run ticks every interval until ctx is cancelled.
func (r *Redeliverer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("[REDELIVERY] loop started", "interval", r.interval, "concurrency", r.concurrency)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("[REDELIVERY] loop stopped")
			return
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("[REDELIVERY] tick failed", "err", err)
			}
			// [NO_BACKLOG] A tick that outlived the period must not trigger an
			// immediate second scan.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// Tick performs one scan. The returned error covers the candidate query
// only; per-candidate failures are counted in the report.
func (r *Redeliverer) Tick(ctx context.Context) (TickReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Debug("[REDELIVERY] tick skipped, previous still running")
		return TickReport{Skipped: true}, nil
	}
	defer r.running.Store(false)

	start := time.Now()
	defer func() { r.metrics.ObserveTick(time.Since(start).Seconds()) }()

	ctx, span := r.tracer.Start(ctx, "redelivery.tick")
	defer span.End()

	due, err := r.messages.GetDueScheduledMessages(ctx, r.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return TickReport{}, err
	}

	report := TickReport{Candidates: len(due)}
	outcomes := make([]string, len(due))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, msg := range due {
		g.Go(func() error {
			outcomes[i] = r.redeliver(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		r.metrics.ObserveCandidate(o)
		switch o {
		case resultDelivered:
			report.Delivered++
		case resultOffline:
			report.Offline++
		case resultFailed:
			report.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("redelivery.candidates", report.Candidates),
		attribute.Int("redelivery.delivered", report.Delivered),
		attribute.Int("redelivery.failed", report.Failed),
	)
	if report.Candidates > 0 {
		r.logger.Info("[REDELIVERY] tick done",
			"candidates", report.Candidates,
			"delivered", report.Delivered,
			"offline", report.Offline,
			"failed", report.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return report, nil
}

// redeliver handles one candidate and never panics the tick.
func (r *Redeliverer) redeliver(ctx context.Context, msg *model.Message) (outcome string) {
	log := r.logger.With("message_id", msg.ID, "device_id", msg.DeviceID)

	defer func() {
		if p := recover(); p != nil {
			log.Error("[REDELIVERY] candidate panicked", "panic", p)
			outcome = resultFailed
		}
	}()

	res, err := r.dispatcher.Dispatch(ctx, msg.DeviceID, model.NewPrintJobEnvelope(msg))
	if err != nil {
		log.Warn("[REDELIVERY] dispatch failed", "err", err)
		return resultFailed
	}
	if res == model.Offline {
		return resultOffline
	}

	sentAt := r.now()
	err = r.messages.MarkMessageSent(ctx, msg.ID, sentAt)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidTransition):
		// The device already reported back, or another path sent it first.
		return resultSettled
	default:
		log.Error("[REDELIVERY] mark sent failed", "err", err)
		return resultFailed
	}

	if r.events != nil {
		if err := r.events.Publish(ctx, event.NewMessageSent(msg, sentAt)); err != nil {
			log.Warn("[EVENTS] publish failed", "kind", event.MessageSent, "err", err)
		}
	}
	return resultDelivered
}
