package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/sony/gobreaker"
)

var _ Store = (*Breaker)(nil)

// BreakerSettings tunes when repeated store failures short-circuit callers.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Breaker decorates a Store with a circuit breaker. While the breaker is open
// every call fails fast with model.ErrStoreUnavailable.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Store, settings BreakerSettings, logger *slog.Logger) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		// [DOMAIN_OUTCOMES] Lookups that miss and guarded updates that refuse
		// are answers from a healthy store. A caller abandoning its own request
		// says nothing about the store either.
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err) || isCallerAbort(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[STORE] circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Breaker{next: next, cb: cb}
}

func isDomainError(err error) bool {
	return errors.Is(err, model.ErrDeviceNotFound) ||
		errors.Is(err, model.ErrMessageNotFound) ||
		errors.Is(err, model.ErrUserNotFound) ||
		errors.Is(err, model.ErrDuplicatePairingCode) ||
		errors.Is(err, model.ErrDeviceAlreadyClaimed) ||
		errors.Is(err, model.ErrInvalidTransition)
}

func isCallerAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, mapBreakerError(err)
	}
	return res.(T), nil
}

func exec(b *Breaker, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return mapBreakerError(err)
}

func mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return err
}

func (b *Breaker) GetDeviceByPairingCode(ctx context.Context, code string) (*model.Device, error) {
	return call(b, func() (*model.Device, error) { return b.next.GetDeviceByPairingCode(ctx, code) })
}

func (b *Breaker) GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	return call(b, func() (*model.Device, error) { return b.next.GetDevice(ctx, id) })
}

func (b *Breaker) CreateDevice(ctx context.Context, device *model.Device) error {
	return exec(b, func() error { return b.next.CreateDevice(ctx, device) })
}

func (b *Breaker) UpdateDevicePresence(ctx context.Context, id uuid.UUID, status model.DeviceStatus, lastSeen time.Time) error {
	return exec(b, func() error { return b.next.UpdateDevicePresence(ctx, id, status, lastSeen) })
}

func (b *Breaker) TouchDevice(ctx context.Context, id uuid.UUID, lastSeen time.Time) error {
	return exec(b, func() error { return b.next.TouchDevice(ctx, id, lastSeen) })
}

func (b *Breaker) ClaimDevice(ctx context.Context, id, ownerID uuid.UUID) error {
	return exec(b, func() error { return b.next.ClaimDevice(ctx, id, ownerID) })
}

func (b *Breaker) ResetPresence(ctx context.Context, at time.Time) (int, error) {
	return call(b, func() (int, error) { return b.next.ResetPresence(ctx, at) })
}

func (b *Breaker) CreateMessage(ctx context.Context, msg *model.Message) error {
	return exec(b, func() error { return b.next.CreateMessage(ctx, msg) })
}

func (b *Breaker) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	return call(b, func() (*model.Message, error) { return b.next.GetMessage(ctx, id) })
}

func (b *Breaker) GetDueScheduledMessages(ctx context.Context, now time.Time) ([]*model.Message, error) {
	return call(b, func() ([]*model.Message, error) { return b.next.GetDueScheduledMessages(ctx, now) })
}

func (b *Breaker) MarkMessageSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return exec(b, func() error { return b.next.MarkMessageSent(ctx, id, at) })
}

func (b *Breaker) ScheduleMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	return exec(b, func() error { return b.next.ScheduleMessage(ctx, id, at) })
}

func (b *Breaker) UpdateMessageState(ctx context.Context, update model.StateUpdate) error {
	return exec(b, func() error { return b.next.UpdateMessageState(ctx, update) })
}

func (b *Breaker) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return call(b, func() (*model.User, error) { return b.next.GetUser(ctx, id) })
}

func (b *Breaker) PutUser(ctx context.Context, user *model.User) error {
	return exec(b, func() error { return b.next.PutUser(ctx, user) })
}

func (b *Breaker) Close() error { return b.next.Close() }
