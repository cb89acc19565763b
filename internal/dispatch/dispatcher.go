// Package dispatch реализует доставку позиций заказа в леджер с ограниченным числом повторов.
package dispatch

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/albinvayalil/emartCheck/internal/ledger"
	"github.com/albinvayalil/emartCheck/internal/metrics"
	"github.com/albinvayalil/emartCheck/internal/model"
)

const (
	// MaxAttempts ограничивает число попыток записи одной позиции.
	MaxAttempts = 3
	// BaseBackoff задаёт паузу после первой неудачной попытки; далее пауза удваивается.
	BaseBackoff = time.Second
)

// Recorder описывает один вызов записи в леджер.
type Recorder interface {
	Record(ctx context.Context, payload model.RecordPayload) ledger.Outcome
}

// SleepFunc ожидает указанное время или отмену контекста.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Attempt описывает одну попытку доставки.
type Attempt struct {
	Number  int
	Outcome ledger.Outcome
}

// Result содержит итог доставки позиции и историю попыток.
type Result struct {
	Outcome  model.ItemOutcome
	Payload  model.RecordPayload
	Attempts []Attempt
}

// Batch содержит общие для всех позиций поля заказа.
type Batch struct {
	ID          string
	UserID      string
	TotalAmount decimal.Decimal
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithTrailingBackoff включает или отключает паузу после последней неудачной попытки.
func WithTrailingBackoff(enabled bool) Option {
	return func(d *Dispatcher) {
		d.trailingBackoff = enabled
	}
}

// WithRateLimit ограничивает частоту обращений к леджеру. Значение rps <= 0 снимает ограничение.
func WithRateLimit(rps float64) Option {
	return func(d *Dispatcher) {
		if rps <= 0 {
			d.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics подключает сбор метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithSleep заменяет функцию ожидания между попытками.
func WithSleep(sleep SleepFunc) Option {
	return func(d *Dispatcher) {
		d.sleep = sleep
	}
}

// Dispatcher доставляет позиции заказа в леджер, повторяя неудачные попытки
// с экспоненциальной паузой 1s, 2s, 4s.
type Dispatcher struct {
	recorder        Recorder
	logger          *zap.Logger
	metrics         *metrics.Metrics
	limiter         *rate.Limiter
	sleep           SleepFunc
	trailingBackoff bool
}

// NewDispatcher создаёт Dispatcher. По умолчанию пауза после последней попытки сохраняется.
func NewDispatcher(recorder Recorder, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		recorder:        recorder,
		logger:          logger,
		sleep:           sleepContext,
		trailingBackoff: true,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch доставляет одну позицию. Ошибки транспорта и отказы леджера не выходят наружу:
// они учитываются как неудачные попытки, итог: Delivered или Exhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, batch Batch, item model.OrderItem) Result {
	payload := model.NewRecordPayload(batch.UserID, batch.TotalAmount, item)
	res := Result{
		Outcome: model.ItemExhausted,
		Payload: payload,
	}

	log := d.logger.With(
		zap.String("batch_id", batch.ID),
		zap.String("user_id", batch.UserID),
		zap.String("product_id", item.ProductID),
	)

	backoff := retry.WithMaxRetries(MaxAttempts, retry.NewExponential(BaseBackoff))

	for n := 1; n <= MaxAttempts; n++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				log.Warn("ledger rate limiter wait aborted", zap.Int("attempt", n), zap.Error(err))
				break
			}
		}

		start := time.Now()
		out := d.recorder.Record(ctx, payload)
		d.metrics.ObserveAttempt(out.Result.String(), time.Since(start).Seconds())

		res.Attempts = append(res.Attempts, Attempt{Number: n, Outcome: out})

		if out.OK() {
			log.Info("ledger record accepted",
				zap.Int("attempt", n),
				zap.Int("status", out.StatusCode),
			)
			res.Outcome = model.ItemDelivered
			break
		}

		switch out.Result {
		case ledger.Rejected:
			log.Warn("ledger rejected record",
				zap.Int("attempt", n),
				zap.Int("status", out.StatusCode),
				zap.String("body", out.Body),
			)
		default:
			log.Warn("ledger request failed",
				zap.Int("attempt", n),
				zap.String("reason", out.Reason),
			)
		}

		delay, stop := backoff.Next()
		if stop || (n == MaxAttempts && !d.trailingBackoff) {
			break
		}

		if err := d.sleep(ctx, delay); err != nil {
			log.Warn("dispatch cancelled during backoff", zap.Int("attempt", n), zap.Error(err))
			break
		}
	}

	if res.Outcome == model.ItemExhausted {
		log.Error("ledger attempts exhausted", zap.Int("attempts", len(res.Attempts)))
	}
	d.metrics.ObserveItem(res.Outcome.String())

	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
