package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// inversePrecision is the number of decimal places kept when deriving a rate from its inverse.
const inversePrecision = 10

// Translator converts amounts between currencies at a posting date.
type Translator interface {
	Rate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
	Translate(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error)
}

// BreakerConfig tunes the circuit breaker around the rate store.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Service resolves rates from the store through a cache and a circuit breaker.
type Service struct {
	store   RateStore
	cache   *Cache
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
}

// NewService constructs the translation service.
func NewService(store RateStore, cache *Cache, cfg BreakerConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	svc := &Service{store: store, cache: cache, logger: logger}
	svc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fx-rates",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var missing *MissingRateError
			return err == nil || errors.As(err, &missing)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("fx breaker state changed", slog.String("breaker", name),
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return svc
}

// Rate returns the multiplier converting from into to on the given date. A missing direct
// quote is derived from the inverse quote.
func (s *Service) Rate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	from, to = normalise(from), normalise(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if rate, ok, err := s.cache.Get(ctx, from, to, day); err != nil {
		s.logger.Warn("fx cache read failed", slog.Any("error", err))
	} else if ok {
		return rate, nil
	}

	key := cacheKey(from, to, day)
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.breaker.Execute(func() (interface{}, error) {
			return s.resolve(ctx, from, to, day)
		})
	})
	if err != nil {
		var missing *MissingRateError
		if errors.As(err, &missing) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: %s->%s: %w", ErrTranslationUnavailable, from, to, err)
	}
	rate := value.(decimal.Decimal)
	if err := s.cache.Set(ctx, from, to, day, rate); err != nil {
		s.logger.Warn("fx cache write failed", slog.Any("error", err))
	}
	return rate, nil
}

func (s *Service) resolve(ctx context.Context, from, to string, day time.Time) (decimal.Decimal, error) {
	rate, ok, err := s.store.LatestRate(ctx, from, to, day)
	if err != nil {
		return decimal.Zero, err
	}
	if ok && rate.IsPositive() {
		return rate, nil
	}
	inverse, ok, err := s.store.LatestRate(ctx, to, from, day)
	if err != nil {
		return decimal.Zero, err
	}
	if ok && inverse.IsPositive() {
		return decimal.NewFromInt(1).DivRound(inverse, inversePrecision), nil
	}
	return decimal.Zero, &MissingRateError{From: from, To: to, Date: day}
}

// Translate converts amount and rounds it to the minor unit of the target currency.
func (s *Service) Translate(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error) {
	rate, err := s.Rate(ctx, from, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return Convert(amount, rate, to), nil
}

// Convert applies a rate and rounds to the target currency.
func Convert(amount, rate decimal.Decimal, currency string) decimal.Decimal {
	return Round(amount.Mul(rate), currency)
}

// Round rounds to the ISO 4217 minor unit of currency, two places when the code is unknown.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	places := int32(2)
	if cur := money.GetCurrency(normalise(currency)); cur != nil {
		places = int32(cur.Fraction)
	}
	return amount.Round(places)
}

func normalise(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
