package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sternrassler/catalog-cache/pkg/catalog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	upstreamRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	upstreamRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	// Values <= 1 disable retries.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retrying decorates an Upstream with exponential backoff retries for server
// and network failures. Client (4xx) failures are returned immediately.
type Retrying struct {
	next   Upstream
	config RetryConfig
}

// NewRetrying wraps next.
func NewRetrying(next Upstream, config RetryConfig) *Retrying {
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}
	return &Retrying{next: next, config: config}
}

// FetchCategories implements Upstream.
func (r *Retrying) FetchCategories(ctx context.Context) ([]catalog.Category, error) {
	var out []catalog.Category
	err := retryWithBackoff(ctx, r.config, func() (err error) {
		out, err = r.next.FetchCategories(ctx)
		return err
	})
	return out, err
}

// FetchProducts implements Upstream.
func (r *Retrying) FetchProducts(ctx context.Context, categoryID, offset, limit int) ([]catalog.Product, error) {
	var out []catalog.Product
	err := retryWithBackoff(ctx, r.config, func() (err error) {
		out, err = r.next.FetchProducts(ctx, categoryID, offset, limit)
		return err
	})
	return out, err
}

// FetchProductCount implements Upstream.
func (r *Retrying) FetchProductCount(ctx context.Context, categoryID int) (int, error) {
	var out int
	err := retryWithBackoff(ctx, r.config, func() (err error) {
		out, err = r.next.FetchProductCount(ctx, categoryID)
		return err
	})
	return out, err
}

// FetchOffers implements Upstream.
func (r *Retrying) FetchOffers(ctx context.Context, productID, offset, limit int) ([]catalog.Offer, error) {
	var out []catalog.Offer
	err := retryWithBackoff(ctx, r.config, func() (err error) {
		out, err = r.next.FetchOffers(ctx, productID, offset, limit)
		return err
	})
	return out, err
}

// FetchOfferCount implements Upstream.
func (r *Retrying) FetchOfferCount(ctx context.Context, productID int) (int, error) {
	var out int
	err := retryWithBackoff(ctx, r.config, func() (err error) {
		out, err = r.next.FetchOfferCount(ctx, productID)
		return err
	})
	return out, err
}

// retryWithBackoff executes a function with exponential backoff retry logic.
// It respects context cancellation and adds jitter to prevent thundering herd.
// The last error stays reachable through errors.As.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	attempts := max(config.MaxAttempts, 1)

	var lastErr error
	var errorClass ErrorClass
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Upstream request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = Classify(err)

		if !shouldRetry(errorClass) || attempts == 1 {
			return lastErr
		}

		if attempt >= attempts {
			break
		}

		upstreamRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		upstreamRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying upstream request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, lastErr)
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	upstreamRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	log.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", attempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
