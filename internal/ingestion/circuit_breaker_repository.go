package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"invoice-intake/internal/config"
	"invoice-intake/pkg/circuitbreaker"
)

// CircuitBreakerRepository shields the intake store behind a breaker. Store
// failures remain fatal to the caller; the breaker only stops hammering a
// store that is already down.
type CircuitBreakerRepository struct {
	repo IntakeRepository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo IntakeRepository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}

	cbConfig := circuitbreaker.DefaultConfig("intake-store")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) FindByDedupeKey(ctx context.Context, dedupeKey string) (*IngestedInvoice, error) {
	if r.cb == nil {
		return r.repo.FindByDedupeKey(ctx, dedupeKey)
	}
	return r.executeInvoice(ctx, func() (interface{}, error) {
		return r.repo.FindByDedupeKey(ctx, dedupeKey)
	})
}

func (r *CircuitBreakerRepository) SaveNew(ctx context.Context, invoice *IngestedInvoice) (*IngestedInvoice, error) {
	if r.cb == nil {
		return r.repo.SaveNew(ctx, invoice)
	}
	return r.executeInvoice(ctx, func() (interface{}, error) {
		return r.repo.SaveNew(ctx, invoice)
	})
}

func (r *CircuitBreakerRepository) AppendHistory(ctx context.Context, dedupeKey string, source Source, ingestedAt time.Time, status string) (*IngestedInvoice, error) {
	if r.cb == nil {
		return r.repo.AppendHistory(ctx, dedupeKey, source, ingestedAt, status)
	}
	return r.executeInvoice(ctx, func() (interface{}, error) {
		return r.repo.AppendHistory(ctx, dedupeKey, source, ingestedAt, status)
	})
}

func (r *CircuitBreakerRepository) ListBySource(ctx context.Context, source *Source, newestFirst bool) ([]IngestedInvoice, error) {
	if r.cb == nil {
		return r.repo.ListBySource(ctx, source, newestFirst)
	}

	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.repo.ListBySource(ctx, source, newestFirst)
	})
	r.cb.RecordRequest(err == nil)
	if err != nil {
		return nil, r.wrapError(err)
	}

	invoices, ok := result.([]IngestedInvoice)
	if !ok {
		return nil, fmt.Errorf("repository returned invalid result type")
	}
	return invoices, nil
}

// State reports the breaker state, or "disabled" when no breaker is wired.
func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}

func (r *CircuitBreakerRepository) executeInvoice(ctx context.Context, fn func() (interface{}, error)) (*IngestedInvoice, error) {
	result, err := r.cb.ExecuteWithContext(ctx, fn)
	r.cb.RecordRequest(err == nil)
	if err != nil {
		return nil, r.wrapError(err)
	}

	if result == nil {
		return nil, nil
	}
	invoice, ok := result.(*IngestedInvoice)
	if !ok {
		return nil, fmt.Errorf("repository returned invalid result type")
	}
	return invoice, nil
}

func (r *CircuitBreakerRepository) wrapError(err error) error {
	if r.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for intake-store: %w", err)
	}
	return err
}
