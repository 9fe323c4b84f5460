package ingestion

import (
	"context"
	"fmt"
	"time"

	"invoice-intake/internal/constants"
	"invoice-intake/internal/logger"
	"invoice-intake/pkg/metrics"
)

// SourceFetcher is the port a configured upstream implements: one call
// returns the batch of newly available payloads, or fails.
type SourceFetcher interface {
	FetchNewInvoices(ctx context.Context) ([]SourceInvoicePayload, error)
}

// ErrSourceNotConfigured is returned by batch processing when the upstream
// for the requested source was never supplied. A configuration error, not a
// sync failure: nothing is recorded against the alert sink.
var ErrSourceNotConfigured = fmt.Errorf("source fetcher is not configured")

// Service is the single writer of invoice intake state. Every sighting of a
// dedupe key flows through ingestOne; all storage lives behind the injected
// repository and sink.
type Service struct {
	repo       IntakeRepository
	alerts     AlertSink
	apEmail    SourceFetcher
	accounting SourceFetcher
	keyFunc    KeyFunc
	logger     logger.Logger
}

type ServiceOption func(*Service)

func WithAPEmailSource(fetcher SourceFetcher) ServiceOption {
	return func(s *Service) {
		s.apEmail = fetcher
	}
}

func WithAccountingSource(fetcher SourceFetcher) ServiceOption {
	return func(s *Service) {
		s.accounting = fetcher
	}
}

// WithKeyFunc swaps the dedupe policy.
func WithKeyFunc(keyFunc KeyFunc) ServiceOption {
	return func(s *Service) {
		s.keyFunc = keyFunc
	}
}

func NewService(repo IntakeRepository, alerts AlertSink, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		alerts:  alerts,
		keyFunc: BuildDedupeKey,
		logger:  log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IngestAPEmailInvoice records one sighting arriving from the AP mailbox.
func (s *Service) IngestAPEmailInvoice(ctx context.Context, sourceID string, metadata InvoiceMetadata, fileHash string, processedAt time.Time) (*IngestedInvoice, error) {
	return s.ingestOne(ctx, SourceAPEmail, sourceID, metadata, fileHash, processedAt)
}

// IngestAccountingInvoice records one sighting arriving from the accounting
// system.
func (s *Service) IngestAccountingInvoice(ctx context.Context, sourceID string, metadata InvoiceMetadata, fileHash string, processedAt time.Time) (*IngestedInvoice, error) {
	return s.ingestOne(ctx, SourceAccountingSystem, sourceID, metadata, fileHash, processedAt)
}

// ProcessAPEmailInbox runs one sync round against the AP mailbox.
func (s *Service) ProcessAPEmailInbox(ctx context.Context, processedAt time.Time) ([]IngestedInvoice, error) {
	return s.processBatch(ctx, SourceAPEmail, s.apEmail, processedAt)
}

// ProcessAccountingSync runs one sync round against the accounting system.
func (s *Service) ProcessAccountingSync(ctx context.Context, processedAt time.Time) ([]IngestedInvoice, error) {
	return s.processBatch(ctx, SourceAccountingSystem, s.accounting, processedAt)
}

// RecordIngestionFailure forwards a failure event to the alert sink. Also
// the entry point for callers that detect an unavailable integration before
// attempting a fetch.
func (s *Service) RecordIngestionFailure(ctx context.Context, source Source, errorType string, occurredAt time.Time) error {
	event := FailureEvent{
		Source:     source,
		ErrorType:  errorType,
		OccurredAt: occurredAt,
	}

	if err := s.alerts.NotifyFailure(ctx, event); err != nil {
		return fmt.Errorf("failed to notify alert sink: %w", err)
	}

	metrics.IngestionFailuresTotal.WithLabelValues(string(source), errorType).Inc()
	s.logger.WarnwCtx(ctx, "Ingestion failure recorded",
		"source", string(source),
		"error_type", errorType,
		"occurred_at", occurredAt,
	)
	return nil
}

// ListForAnalyst returns the intake queue, optionally filtered to records
// seen from one source, ordered by each record's newest history timestamp.
func (s *Service) ListForAnalyst(ctx context.Context, source *Source, newestFirst bool) ([]IngestedInvoice, error) {
	return s.repo.ListBySource(ctx, source, newestFirst)
}

// ListIngestionFailures returns every recorded failure event.
func (s *Service) ListIngestionFailures(ctx context.Context) ([]FailureEvent, error) {
	return s.alerts.ListFailures(ctx)
}

func (s *Service) ingestOne(ctx context.Context, source Source, sourceID string, metadata InvoiceMetadata, fileHash string, processedAt time.Time) (*IngestedInvoice, error) {
	start := time.Now()

	if IsWeakKey(metadata, fileHash) {
		s.logger.WarnwCtx(ctx, "Dedupe key built from blank metadata, collisions likely",
			"source", string(source),
			"source_id", sourceID,
		)
	}

	dedupeKey := s.keyFunc(metadata, fileHash)

	existing, err := s.repo.FindByDedupeKey(ctx, dedupeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up dedupe key: %w", err)
	}

	if existing != nil {
		// Re-sighting: the stored metadata stays authoritative, only the
		// history grows. The entry records the source of this call, which
		// is how cross-source merges show up.
		updated, err := s.repo.AppendHistory(ctx, dedupeKey, source, processedAt, StatusDuplicateSeen(sourceID))
		if err != nil {
			return nil, fmt.Errorf("failed to append history: %w", err)
		}

		metrics.IntakeInvoicesTotal.WithLabelValues(string(source), "duplicate").Inc()
		metrics.ObserveIntakeDuration(time.Since(start), "duplicate")
		s.logger.DebugwCtx(ctx, "Duplicate invoice sighting recorded",
			"source", string(source),
			"source_id", sourceID,
			"dedupe_key", dedupeKey,
			"history_len", len(updated.History),
		)
		return updated, nil
	}

	invoice := &IngestedInvoice{
		DedupeKey: dedupeKey,
		Metadata:  metadata,
		FileHash:  fileHash,
	}
	invoice.RecordEvent(source, processedAt, StatusIngested(sourceID))

	saved, err := s.repo.SaveNew(ctx, invoice)
	if err != nil {
		return nil, fmt.Errorf("failed to save new invoice: %w", err)
	}

	metrics.IntakeInvoicesTotal.WithLabelValues(string(source), "ingested").Inc()
	metrics.IntakeQueueSize.Inc()
	metrics.ObserveIntakeDuration(time.Since(start), "ingested")
	s.logger.InfowCtx(ctx, "New invoice ingested",
		"source", string(source),
		"source_id", sourceID,
		"dedupe_key", dedupeKey,
	)
	return saved, nil
}

func (s *Service) processBatch(ctx context.Context, source Source, fetcher SourceFetcher, processedAt time.Time) ([]IngestedInvoice, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotConfigured, source)
	}

	payloads, err := fetcher.FetchNewInvoices(ctx)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Source fetch failed",
			"source", string(source),
			"error", err,
		)
		// The fetch failure is recovered into a failure event and an empty
		// batch. A sink failure here is fatal, per the store/sink contract.
		if alertErr := s.RecordIngestionFailure(ctx, source, constants.ErrorTypeFetchFailed, processedAt); alertErr != nil {
			return nil, alertErr
		}
		return []IngestedInvoice{}, nil
	}

	metrics.IntakeBatchSize.WithLabelValues(string(source)).Observe(float64(len(payloads)))

	ingested := make([]IngestedInvoice, 0, len(payloads))
	for _, payload := range payloads {
		invoice, err := s.ingestOne(ctx, source, payload.SourceID, payload.Metadata, payload.FileHash, processedAt)
		if err != nil {
			// Whatever was ingested before this point stays ingested.
			return nil, fmt.Errorf("failed to ingest payload %s: %w", payload.SourceID, err)
		}
		ingested = append(ingested, *invoice)
	}

	s.logger.InfowCtx(ctx, "Sync round completed",
		"source", string(source),
		"batch_size", len(payloads),
	)
	return ingested, nil
}
