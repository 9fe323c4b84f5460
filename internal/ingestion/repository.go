package ingestion

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrInvoiceExists is returned by SaveNew when the dedupe key is already
	// present. The service checks before saving; hitting this means two
	// writers raced on the same key.
	ErrInvoiceExists = errors.New("invoice already exists for dedupe key")

	// ErrInvoiceNotFound is returned by AppendHistory for an absent key.
	ErrInvoiceNotFound = errors.New("invoice not found for dedupe key")
)

// IntakeRepository is the intake store port. FindByDedupeKey returns
// (nil, nil) for an absent key; errors are reserved for store failures.
// Implementations are responsible for serializing read-modify-write access
// per dedupe key when serving concurrent callers.
type IntakeRepository interface {
	FindByDedupeKey(ctx context.Context, dedupeKey string) (*IngestedInvoice, error)
	SaveNew(ctx context.Context, invoice *IngestedInvoice) (*IngestedInvoice, error)
	AppendHistory(ctx context.Context, dedupeKey string, source Source, ingestedAt time.Time, status string) (*IngestedInvoice, error)
	ListBySource(ctx context.Context, source *Source, newestFirst bool) ([]IngestedInvoice, error)
}

// MemoryRepository keeps the intake queue in a mutex-guarded map. It is the
// reference store and the test double; a durable store is a drop-in
// replacement behind the same interface.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*IngestedInvoice
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]*IngestedInvoice),
	}
}

func (r *MemoryRepository) FindByDedupeKey(ctx context.Context, dedupeKey string) (*IngestedInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoice, ok := r.items[dedupeKey]
	if !ok {
		return nil, nil
	}
	return cloneInvoice(invoice), nil
}

func (r *MemoryRepository) SaveNew(ctx context.Context, invoice *IngestedInvoice) (*IngestedInvoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[invoice.DedupeKey]; ok {
		return nil, ErrInvoiceExists
	}

	stored := cloneInvoice(invoice)
	r.items[invoice.DedupeKey] = stored
	return cloneInvoice(stored), nil
}

func (r *MemoryRepository) AppendHistory(ctx context.Context, dedupeKey string, source Source, ingestedAt time.Time, status string) (*IngestedInvoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoice, ok := r.items[dedupeKey]
	if !ok {
		return nil, ErrInvoiceNotFound
	}

	invoice.RecordEvent(source, ingestedAt, status)
	return cloneInvoice(invoice), nil
}

func (r *MemoryRepository) ListBySource(ctx context.Context, source *Source, newestFirst bool) ([]IngestedInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := make([]IngestedInvoice, 0, len(r.items))
	for _, invoice := range r.items {
		if source != nil && !invoice.SeenFrom(*source) {
			continue
		}
		filtered = append(filtered, *cloneInvoice(invoice))
	}

	sort.Slice(filtered, func(i, j int) bool {
		a, b := filtered[i].LastSeenAt(), filtered[j].LastSeenAt()
		if a.Equal(b) {
			// Stable order for equal timestamps.
			return filtered[i].DedupeKey < filtered[j].DedupeKey
		}
		if newestFirst {
			return a.After(b)
		}
		return a.Before(b)
	})

	return filtered, nil
}

// Len reports the current queue size.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func cloneInvoice(invoice *IngestedInvoice) *IngestedInvoice {
	out := *invoice
	out.History = make([]HistoryEntry, len(invoice.History))
	copy(out.History, invoice.History)
	return &out
}
