package source

import (
	"context"
	"errors"
	"fmt"

	"invoice-intake/internal/ingestion"
)

// ErrFetchFailed is the single fetch-error shape the ingestion core sees.
// Upstream error subtypes are collapsed into it by the adapters.
var ErrFetchFailed = errors.New("source fetch failed")

// Fetcher is the source fetcher port: one call returns the batch of newly
// available invoice payloads, or fails.
type Fetcher interface {
	FetchNewInvoices(ctx context.Context) ([]ingestion.SourceInvoicePayload, error)
}

// Client is the inner upstream client wrapped by an Adapter.
type Client interface {
	FetchNewInvoices(ctx context.Context) ([]ingestion.SourceInvoicePayload, error)
}

// Adapter normalizes any client failure to ErrFetchFailed so the service
// never has to distinguish upstream error subtypes.
type Adapter struct {
	name   string
	client Client
}

func NewAdapter(name string, client Client) *Adapter {
	return &Adapter{name: name, client: client}
}

func (a *Adapter) FetchNewInvoices(ctx context.Context) ([]ingestion.SourceInvoicePayload, error) {
	payloads, err := a.client.FetchNewInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, a.name, err)
	}
	return payloads, nil
}
