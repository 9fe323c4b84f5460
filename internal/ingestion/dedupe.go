package ingestion

import (
	"fmt"
	"strings"
)

// KeyFunc derives the stable identity key for an invoice. Injected into the
// service so deployments can swap the policy without touching the ingest
// path.
type KeyFunc func(metadata InvoiceMetadata, fileHash string) string

const hashKeyPrefix = "hash:"

// BuildDedupeKey is the default dedupe policy. The metadata key joins the
// normalized invoice number, supplier, calendar date, and two-decimal amount
// with "|". When either core field is blank after trimming, a present file
// hash takes over under its own namespace so that two ambiguous invoices
// sharing a document still merge. With neither usable the weak metadata key
// is returned anyway; IsWeakKey lets callers surface that case.
func BuildDedupeKey(metadata InvoiceMetadata, fileHash string) string {
	number := strings.ToLower(strings.TrimSpace(metadata.InvoiceNumber))
	supplier := strings.ToLower(strings.TrimSpace(metadata.Supplier))

	metadataKey := strings.Join([]string{
		number,
		supplier,
		metadata.InvoiceDate.Format("2006-01-02"),
		fmt.Sprintf("%.2f", metadata.Amount),
	}, "|")

	if number != "" && supplier != "" {
		return metadataKey
	}

	if hash := strings.ToLower(strings.TrimSpace(fileHash)); hash != "" {
		return hashKeyPrefix + hash
	}

	return metadataKey
}

// IsWeakKey reports whether the inputs only support the blank-metadata
// fallback key, which collides across any two such invoices.
func IsWeakKey(metadata InvoiceMetadata, fileHash string) bool {
	number := strings.TrimSpace(metadata.InvoiceNumber)
	supplier := strings.TrimSpace(metadata.Supplier)
	hash := strings.TrimSpace(fileHash)
	return (number == "" || supplier == "") && hash == ""
}
