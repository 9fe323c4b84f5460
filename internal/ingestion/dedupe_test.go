package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testMetadata() InvoiceMetadata {
	return InvoiceMetadata{
		InvoiceNumber: "INV-001",
		Supplier:      "Contoso",
		Amount:        125.0,
		InvoiceDate:   time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestBuildDedupeKey_MetadataKey(t *testing.T) {
	key := BuildDedupeKey(testMetadata(), "")
	assert.Equal(t, "inv-001|contoso|2026-02-01|125.00", key)
}

func TestBuildDedupeKey_Deterministic(t *testing.T) {
	first := BuildDedupeKey(testMetadata(), "some-hash")
	second := BuildDedupeKey(testMetadata(), "some-hash")
	assert.Equal(t, first, second)
}

func TestBuildDedupeKey_CaseAndWhitespaceInvariant(t *testing.T) {
	tests := []struct {
		name     string
		metadata InvoiceMetadata
	}{
		{
			name:     "canonical",
			metadata: testMetadata(),
		},
		{
			name: "upper case",
			metadata: InvoiceMetadata{
				InvoiceNumber: "INV-001",
				Supplier:      "CONTOSO",
				Amount:        125.0,
				InvoiceDate:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "surrounding whitespace",
			metadata: InvoiceMetadata{
				InvoiceNumber: "  inv-001  ",
				Supplier:      "\tContoso ",
				Amount:        125.0,
				InvoiceDate:   time.Date(2026, 2, 1, 23, 59, 59, 0, time.UTC),
			},
		},
	}

	want := "inv-001|contoso|2026-02-01|125.00"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, want, BuildDedupeKey(tt.metadata, ""))
		})
	}
}

func TestBuildDedupeKey_TimeOfDayDiscarded(t *testing.T) {
	morning := testMetadata()
	evening := testMetadata()
	evening.InvoiceDate = time.Date(2026, 2, 1, 22, 15, 0, 0, time.UTC)

	assert.Equal(t, BuildDedupeKey(morning, ""), BuildDedupeKey(evening, ""))
}

func TestBuildDedupeKey_AmountTwoDecimals(t *testing.T) {
	metadata := testMetadata()
	metadata.Amount = 125

	key := BuildDedupeKey(metadata, "")
	assert.Contains(t, key, "|125.00")

	metadata.Amount = 125.5
	key = BuildDedupeKey(metadata, "")
	assert.Contains(t, key, "|125.50")
}

func TestBuildDedupeKey_HashFallback(t *testing.T) {
	tests := []struct {
		name     string
		number   string
		supplier string
	}{
		{name: "empty number", number: "", supplier: "Contoso"},
		{name: "empty supplier", number: "INV-001", supplier: ""},
		{name: "both empty", number: "", supplier: ""},
		{name: "whitespace only supplier", number: "INV-001", supplier: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := testMetadata()
			metadata.InvoiceNumber = tt.number
			metadata.Supplier = tt.supplier

			key := BuildDedupeKey(metadata, "  ABC-123  ")
			assert.Equal(t, "hash:abc-123", key)
		})
	}
}

func TestBuildDedupeKey_HashIgnoredWithCompleteMetadata(t *testing.T) {
	key := BuildDedupeKey(testMetadata(), "abc-123")
	assert.Equal(t, "inv-001|contoso|2026-02-01|125.00", key)
}

func TestBuildDedupeKey_BlankFallback(t *testing.T) {
	metadata := testMetadata()
	metadata.InvoiceNumber = ""
	metadata.Supplier = ""

	key := BuildDedupeKey(metadata, "")
	assert.Equal(t, "||2026-02-01|125.00", key)
}

func TestIsWeakKey(t *testing.T) {
	blank := testMetadata()
	blank.InvoiceNumber = " "
	blank.Supplier = ""

	assert.True(t, IsWeakKey(blank, ""))
	assert.False(t, IsWeakKey(blank, "abc-123"))
	assert.False(t, IsWeakKey(testMetadata(), ""))
}
