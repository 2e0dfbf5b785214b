// Package recon imports provider charges and idempotently merges them
// into local payment records.
package recon

import (
	"encoding/json"

	"github.com/ovalline/opsdesk/internal/domain"
)

// MapCharge converts a provider charge into local payment record fields.
// Pure and total: absent provider fields become nil, never an error.
// Appointment resolution is the matcher's job; nothing provider-supplied
// reaches the appointment column without being checked against the
// store first.
func MapCharge(charge domain.ProviderCharge) domain.PaymentRecord {
	rec := domain.PaymentRecord{
		ExternalChargeID: charge.ID,
		AmountCents:      charge.AmountCents,
		Currency:         charge.Currency,
		Status:           charge.Status,
		Method:           optional(charge.Method),
		CardBrand:        optional(charge.CardBrand),
		Last4:            optional(charge.Last4),
		ReceiptURL:       optional(charge.ReceiptURL),
		CreatedAt:        charge.CreatedAt,
		CapturedAt:       charge.CapturedAt,
	}

	if len(charge.Metadata) > 0 {
		// Metadata is opaque to us; carry it verbatim.
		if b, err := json.Marshal(charge.Metadata); err == nil {
			rec.Metadata = b
		}
	}

	return rec
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
