package domain

import (
	"encoding/json"
	"time"
)

// PaymentRecord is the local mirror of a provider charge, keyed by the
// provider's charge id. Re-importing the same charge updates the row in
// place; it never duplicates.
type PaymentRecord struct {
	ID               string          `json:"id"`
	ExternalChargeID string          `json:"external_charge_id"`
	AmountCents      int64           `json:"amount_cents"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           *string         `json:"method,omitempty"`
	CardBrand        *string         `json:"card_brand,omitempty"`
	Last4            *string         `json:"last4,omitempty"`
	ReceiptURL       *string         `json:"receipt_url,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	AppointmentID    *string         `json:"appointment_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CapturedAt       *time.Time      `json:"captured_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ProviderCharge is the wire shape returned by the payment provider.
type ProviderCharge struct {
	ID            string            `json:"id"`
	AmountCents   int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Description   string            `json:"description,omitempty"`
	Method        string            `json:"payment_method_type,omitempty"`
	CardBrand     string            `json:"card_brand,omitempty"`
	Last4         string            `json:"last4,omitempty"`
	ReceiptURL    string            `json:"receipt_url,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CapturedAt    *time.Time        `json:"captured_at,omitempty"`
}

// ReconcileResult reports one reconciliation run.
type ReconcileResult struct {
	WindowDays int `json:"window_days"`
	Fetched    int `json:"fetched"`
	Upserted   int `json:"upserted"`
	Failed     int `json:"failed"`
}
