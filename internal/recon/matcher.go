package recon

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/ovalline/opsdesk/internal/domain"
)

// matchWindow bounds the proximity heuristic: an appointment is a
// candidate only when it starts within this much of the charge time.
const matchWindow = 7 * 24 * time.Hour

// metadataAppointmentKey is the fast path: checkout flows stamp the
// appointment id onto the charge at creation time.
const metadataAppointmentKey = "appointment_id"

// apptRefPattern finds an explicit appointment reference token in free
// text, e.g. "Deposit for appt_8f2c91ab".
var apptRefPattern = regexp.MustCompile(`appt_([A-Za-z0-9-]+)`)

// MatcherStore is the read surface the matcher needs.
type MatcherStore interface {
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	FindAppointmentsByCustomer(ctx context.Context, email string, amountCents int64, center time.Time, radius time.Duration) ([]domain.Appointment, error)
}

// Matcher resolves which local appointment a charge belongs to. A wrong
// match corrupts billing, an unmatched charge is merely unannotated, so
// every heuristic prefers returning nothing over guessing:
//
//  1. an appointment_id stamped in the charge metadata resolves to that
//     appointment, if it exists; provider-supplied ids are never trusted
//     without the lookup;
//  2. otherwise, an explicit appt_<id> token in the charge description
//     or metadata resolves to that appointment, if it exists;
//  3. otherwise, appointments for the charge's customer with the exact
//     charge amount starting within ±7 days of the charge match only
//     when there is exactly one candidate. Ties are no match.
//
// Deterministic for a fixed store state.
type Matcher struct {
	store MatcherStore
}

func NewMatcher(store MatcherStore) *Matcher {
	return &Matcher{store: store}
}

// ResolveAppointmentID returns the matched appointment id or nil when no
// confident match exists. Only store failures are errors.
func (m *Matcher) ResolveAppointmentID(ctx context.Context, charge domain.ProviderCharge) (*string, error) {
	if id, err := m.byMetadataID(ctx, charge); id != nil || err != nil {
		return id, err
	}
	if id, err := m.byReferenceToken(ctx, charge); id != nil || err != nil {
		return id, err
	}
	return m.byCustomerProximity(ctx, charge)
}

func (m *Matcher) byMetadataID(ctx context.Context, charge domain.ProviderCharge) (*string, error) {
	id := charge.Metadata[metadataAppointmentKey]
	if id == "" {
		return nil, nil
	}

	appt, err := m.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt == nil {
		// A stamped id for an appointment we don't have is not a match.
		return nil, nil
	}
	return &appt.ID, nil
}

func (m *Matcher) byReferenceToken(ctx context.Context, charge domain.ProviderCharge) (*string, error) {
	ref := findReferenceToken(charge)
	if ref == "" {
		return nil, nil
	}

	appt, err := m.store.GetAppointment(ctx, ref)
	if err != nil {
		return nil, err
	}
	if appt == nil {
		// A stale or mistyped token is not a match.
		return nil, nil
	}
	return &appt.ID, nil
}

func findReferenceToken(charge domain.ProviderCharge) string {
	if m := apptRefPattern.FindStringSubmatch(charge.Description); m != nil {
		return m[1]
	}

	// Scan metadata in key order so the result never depends on map
	// iteration.
	keys := make([]string, 0, len(charge.Metadata))
	for k := range charge.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if m := apptRefPattern.FindStringSubmatch(charge.Metadata[k]); m != nil {
			return m[1]
		}
	}
	return ""
}

func (m *Matcher) byCustomerProximity(ctx context.Context, charge domain.ProviderCharge) (*string, error) {
	if charge.CustomerEmail == "" {
		return nil, nil
	}

	candidates, err := m.store.FindAppointmentsByCustomer(
		ctx, charge.CustomerEmail, charge.AmountCents, charge.CreatedAt, matchWindow,
	)
	if err != nil {
		return nil, err
	}

	if len(candidates) != 1 {
		return nil, nil
	}
	return &candidates[0].ID, nil
}
