package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ovalline/opsdesk/internal/domain"
)

type fakeMatcherStore struct {
	appointments map[string]*domain.Appointment
	findErr      error
}

func (s *fakeMatcherStore) GetAppointment(_ context.Context, id string) (*domain.Appointment, error) {
	return s.appointments[id], nil
}

func (s *fakeMatcherStore) FindAppointmentsByCustomer(_ context.Context, email string, amountCents int64, center time.Time, radius time.Duration) ([]domain.Appointment, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}

	var out []domain.Appointment
	for _, a := range s.appointments {
		if a.CustomerEmail != email || a.QuotedAmountCents != amountCents {
			continue
		}
		if a.StartsAt.Before(center.Add(-radius)) || a.StartsAt.After(center.Add(radius)) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func appt(id, email string, amountCents int64, startsAt time.Time) *domain.Appointment {
	return &domain.Appointment{
		ID:                id,
		CustomerEmail:     email,
		QuotedAmountCents: amountCents,
		StartsAt:          startsAt,
	}
}

func TestMatcher_MetadataIDResolvesWhenKnown(t *testing.T) {
	now := time.Now()
	store := &fakeMatcherStore{appointments: map[string]*domain.Appointment{
		"A7": appt("A7", "a@example.com", 10000, now),
	}}
	m := NewMatcher(store)

	charge := domain.ProviderCharge{
		ID:        "ch_1",
		Metadata:  map[string]string{"appointment_id": "A7"},
		CreatedAt: now,
	}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || *id != "A7" {
		t.Errorf("id = %v, want A7", id)
	}
}

func TestMatcher_UnknownMetadataIDFallsThrough(t *testing.T) {
	now := time.Now()
	store := &fakeMatcherStore{appointments: map[string]*domain.Appointment{
		"real": appt("real", "a@example.com", 10000, now),
	}}
	m := NewMatcher(store)

	// The stamped id points at nothing we have; proximity then finds the
	// single real candidate instead of trusting the provider's string.
	charge := domain.ProviderCharge{
		ID:            "ch_1",
		Metadata:      map[string]string{"appointment_id": "not-one-of-ours"},
		CustomerEmail: "a@example.com",
		AmountCents:   10000,
		CreatedAt:     now,
	}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || *id != "real" {
		t.Errorf("id = %v, want real", id)
	}
}

func TestMatcher_ReferenceTokenInDescription(t *testing.T) {
	now := time.Now()
	store := &fakeMatcherStore{appointments: map[string]*domain.Appointment{
		"8f2c91ab": appt("8f2c91ab", "a@example.com", 10000, now),
	}}
	m := NewMatcher(store)

	charge := domain.ProviderCharge{
		ID:          "ch_1",
		Description: "Deposit for appt_8f2c91ab",
		CreatedAt:   now,
	}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || *id != "8f2c91ab" {
		t.Errorf("id = %v, want 8f2c91ab", id)
	}
}

func TestMatcher_ReferenceTokenInMetadata(t *testing.T) {
	now := time.Now()
	store := &fakeMatcherStore{appointments: map[string]*domain.Appointment{
		"11aa22bb": appt("11aa22bb", "a@example.com", 10000, now),
	}}
	m := NewMatcher(store)

	charge := domain.ProviderCharge{
		ID:        "ch_1",
		Metadata:  map[string]string{"note": "booking appt_11aa22bb"},
		CreatedAt: now,
	}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || *id != "11aa22bb" {
		t.Errorf("id = %v, want 11aa22bb", id)
	}
}

func TestMatcher_StaleReferenceTokenFallsThrough(t *testing.T) {
	now := time.Now()
	store := &fakeMatcherStore{appointments: map[string]*domain.Appointment{
		"real": appt("real", "a@example.com", 10000, now),
	}}
	m := NewMatcher(store)

	// Token points at a deleted appointment; proximity then finds the
	// single real candidate.
	charge := domain.ProviderCharge{
		ID:            "ch_1",
		Description:   "appt_deleted",
		CustomerEmail: "a@example.com",
		AmountCents:   10000,
		CreatedAt:     now,
	}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || *id != "real" {
		t.Errorf("id = %v, want real", id)
	}
}

func TestMatcher_ProximityUniqueMatch(t *testing.T) {
	now := time.Now()
	store := &fakeMatcherStore{appointments: map[string]*domain.Appointment{
		"A1": appt("A1", "a@example.com", 25000, now.Add(48*time.Hour)),
		"A2": appt("A2", "a@example.com", 99000, now.Add(48*time.Hour)),  // different amount
		"A3": appt("A3", "b@example.com", 25000, now.Add(48*time.Hour)),  // different customer
		"A4": appt("A4", "a@example.com", 25000, now.Add(30*24*time.Hour)), // outside window
	}}
	m := NewMatcher(store)

	charge := domain.ProviderCharge{
		ID:            "ch_1",
		CustomerEmail: "a@example.com",
		AmountCents:   25000,
		CreatedAt:     now,
	}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || *id != "A1" {
		t.Errorf("id = %v, want A1", id)
	}
}

func TestMatcher_AmbiguousSignalsReturnNil(t *testing.T) {
	now := time.Now()
	store := &fakeMatcherStore{appointments: map[string]*domain.Appointment{
		"A1": appt("A1", "a@example.com", 25000, now.Add(24*time.Hour)),
		"A2": appt("A2", "a@example.com", 25000, now.Add(48*time.Hour)),
	}}
	m := NewMatcher(store)

	charge := domain.ProviderCharge{
		ID:            "ch_1",
		CustomerEmail: "a@example.com",
		AmountCents:   25000,
		CreatedAt:     now,
	}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != nil {
		t.Errorf("two equal candidates must not be guessed between, got %v", *id)
	}
}

func TestMatcher_NoSignalsReturnNil(t *testing.T) {
	m := NewMatcher(&fakeMatcherStore{appointments: map[string]*domain.Appointment{}})

	charge := domain.ProviderCharge{ID: "ch_1", CreatedAt: time.Now()}

	id, err := m.ResolveAppointmentID(context.Background(), charge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != nil {
		t.Errorf("id = %v, want nil", *id)
	}
}

func TestMatcher_StoreErrorPropagates(t *testing.T) {
	store := &fakeMatcherStore{
		appointments: map[string]*domain.Appointment{},
		findErr:      errors.New("connection refused"),
	}
	m := NewMatcher(store)

	charge := domain.ProviderCharge{
		ID:            "ch_1",
		CustomerEmail: "a@example.com",
		AmountCents:   100,
		CreatedAt:     time.Now(),
	}

	if _, err := m.ResolveAppointmentID(context.Background(), charge); err == nil {
		t.Error("store failure must propagate")
	}
}
