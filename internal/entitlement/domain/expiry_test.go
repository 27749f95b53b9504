package domain

import (
	"testing"
	"time"
)

func TestExtendedExpiryNoPriorExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got := ExtendedExpiry(nil, 30, now)

	want := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtendedExpiryCumulativeWhileActive(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	current := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	got := ExtendedExpiry(&current, 30, now)

	// Extension stacks on the stored expiry, not on now.
	want := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtendedExpiryResetsWhenLapsed(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	lapsed := now.AddDate(0, 0, -10)

	got := ExtendedExpiry(&lapsed, 30, now)

	want := now.AddDate(0, 0, 30)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtendedExpiryIdempotent(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)
	current := now.AddDate(0, 0, 5)

	first := ExtendedExpiry(&current, 365, now)
	second := ExtendedExpiry(&current, 365, now)

	if !first.Equal(second) {
		t.Fatalf("expected identical results, got %v and %v", first, second)
	}
}

func TestExtendedExpiryCumulativeProperty(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, k := range []int{1, 7, 29, 100} {
		current := now.AddDate(0, 0, k)
		got := ExtendedExpiry(&current, 30, now)
		want := now.AddDate(0, 0, k+30)
		if !got.Equal(want) {
			t.Fatalf("k=%d: expected %v, got %v", k, want, got)
		}
	}
}

func TestExtendedExpiryMonotonicSequence(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var current *time.Time
	var previous time.Time
	for i, days := range []int{30, 30, 365, 7, 30} {
		next := ExtendedExpiry(current, days, now)
		if i > 0 && next.Before(previous) {
			t.Fatalf("expiry decreased at step %d: %v -> %v", i, previous, next)
		}
		previous = next
		current = &next
		now = now.AddDate(0, 0, 1)
	}
}

func TestEntitlementActive(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 10)
	past := now.AddDate(0, 0, -1)

	cases := []struct {
		name string
		ent  Entitlement
		want bool
	}{
		{"paid and unexpired", Entitlement{Tier: TierConecta, ExpiresAt: &future}, true},
		{"paid but lapsed", Entitlement{Tier: TierDestaca, ExpiresAt: &past}, false},
		{"paid but no expiry", Entitlement{Tier: TierFundador}, false},
		{"tier none with future expiry", Entitlement{Tier: TierNone, ExpiresAt: &future}, false},
	}

	for _, tc := range cases {
		if got := tc.ent.Active(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
