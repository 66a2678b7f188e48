package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexassist/a11yscan/pkg/models"
)

func TestConfigResolver(t *testing.T) {
	resolver := NewConfigResolver(models.BillingConfig{
		DefaultTier: "Free",
		IdentityTiers: map[string]string{
			"Pro@Example.com":     "Pro",
			"agency@example.com":  "Agency",
			"typo@example.com":    "Platinum", // unknown tier, dropped
			"  padded@corp.com  ": "pro",
		},
	}, nil)

	tests := []struct {
		name     string
		identity string
		want     models.Tier
	}{
		{"pinned identity", "pro@example.com", models.TierPro},
		{"pin is case insensitive", "PRO@EXAMPLE.COM", models.TierPro},
		{"pin trims whitespace", "padded@corp.com", models.TierPro},
		{"agency pin", "agency@example.com", models.TierAgency},
		{"unknown tier falls back to default", "typo@example.com", models.TierFree},
		{"unpinned identity gets default", "anyone@example.com", models.TierFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, err := resolver.GetTier(context.Background(), tt.identity)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tier != tt.want {
				t.Errorf("tier = %q, want %q", tier, tt.want)
			}
		})
	}
}

func TestConfigResolverBadDefaultTier(t *testing.T) {
	resolver := NewConfigResolver(models.BillingConfig{DefaultTier: "Gold"}, nil)
	tier, err := resolver.GetTier(context.Background(), "anyone@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != models.TierFree {
		t.Errorf("tier = %q, want Free fallback", tier)
	}
}

type countingResolver struct {
	tier  models.Tier
	err   error
	calls int
}

func (r *countingResolver) GetTier(context.Context, string) (models.Tier, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.tier, nil
}

func TestCachedResolverMemoizes(t *testing.T) {
	inner := &countingResolver{tier: models.TierPro}
	cached := NewCachedResolver(inner, time.Minute, nil)

	for i := 0; i < 3; i++ {
		tier, err := cached.GetTier(context.Background(), "pro@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tier != models.TierPro {
			t.Errorf("tier = %q, want Pro", tier)
		}
	}
	if inner.calls != 1 {
		t.Errorf("backend hit %d times, want 1", inner.calls)
	}
}

func TestCachedResolverExpiry(t *testing.T) {
	inner := &countingResolver{tier: models.TierPro}
	cached := NewCachedResolver(inner, time.Minute, nil)

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	if _, err := cached.GetTier(context.Background(), "pro@example.com"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cached.GetTier(context.Background(), "pro@example.com"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("backend hit %d times after expiry, want 2", inner.calls)
	}
}

func TestCachedResolverDegradesToFreeOnFailure(t *testing.T) {
	inner := &countingResolver{err: errors.New("billing backend down")}
	cached := NewCachedResolver(inner, time.Minute, nil)

	tier, err := cached.GetTier(context.Background(), "pro@example.com")
	if err != nil {
		t.Fatalf("lookup failure must not abort the scan: %v", err)
	}
	if tier != models.TierFree {
		t.Errorf("tier = %q, want Free degradation", tier)
	}

	// Failures are not cached; the next call retries the backend.
	if _, err := cached.GetTier(context.Background(), "pro@example.com"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("backend hit %d times, want 2 (failure not cached)", inner.calls)
	}
}
