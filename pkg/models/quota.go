package models

import (
	"strings"
	"time"
)

type Tier string

const (
	TierFree       Tier = "Free"
	TierPro        Tier = "Pro"
	TierAgency     Tier = "Agency"
	TierEnterprise Tier = "Enterprise"
)

func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree, true
	case "pro":
		return TierPro, true
	case "agency":
		return TierAgency, true
	case "enterprise":
		return TierEnterprise, true
	}
	return TierFree, false
}

// DefaultDailyLimit returns the built-in scans-per-day allowance for a tier.
// Zero means unlimited (usage is still recorded for observability).
func (t Tier) DefaultDailyLimit() int {
	if t == TierFree {
		return 1
	}
	return 0
}

// QuotaRecord is the only state that persists across scans: one counter per
// identity per calendar day in the reference timezone.
type QuotaRecord struct {
	Identity    string    `json:"identity"`
	Tier        Tier      `json:"tier"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}
