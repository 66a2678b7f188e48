package models

import (
	"fmt"
	"time"
)

type FetchErrorKind string

const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchNavigationFailed FetchErrorKind = "navigation_failed"
	FetchBlocked          FetchErrorKind = "blocked"
)

// FetchError classifies why a page could not be rendered so the caller can
// tell "could not load the page" apart from service failures.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

type AnalysisErrorKind string

const (
	ProviderTimeout       AnalysisErrorKind = "provider_timeout"
	ProviderRateLimited   AnalysisErrorKind = "provider_rate_limited"
	ProviderFailed        AnalysisErrorKind = "provider_failed"
	AllProvidersExhausted AnalysisErrorKind = "all_providers_exhausted"
)

type AnalysisError struct {
	Kind     AnalysisErrorKind
	Provider string
	Err      error
}

func (e *AnalysisError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("analysis (%s): %s: %v", e.Provider, e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("analysis: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("analysis: %s", e.Kind)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// NormalizationError reports provider output that could not be parsed into
// the issue schema. It is non-fatal: the orchestrator degrades the scan to an
// empty, flagged result instead of aborting.
type NormalizationError struct {
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize provider output: unparseable: %v", e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

type QuotaExceededError struct {
	Identity        string
	Tier            Tier
	NextAvailableAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily scan limit reached for %s (%s tier); quota resets at %s",
		e.Identity, e.Tier, e.NextAvailableAt.Format(time.RFC3339))
}
