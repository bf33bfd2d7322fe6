package domain

import "time"

// DeferralReason is the machine-readable cause carried by a failing guard
// verdict. Deferrals are not errors: they mean "not yet", with a suggested
// retry delay.
type DeferralReason string

const (
	// ReasonAuthTokenAbsent means no authenticated session exists. Not retryable.
	ReasonAuthTokenAbsent DeferralReason = "AUTH_TOKEN_ABSENT"
	// ReasonNetworkOffline means the connectivity source reports offline.
	ReasonNetworkOffline DeferralReason = "NETWORK_OFFLINE"
	// ReasonNetworkWeak means the RTT estimate exceeds the weak-link threshold.
	ReasonNetworkWeak DeferralReason = "NETWORK_WEAK"
	// ReasonCacheFresh means cached data is still fresh enough that a refetch
	// would be redundant.
	ReasonCacheFresh DeferralReason = "CACHE_FRESH"
	// ReasonViewportHidden means the owning widget is not sufficiently visible.
	ReasonViewportHidden DeferralReason = "VIEWPORT_HIDDEN"
)

// Retryable reports whether waiting and re-evaluating can ever clear the
// deferral. Only a missing auth token requires caller intervention.
func (r DeferralReason) Retryable() bool {
	return r != ReasonAuthTokenAbsent
}

// Verdict is the outcome of one guard evaluation. Verdicts are produced
// fresh on every evaluation and never persisted.
type Verdict struct {
	Pass       bool
	Reason     DeferralReason
	RetryAfter time.Duration
	Latency    time.Duration
}

// PassVerdict is the synthetic verdict returned when every guard in a
// chain passes.
func PassVerdict() Verdict {
	return Verdict{Pass: true}
}
