package constants

// MatchStatus is the classification tag carried by every match candidate.
type MatchStatus string

// Stable values (callers persist these exact strings).
const (
	MatchStatusExisting  MatchStatus = "existing"  // previously confirmed correspondence
	MatchStatusSuggested MatchStatus = "suggested" // fresh candidate from this run
	MatchStatusUnmatched MatchStatus = "unmatched" // nothing cleared the relevance floor
)

// AttemptOutcome describes how a single extraction attempt ended.
type AttemptOutcome string

const (
	OutcomeAccepted       AttemptOutcome = "ACCEPTED"        // met the confidence threshold
	OutcomeBelowThreshold AttemptOutcome = "BELOW_THRESHOLD" // valid record, kept as fallback
	OutcomeRateLimited    AttemptOutcome = "RATE_LIMITED"
	OutcomeTransport      AttemptOutcome = "TRANSPORT_FAILURE"
	OutcomeMalformed      AttemptOutcome = "MALFORMED_RESPONSE"
	OutcomeFailed         AttemptOutcome = "FAILED"
	OutcomeCancelled      AttemptOutcome = "CANCELLED"
)

// HaltReason explains why the orchestrator stopped walking the fallback chain.
type HaltReason string

const (
	HaltAccepted  HaltReason = "accepted"
	HaltExhausted HaltReason = "chain_exhausted"
	HaltCostCap   HaltReason = "cost_cap"
	HaltCancelled HaltReason = "cancelled"
)
