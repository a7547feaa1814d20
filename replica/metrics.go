package replica

// Target identifies where a call was routed.
type Target string

const (
	// TargetPrimary is the writable primary.
	TargetPrimary Target = "primary"
	// TargetReplica is the read replica.
	TargetReplica Target = "replica"
)

// Reason explains a routing decision.
type Reason string

const (
	// ReasonNoReplica means no replica is configured.
	ReasonNoReplica Reason = "no_replica"
	// ReasonTransaction means the primary has an open transaction.
	ReasonTransaction Reason = "transaction"
	// ReasonWrite means the call is a write.
	ReasonWrite Reason = "write"
	// ReasonSticky means the correlation wrote within the sticky window.
	ReasonSticky Reason = "sticky"
	// ReasonRead means a plain read served by the replica.
	ReasonRead Reason = "read"
)

// Metrics captures routing decisions.
type Metrics interface {
	// ObserveRoute records one routed call.
	ObserveRoute(target Target, reason Reason)
	// SetStickyEntries updates the number of tracked correlations.
	SetStickyEntries(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveRoute implements Metrics.
func (NopMetrics) ObserveRoute(Target, Reason) {}

// SetStickyEntries implements Metrics.
func (NopMetrics) SetStickyEntries(int) {}
