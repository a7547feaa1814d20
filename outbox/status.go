package outbox

// Status represents the lifecycle state of an outbox record.
type Status int16

const (
	// StatusPending indicates the record is waiting to be claimed or retried.
	StatusPending Status = 0
	// StatusAcked indicates the record was dispatched and acknowledged. It is never reclaimed.
	StatusAcked Status = 1
)

// Status reports the record's lifecycle state.
func (r Record) Status() Status {
	if r.AckedAt != nil {
		return StatusAcked
	}

	return StatusPending
}

// String returns the status name.
func (s Status) String() string {
	if s == StatusAcked {
		return "acked"
	}

	return "pending"
}
