package bookings

type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusPendingBalance  Status = "PENDING_BALANCE"
	StatusConfirmed       Status = "CONFIRMED"
	StatusActive          Status = "ACTIVE"
	StatusAwaitingProof   Status = "AWAITING_PROOF"
	StatusVerified        Status = "VERIFIED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusDisputed        Status = "DISPUTED"
)

// AllStatuses lists every booking status.
var AllStatuses = []Status{
	StatusPendingApproval, StatusApproved, StatusPendingBalance, StatusConfirmed,
	StatusActive, StatusAwaitingProof, StatusVerified, StatusCompleted,
	StatusCancelled, StatusRejected, StatusDisputed,
}

// transitions is the complete forward transition table. DISPUTED has no
// forward edges; it is left only through Resume.
var transitions = map[Status][]Status{
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusCancelled, StatusDisputed},
	StatusApproved:        {StatusConfirmed, StatusPendingBalance, StatusCancelled, StatusDisputed},
	StatusPendingBalance:  {StatusConfirmed, StatusActive, StatusDisputed},
	StatusConfirmed:       {StatusActive, StatusDisputed},
	StatusActive:          {StatusAwaitingProof, StatusDisputed},
	StatusAwaitingProof:   {StatusVerified, StatusCompleted, StatusDisputed},
	StatusVerified:        {StatusCompleted, StatusDisputed},
}

// resumeTargets are the statuses a dispute resolution may move a booking to.
var resumeTargets = map[Status]bool{
	StatusPendingApproval: true,
	StatusApproved:        true,
	StatusPendingBalance:  true,
	StatusConfirmed:       true,
	StatusActive:          true,
	StatusAwaitingProof:   true,
	StatusVerified:        true,
	StatusCompleted:       true,
	StatusCancelled:       true,
}

// IsValid checks if the booking status is valid
func (s Status) IsValid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// HoldsDates reports whether a booking in this status blocks its dates.
func (s Status) HoldsDates() bool {
	return s != StatusCancelled && s != StatusRejected
}

// CanTransition reports whether from -> to is a forward edge of the table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanResume reports whether a disputed booking may resume as to.
func CanResume(to Status) bool {
	return resumeTargets[to]
}

// NextStatuses returns the forward edges from s.
func NextStatuses(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// ReleasedStatuses are the statuses whose dates are free again.
func ReleasedStatuses() []Status {
	return []Status{StatusCancelled, StatusRejected}
}
