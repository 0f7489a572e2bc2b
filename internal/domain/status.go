package domain

type Status string

const (
	StatusNew          Status = "NEW"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusActioned     Status = "ACTIONED"
)

var statusRank = map[Status]int{
	StatusNew:          0,
	StatusAcknowledged: 1,
	StatusActioned:     2,
}

// transitions lists every move the triage flow accepts. Whether a particular
// actor may take a backward edge is decided by authz.
var transitions = map[Status][]Status{
	StatusNew:          {StatusAcknowledged, StatusActioned},
	StatusAcknowledged: {StatusActioned, StatusNew},
	StatusActioned:     {StatusAcknowledged, StatusNew},
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := statusRank[st]
	return st, ok
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsBackward reports whether moving from s to "to" reopens the item.
func (s Status) IsBackward(to Status) bool {
	return statusRank[to] < statusRank[s]
}

func (s Status) Resolved() bool {
	return s == StatusActioned
}

// AutoAcknowledge returns the status an item should take after an analysis
// with the given severity. ACTIONED and ACKNOWLEDGED items keep their status.
func AutoAcknowledge(current Status, severity int) Status {
	if IsHighSeverity(severity) && current == StatusNew {
		return StatusAcknowledged
	}
	return current
}

func AllStatuses() []Status {
	return []Status{StatusNew, StatusAcknowledged, StatusActioned}
}
