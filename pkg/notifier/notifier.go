// Package notifier contains the core domain types for the platinmods
// notification service.
package notifier

// TargetKind distinguishes the two monitored entity flavors.
type TargetKind int

const (
	// KindPresence tracks a member profile's online/offline status.
	KindPresence TargetKind = iota
	// KindForum tracks the thread listing of a forum section.
	KindForum
)

// Target is a monitored entity with a stable identity and URL.
type Target struct {
	Name string     `json:"name" yaml:"name"`
	URL  string     `json:"url" yaml:"url"`
	Kind TargetKind `json:"-" yaml:"-"`
}

// StateKey is the persistence key for this target's last observed fact.
func (t Target) StateKey() string {
	if t.Kind == KindForum {
		return "forum:" + t.Name
	}
	return "presence:" + t.Name
}

// ThreadRecord is an immutable snapshot of one forum entry at observation
// time. The URL is the identity; the title is display-only and may go stale
// between observations without counting as a change.
type ThreadRecord struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// EventKind tags a transition event.
type EventKind int

const (
	UserWentOnline EventKind = iota
	UserWentOffline
	ThreadAppeared
	ThreadDisappeared
)

// Event is one detected logical change between two consecutive facts for the
// same target. It carries enough data to render exactly one notification.
type Event struct {
	Kind   EventKind
	Target Target       // the presence or forum target the change belongs to
	Thread ThreadRecord // set for ThreadAppeared/ThreadDisappeared only
}

// PresenceStatus is the per-user outcome of a pass, for summary reports.
type PresenceStatus int

const (
	StatusOnline PresenceStatus = iota
	StatusOffline
	StatusError
)

func (s PresenceStatus) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusOffline:
		return "Offline"
	default:
		return "Error"
	}
}

// ForumResult is the per-forum outcome of a pass: the observed thread count,
// or Failed when the fetch/extract for that forum did not succeed.
type ForumResult struct {
	Count  int
	Failed bool
}

// Summary is the result of one full pass over all configured targets, used
// to render the manual-check report.
type Summary struct {
	Users  map[string]PresenceStatus
	Forums map[string]ForumResult
}

// NewSummary returns an empty summary ready to be filled by a pass.
func NewSummary() Summary {
	return Summary{
		Users:  make(map[string]PresenceStatus),
		Forums: make(map[string]ForumResult),
	}
}
