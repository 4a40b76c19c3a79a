package poll

import (
	"encoding/json"
	"fmt"

	"platinmods-notifier/pkg/notifier"
)

// diffPresence returns the transition events between two consecutive
// presence facts for the same target. At most one event per cycle.
func diffPresence(target notifier.Target, was, now bool) []notifier.Event {
	switch {
	case !was && now:
		return []notifier.Event{{Kind: notifier.UserWentOnline, Target: target}}
	case was && !now:
		return []notifier.Event{{Kind: notifier.UserWentOffline, Target: target}}
	default:
		return nil
	}
}

// diffThreads compares two thread listings by URL identity. Appeared
// threads are emitted in the order they occur in the new listing,
// disappeared threads in the order they occurred in the old one. Title
// changes alone never produce events.
func diffThreads(target notifier.Target, old, current []notifier.ThreadRecord) []notifier.Event {
	oldURLs := urlSet(old)
	newURLs := urlSet(current)

	var events []notifier.Event
	for _, t := range current {
		if !oldURLs[t.URL] {
			events = append(events, notifier.Event{Kind: notifier.ThreadAppeared, Target: target, Thread: t})
		}
	}
	for _, t := range old {
		if !newURLs[t.URL] {
			events = append(events, notifier.Event{Kind: notifier.ThreadDisappeared, Target: target, Thread: t})
		}
	}
	return events
}

func urlSet(threads []notifier.ThreadRecord) map[string]bool {
	set := make(map[string]bool, len(threads))
	for _, t := range threads {
		set[t.URL] = true
	}
	return set
}

// Facts are stored as plain JSON: a boolean for presence targets, an array
// of {title,url} records for forum targets.

func encodePresence(online bool) ([]byte, error) {
	return json.Marshal(online)
}

func decodePresence(data []byte) (bool, error) {
	var online bool
	if err := json.Unmarshal(data, &online); err != nil {
		return false, fmt.Errorf("decode presence fact: %w", err)
	}
	return online, nil
}

func encodeThreads(threads []notifier.ThreadRecord) ([]byte, error) {
	if threads == nil {
		threads = []notifier.ThreadRecord{}
	}
	return json.Marshal(threads)
}

func decodeThreads(data []byte) ([]notifier.ThreadRecord, error) {
	var threads []notifier.ThreadRecord
	if err := json.Unmarshal(data, &threads); err != nil {
		return nil, fmt.Errorf("decode thread fact: %w", err)
	}
	return threads, nil
}
