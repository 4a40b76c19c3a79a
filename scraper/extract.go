package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"platinmods-notifier/pkg/notifier"
)

// onlineMarker is the explicit banner XenForo renders on a profile while the
// member is online.
const onlineMarker = "Online now"

// ExtractPresence reports whether a member profile page shows the member as
// online. Absence of every marker is a confident "offline", not a parse
// failure: a page that renders without the banner is how XenForo shows an
// offline member.
func ExtractPresence(doc *goquery.Document) bool {
	online := false
	doc.Find("*").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) == onlineMarker {
			online = true
			return false
		}
		return true
	})
	if online {
		return true
	}

	// Fallback: the status label under the member's name.
	doc.Find("span.userTitle").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(sel.Text(), "Online") {
			online = true
			return false
		}
		return true
	})
	return online
}

// ExtractThreads returns the thread records of a forum listing page in
// first-seen order, deduplicated by resolved URL. Links are accepted only
// when their path contains one of the configured thread segments; relative
// hrefs resolve against the site origin. Zero matches yields an empty list,
// which is a legitimate observation.
func ExtractThreads(doc *goquery.Document, origin *url.URL, segments []string) []notifier.ThreadRecord {
	var threads []notifier.ThreadRecord
	seen := make(map[string]bool)

	doc.Find(".structItem-title a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := origin.ResolveReference(ref)
		if !pathMatches(resolved.Path, segments) {
			return
		}
		full := resolved.String()
		if seen[full] {
			return
		}
		seen[full] = true
		threads = append(threads, notifier.ThreadRecord{
			Title: strings.TrimSpace(sel.Text()),
			URL:   full,
		})
	})

	return threads
}

func pathMatches(path string, segments []string) bool {
	for _, seg := range segments {
		if strings.Contains(path, seg) {
			return true
		}
	}
	return false
}
