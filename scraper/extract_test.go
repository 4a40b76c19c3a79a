package scraper

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return d
}

func TestExtractPresence(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{
			name: "banner marker",
			html: `<html><body><div class="memberHeader"><span class="u-highlighted">Online now</span></div></body></html>`,
			want: true,
		},
		{
			name: "banner marker with whitespace",
			html: `<html><body><span>
				Online now
			</span></body></html>`,
			want: true,
		},
		{
			name: "status label fallback",
			html: `<html><body><span class="userTitle">Online</span></body></html>`,
			want: true,
		},
		{
			name: "offline profile",
			html: `<html><body><h1 class="memberHeader-name">alice</h1><span class="userTitle">Member</span></body></html>`,
			want: false,
		},
		{
			name: "marker as substring does not count",
			html: `<html><body><p>She was Online now and then</p></body></html>`,
			want: false,
		},
		{
			name: "empty page",
			html: `<html><body></body></html>`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPresence(doc(t, tt.html)); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

const forumFixture = `<html><body>
<div class="structItem">
	<div class="structItem-title"><a href="/threads/first-mod.101/">First Mod</a></div>
</div>
<div class="structItem">
	<div class="structItem-title">
		<a href="/forums/announcements.5/">Announcements</a>
		<a href="https://platinmods.com/threads/second-mod.102/">Second Mod</a>
	</div>
</div>
<div class="structItem">
	<div class="structItem-title"><a href="/threads/first-mod.101/">First Mod (dup)</a></div>
</div>
<div class="structItem">
	<div class="structItem-title"><a href="">Empty</a></div>
</div>
</body></html>`

func TestExtractThreads(t *testing.T) {
	origin, _ := url.Parse("https://platinmods.com")

	got := ExtractThreads(doc(t, forumFixture), origin, []string{"threads/"})

	want := []struct {
		title string
		url   string
	}{
		{"First Mod", "https://platinmods.com/threads/first-mod.101/"},
		{"Second Mod", "https://platinmods.com/threads/second-mod.102/"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d threads, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Title != w.title {
			t.Errorf("thread %d: got title %q, want %q", i, got[i].Title, w.title)
		}
		if got[i].URL != w.url {
			t.Errorf("thread %d: got url %q, want %q", i, got[i].URL, w.url)
		}
	}
}

func TestExtractThreadsCustomSegments(t *testing.T) {
	origin, _ := url.Parse("https://platinmods.com")
	fixture := `<html><body>
	<div class="structItem-title"><a href="/topics/alpha.1/">Alpha</a></div>
	<div class="structItem-title"><a href="/threads/beta.2/">Beta</a></div>
	</body></html>`

	got := ExtractThreads(doc(t, fixture), origin, []string{"topics/"})
	if len(got) != 1 || got[0].Title != "Alpha" {
		t.Fatalf("got %+v, want only Alpha", got)
	}
}

func TestExtractThreadsEmptyListingIsValid(t *testing.T) {
	origin, _ := url.Parse("https://platinmods.com")
	got := ExtractThreads(doc(t, `<html><body><p>No threads here.</p></body></html>`), origin, []string{"threads/"})
	if len(got) != 0 {
		t.Fatalf("got %d threads, want 0", len(got))
	}
}

func TestPathMatches(t *testing.T) {
	tests := []struct {
		path     string
		segments []string
		want     bool
	}{
		{"/threads/some-mod.1/", []string{"threads/"}, true},
		{"/forums/general.2/", []string{"threads/"}, false},
		{"/whats-new/threads/", []string{"threads/"}, true},
		{"/topics/x.1/", []string{"threads/", "topics/"}, true},
		{"/threads/x.1/", nil, false},
	}
	for _, tt := range tests {
		if got := pathMatches(tt.path, tt.segments); got != tt.want {
			t.Errorf("pathMatches(%q, %v) = %v, want %v", tt.path, tt.segments, got, tt.want)
		}
	}
}
