// Package deliver contains Deliverer implementations and the message
// format used to present a change event to a subscriber.
package deliver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cuemby/wikifeed/pkg/types"
)

// wikiFamilies maps database name suffixes to project domains. Order
// matters: longer suffixes first so "wikibooks" is not read as "wiki".
var wikiFamilies = []struct {
	suffix string
	domain string
}{
	{"wiktionary", "wiktionary.org"},
	{"wikibooks", "wikibooks.org"},
	{"wikinews", "wikinews.org"},
	{"wikiquote", "wikiquote.org"},
	{"wikisource", "wikisource.org"},
	{"wikiversity", "wikiversity.org"},
	{"wikivoyage", "wikivoyage.org"},
	{"wiki", "wikipedia.org"},
}

// ServerURL returns the base URL of the wiki the event came from. The
// record's server_url wins; otherwise it is derived from the database name,
// e.g. "enwiki" -> "https://en.wikipedia.org".
func ServerURL(event *types.ChangeEvent) string {
	if event.ServerURL != "" {
		return strings.TrimRight(event.ServerURL, "/")
	}
	for _, f := range wikiFamilies {
		if lang, ok := strings.CutSuffix(event.SourceID, f.suffix); ok && lang != "" {
			return "https://" + strings.ReplaceAll(lang, "_", "-") + "." + f.domain
		}
	}
	return ""
}

// PageURL returns a link to the affected page, or "" if unknown
func PageURL(event *types.ChangeEvent) string {
	base := ServerURL(event)
	if base == "" || event.SubjectTitle == "" {
		return ""
	}
	title := strings.ReplaceAll(event.SubjectTitle, " ", "_")
	return base + "/wiki/" + url.PathEscape(title)
}

// Format renders the notification text sent to a subscriber
func Format(event *types.ChangeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 %s on %s\n", strings.ToUpper(event.Kind), event.SourceID)

	title := event.SubjectTitle
	if title == "" {
		title = "(no title)"
	}
	fmt.Fprintf(&b, "📝 Page: %s\n", title)
	fmt.Fprintf(&b, "👤 User: %s", event.Actor)

	if event.Comment != "" {
		fmt.Fprintf(&b, "\n💬 %s", event.Comment)
	}
	if link := PageURL(event); link != "" {
		fmt.Fprintf(&b, "\n%s", link)
	}
	return b.String()
}
