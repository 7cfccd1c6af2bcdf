package application

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

// MaxMessageLength is the longest message text Telegram accepts, in characters.
const MaxMessageLength = 4096

// maxLabelLength caps the repository name, tag and release title in a message.
const maxLabelLength = 256

// NotesRenderer converts markdown release notes into Telegram HTML.
type NotesRenderer interface {
	RenderNotes(markdown string) string
}

// MessageFormatter builds the HTML notification sent for a new release.
type MessageFormatter struct {
	notes NotesRenderer
}

// NewMessageFormatter creates a MessageFormatter. notes may be nil, in which
// case release notes are never included.
func NewMessageFormatter(notes NotesRenderer) *MessageFormatter {
	return &MessageFormatter{notes: notes}
}

// Format renders the notification for release of repo. The result never
// exceeds MaxMessageLength characters: long names and titles are shortened,
// and notes that do not fit are left out.
func (f *MessageFormatter) Format(repo model.TrackedRepository, release model.Release) string {
	head := header(repo, release)

	if f == nil || f.notes == nil {
		return head
	}
	notes := f.notes.RenderNotes(release.Body)
	if notes == "" {
		return head
	}

	msg := head + "\n\n" + notes
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		// Cutting sanitized HTML could leave a tag open.
		return head
	}
	return msg
}

func header(repo model.TrackedRepository, release model.Release) string {
	var b strings.Builder

	b.WriteString(`New release for <a href="`)
	b.WriteString(html.EscapeString(repo.URL.String()))
	b.WriteString(`">`)
	b.WriteString(html.EscapeString(shorten(repo.Name, maxLabelLength)))
	b.WriteString(`</a>: <a href="`)
	b.WriteString(html.EscapeString(ReleaseURL(repo.URL, release)))
	b.WriteString(`"><b>`)
	b.WriteString(html.EscapeString(shorten(release.TagName, maxLabelLength)))
	b.WriteString(`</b></a>`)

	if release.Name != "" && release.Name != release.TagName {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(shorten(release.Name, maxLabelLength)))
		b.WriteString("</i>")
	}

	return b.String()
}

// shorten cuts s to at most n runes, marking the cut with an ellipsis.
func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// ReleaseURL returns the release page, falling back to the tag page under the
// repository when the source supplied no URL.
func ReleaseURL(repoURL model.RepositoryURL, release model.Release) string {
	if release.URL != "" {
		return release.URL
	}
	return repoURL.String() + "/releases/tag/" + url.PathEscape(release.TagName)
}
