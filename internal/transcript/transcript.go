// Package transcript renders and parses interaction log files.
//
// Every answered query is rendered to a small text transcript and posted
// as a file attachment to the log channel. The reviewer feedback flow
// later parses those same attachments to recover who asked what and what
// the bot said, so the marker lines here are a wire format: Render and
// Parse must stay in lockstep, and the markers must never change.
package transcript

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Marker prefixes of the transcript format. Parse keys off these exact
// strings.
const (
	userMarker     = "👤 User: "
	queryMarker    = "💭 Query: "
	channelMarker  = "📍 Channel: "
	timeMarker     = "🕒 Time: "
	responseMarker = "🤖 Response:"
)

// ErrMissingField indicates a transcript lacked one of the required
// sections (user, query, or response).
var ErrMissingField = errors.New("transcript missing required field")

// Log is one recorded interaction.
type Log struct {
	Username string
	UserID   string
	Query    string
	Channel  string
	Response string
	When     time.Time
}

// Render produces the transcript text for a log entry.
func Render(l Log) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s (%s)\n", userMarker, l.Username, l.UserID)
	fmt.Fprintf(&sb, "%s%s\n", queryMarker, cleanMarkdown(l.Query))
	if l.Channel != "" {
		fmt.Fprintf(&sb, "%s%s\n", channelMarker, l.Channel)
	}
	if !l.When.IsZero() {
		fmt.Fprintf(&sb, "%s%s\n", timeMarker, l.When.UTC().Format(time.RFC3339))
	}
	sb.WriteString(responseMarker)
	sb.WriteString("\n")
	sb.WriteString(l.Response)
	return sb.String()
}

// userLine matches "name (id)" with the id being the trailing
// parenthesized token, so display names containing parentheses still
// parse.
var userLine = regexp.MustCompile(`^(.*) \(([^()]+)\)$`)

// Parse recovers a Log from transcript text. The user line, query line,
// and response section are required; everything else is best-effort.
// Unknown lines before the response marker are ignored so the format can
// grow fields without breaking old parsers.
func Parse(data []byte) (Log, error) {
	var l Log
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	head, tail, found := strings.Cut(text, responseMarker)
	if !found {
		return Log{}, fmt.Errorf("%w: response section", ErrMissingField)
	}
	l.Response = strings.TrimPrefix(tail, "\n")

	for _, line := range strings.Split(head, "\n") {
		switch {
		case strings.HasPrefix(line, userMarker):
			rest := strings.TrimPrefix(line, userMarker)
			if m := userLine.FindStringSubmatch(rest); m != nil {
				l.Username = m[1]
				l.UserID = m[2]
			} else {
				l.Username = rest
			}
		case strings.HasPrefix(line, queryMarker):
			l.Query = strings.TrimPrefix(line, queryMarker)
		case strings.HasPrefix(line, channelMarker):
			l.Channel = strings.TrimPrefix(line, channelMarker)
		case strings.HasPrefix(line, timeMarker):
			if ts, err := time.Parse(time.RFC3339, strings.TrimPrefix(line, timeMarker)); err == nil {
				l.When = ts
			}
		}
	}

	if l.Username == "" || l.UserID == "" {
		return Log{}, fmt.Errorf("%w: user line", ErrMissingField)
	}
	if l.Query == "" {
		return Log{}, fmt.Errorf("%w: query line", ErrMissingField)
	}
	return l, nil
}

// cleanMarkdown flattens markdown that would garble the one-line query
// field. Queries are logged inline, so newlines collapse to spaces and
// emphasis markers are stripped.
func cleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	for _, mark := range []string{"```", "**", "__", "`"} {
		s = strings.ReplaceAll(s, mark, "")
	}
	return strings.TrimSpace(s)
}
