// Package errfmt renders error cause chains for user-facing replies and
// for log output.
package errfmt

import (
	"html"
	"strings"
)

// maxChainDepth bounds how far a cause chain is walked. Chains are
// expected to be short; the bound guards against self-referential errors.
const maxChainDepth = 64

// chain returns the per-level messages of err, outermost first. Each level
// shows only its own message: when the wrapped form is "outer: inner", the
// shared suffix is trimmed off the outer level.
func chain(err error) []string {
	var msgs []string
	for err != nil && len(msgs) < maxChainDepth {
		msg := err.Error()
		if cause := unwrap(err); cause != nil {
			if trimmed, ok := strings.CutSuffix(msg, ": "+cause.Error()); ok {
				msg = trimmed
			}
		}
		msgs = append(msgs, msg)
		err = unwrap(err)
	}
	return msgs
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// RenderHTML renders err and its causes as a nested HTML list: the top
// message followed by one "Caused by" item per level. It returns an empty
// string for a nil error.
func RenderHTML(err error) string {
	msgs := chain(err)
	if len(msgs) == 0 {
		return ""
	}

	var b strings.Builder
	for i, msg := range msgs {
		b.WriteString(html.EscapeString(msg))
		b.WriteString("\n")
		if i < len(msgs)-1 {
			b.WriteString("<ul>\n<li><b>Caused by:</b>\n")
		}
	}
	for i := len(msgs) - 1; i > 0; i-- {
		b.WriteString("</li>\n</ul>\n")
	}
	return b.String()
}

// RenderFlat renders err and its causes as plain text, one line per level.
// Used for log output where nested markup is noise.
func RenderFlat(err error) string {
	msgs := chain(err)
	if len(msgs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(msgs[0])
	for _, msg := range msgs[1:] {
		b.WriteString("\nCaused by: ")
		b.WriteString(msg)
	}
	return b.String()
}
