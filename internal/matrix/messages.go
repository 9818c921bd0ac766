package matrix

import (
	"html"
	"strings"
)

// NewText builds a plain text message.
func NewText(body string) MessageContent {
	return MessageContent{MsgType: "m.text", Body: body}
}

// NewHTML builds a message with both a plain and an HTML rendering.
func NewHTML(body, formatted string) MessageContent {
	return MessageContent{
		MsgType:       "m.text",
		Body:          body,
		Format:        "org.matrix.custom.html",
		FormattedBody: formatted,
	}
}

// AsReplyTo threads content as a rich reply to the given message event,
// adding the quoted fallback shown by clients without rich reply support.
func AsReplyTo(ev *MessageEvent, content MessageContent) MessageContent {
	content.RelatesTo = &RelatesTo{
		InReplyTo: &InReplyTo{EventID: ev.EventID},
	}

	quoted := quoteFallback(ev.Sender, ev.Content.Body)
	content.Body = quoted + "\n\n" + content.Body

	if content.Format == "org.matrix.custom.html" {
		formatted := "<mx-reply><blockquote>" +
			"<a href=\"https://matrix.to/#/" + ev.RoomID + "/" + ev.EventID + "\">In reply to</a> " +
			"<a href=\"https://matrix.to/#/" + ev.Sender + "\">" + html.EscapeString(ev.Sender) + "</a><br/>" +
			html.EscapeString(ev.Content.Body) +
			"</blockquote></mx-reply>" + content.FormattedBody
		content.FormattedBody = formatted
	}
	return content
}

func quoteFallback(sender, body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		prefix := "> "
		if i == 0 {
			prefix = "> <" + sender + "> "
		}
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
