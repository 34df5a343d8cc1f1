// ABOUTME: Markdown rendering for outbound Matrix messages.
// ABOUTME: Produces a formatted HTML body next to the plain-text fallback.

package transport

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix/event"
)

// formatMessage builds the message content for a text send. The raw text
// stays as the plain-text body; markdown renders into the HTML formatted
// body that Matrix clients prefer.
func formatMessage(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &htmlBuf); err != nil {
		return content
	}

	html := strings.TrimSpace(htmlBuf.String())
	// goldmark wraps a single paragraph in <p> tags; strip them so short
	// messages don't render with extra spacing
	if strings.HasPrefix(html, "<p>") && strings.HasSuffix(html, "</p>") && strings.Count(html, "<p>") == 1 {
		html = strings.TrimSuffix(strings.TrimPrefix(html, "<p>"), "</p>")
	}

	if html != "" && html != text {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	return content
}
