package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/a-h/templ"
	"github.com/gomarkdown/markdown"
	"github.com/microcosm-cc/bluemonday"

	"github.com/johngerving/dental-chat.git/pkg/chat"
)

var blankLines = regexp.MustCompile(`(\r\n?|\n){2,}`)

// TemplateToBytes converts a templ component to a byte array.
func TemplateToBytes(t templ.Component) ([]byte, error) {
	var b bytes.Buffer
	if err := t.Render(context.Background(), &b); err != nil {
		return []byte{}, err
	}
	return b.Bytes(), nil
}

// RenderReply converts a markdown reply into sanitized single-line HTML that
// can be carried in an SSE data field.
func RenderReply(reply []byte) string {
	// Convert LLM output to HTML (sanitize it just in case)
	html := string(bluemonday.UGCPolicy().SanitizeBytes(markdown.ToHTML(reply, nil, nil)))

	// Remove code fences the model sometimes leaves behind
	html = strings.ReplaceAll(html, "```", "")
	html = strings.ReplaceAll(html, "~~~", "")

	html = strings.TrimSpace(html)
	html = blankLines.ReplaceAllString(html, "$1")

	// SSE events are broken by \n
	return strings.ReplaceAll(html, "\n", "<br>")
}

// historyJSON encodes the conversation for the hidden history field. A nil
// history is encoded as an empty array.
func historyJSON(history []chat.Message) (string, error) {
	if history == nil {
		history = []chat.Message{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
