// Package render turns model replies into HTML for display.
package render

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"question-rag/internal/llmservice"
	"question-rag/internal/models"
)

const (
	UnknownPlaceholder = `<p class="notice">Unrecognized response format</p>`
	EmptyPlaceholder   = `<p class="notice">No assistant response</p>`
)

var (
	thinkRe = regexp.MustCompile(models.ThinkTag)

	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
)

// ParseReply resolves a raw model output into a Reply. Shapes it does not
// know become ReplyUnknown.
func ParseReply(v any) models.Reply {
	switch raw := v.(type) {
	case models.Reply:
		return raw
	case *models.Reply:
		if raw == nil {
			return models.Reply{}
		}
		return *raw
	case string:
		return models.PlainText(raw)
	case []models.Message:
		return models.MessageList(raw)
	case *llms.ContentResponse:
		reply, err := llmservice.ReplyFromResponse(raw)
		if err != nil {
			return models.Reply{}
		}
		return reply
	case []map[string]any:
		items := make([]any, len(raw))
		for i := range raw {
			items[i] = raw[i]
		}
		return parseDecoded(items)
	case []any:
		return parseDecoded(raw)
	default:
		return models.Reply{}
	}
}

// parseDecoded handles a message list decoded from JSON, a slice of
// objects with role and content keys.
func parseDecoded(items []any) models.Reply {
	messages := make([]models.Message, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return models.Reply{}
		}
		role, _ := obj["role"].(string)
		msg := models.Message{Role: role}
		switch content := obj["content"].(type) {
		case string:
			msg.Content = &content
		case nil:
		default:
			return models.Reply{}
		}
		messages = append(messages, msg)
	}
	return models.MessageList(messages)
}

// HTML renders the assistant text of reply as HTML. It never fails: unknown
// replies and render errors produce a placeholder.
func HTML(reply models.Reply) string {
	if reply.Kind == models.ReplyUnknown {
		return UnknownPlaceholder
	}
	text := strings.TrimSpace(thinkRe.ReplaceAllString(reply.AssistantText(), ""))
	if text == "" {
		return EmptyPlaceholder
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return fmt.Sprintf(`<p class="notice">Could not render response: %s</p>`, html.EscapeString(err.Error()))
	}
	return buf.String()
}

func Format(v any) string {
	return HTML(ParseReply(v))
}
