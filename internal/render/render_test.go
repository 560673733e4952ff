package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"question-rag/internal/models"
)

func strPtr(s string) *string { return &s }

func TestFormatMessageListKeepsAssistantText(t *testing.T) {
	messages := []models.Message{
		{Role: "user", Content: nil},
		{Role: "assistant", Content: strPtr("A")},
		{Role: "assistant", Content: strPtr("B")},
	}
	got := Format(messages)
	if got != "<p>A</p>\n<p>B</p>\n" {
		t.Fatalf("unexpected html %q", got)
	}
}

func TestFormatDecodedJSON(t *testing.T) {
	var decoded []any
	raw := `[{"role":"user","content":"ignored"},{"role":"assistant","content":null},{"role":"assistant","content":"**bold**"}]`
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := Format(decoded)
	if strings.Contains(got, "ignored") {
		t.Fatalf("user content leaked into output: %q", got)
	}
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Fatalf("expected rendered markdown, got %q", got)
	}
}

func TestFormatUnknownShapes(t *testing.T) {
	for _, v := range []any{42, nil, 3.5, []any{"not an object"}, map[string]any{"role": "assistant"}} {
		if got := Format(v); got != UnknownPlaceholder {
			t.Fatalf("Format(%v) = %q, want placeholder", v, got)
		}
	}
}

func TestFormatPlainText(t *testing.T) {
	got := Format("<think>reasoning</think>\n1. **Case:** first\n2. **Case:** second")
	if strings.Contains(got, "reasoning") {
		t.Fatalf("think block should be removed: %q", got)
	}
	if !strings.Contains(got, "<ol>") || !strings.Contains(got, "<strong>Case:</strong>") {
		t.Fatalf("expected an ordered list, got %q", got)
	}
}

func TestFormatEmptyAssistantText(t *testing.T) {
	if got := Format([]models.Message{{Role: "user", Content: strPtr("hi")}}); got != EmptyPlaceholder {
		t.Fatalf("expected empty placeholder, got %q", got)
	}
	if got := Format(""); got != EmptyPlaceholder {
		t.Fatalf("expected empty placeholder, got %q", got)
	}
}

func TestParseReplyContentResponse(t *testing.T) {
	reply := ParseReply(&llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "one"}}})
	if reply.Kind != models.ReplyPlainText || reply.Text != "one" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if ParseReply(&llms.ContentResponse{}).Kind != models.ReplyUnknown {
		t.Fatalf("a response without choices is unknown")
	}
	var nilReply *models.Reply
	if ParseReply(nilReply).Kind != models.ReplyUnknown {
		t.Fatalf("nil reply pointer is unknown")
	}
}
