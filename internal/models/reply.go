package models

import "strings"

type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	ReplyPlainText
	ReplyMessageList
)

const RoleAssistant = "assistant"

// Message is one role tagged message of a model reply. A nil Content is a
// message that carried no text.
type Message struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// Reply is the output of the generation model, resolved once at the
// boundary into either plain text or a list of messages.
type Reply struct {
	Kind     ReplyKind
	Text     string
	Messages []Message
}

func PlainText(text string) Reply {
	return Reply{Kind: ReplyPlainText, Text: text}
}

func MessageList(messages []Message) Reply {
	return Reply{Kind: ReplyMessageList, Messages: messages}
}

// AssistantText returns the text written by the assistant. For a message
// list only assistant messages count; they are joined with a blank line and
// null content reads as empty.
func (r Reply) AssistantText() string {
	switch r.Kind {
	case ReplyPlainText:
		return strings.TrimSpace(r.Text)
	case ReplyMessageList:
		var parts []string
		for _, msg := range r.Messages {
			if msg.Role != RoleAssistant {
				continue
			}
			content := ""
			if msg.Content != nil {
				content = *msg.Content
			}
			parts = append(parts, content)
		}
		return strings.TrimSpace(strings.Join(parts, "\n\n"))
	default:
		return ""
	}
}
