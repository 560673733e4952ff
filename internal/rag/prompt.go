package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"question-rag/internal/models"
)

// systemPrompt is the fixed generation policy sent as the system message.
func systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(models.AgentDescription)
	sb.WriteString("\n\n<instructions>\n")
	for i, instruction := range models.AgentInstructions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, instruction)
	}
	sb.WriteString("</instructions>\n\n<expected_output>\n")
	sb.WriteString(models.ExpectedOutput)
	sb.WriteString("</expected_output>")
	return sb.String()
}

// buildMessages assembles the single generation request. Excerpts are put
// back into document order, and every earlier question set for the same
// document is passed verbatim so the model can avoid repeating it.
func buildMessages(excerpts []models.SearchResult, priorSets []string, task string) []llms.MessageContent {
	ordered := make([]models.SearchResult, len(excerpts))
	copy(ordered, excerpts)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	texts := make([]string, 0, len(ordered))
	for _, ex := range ordered {
		texts = append(texts, strings.TrimSpace(ex.Content))
	}

	var user strings.Builder
	user.WriteString(fmt.Sprintf(models.KnowledgeTemplate, strings.Join(texts, models.ContextSeparator)))
	if directive := antiDuplicationDirective(priorSets); directive != "" {
		user.WriteString("\n\n")
		user.WriteString(directive)
	}
	user.WriteString("\n\n")
	user.WriteString(task)

	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt()),
		llms.TextParts(schema.ChatMessageTypeHuman, user.String()),
	}
}

func antiDuplicationDirective(priorSets []string) string {
	var sets []string
	for _, s := range priorSets {
		if strings.TrimSpace(s) != "" {
			sets = append(sets, s)
		}
	}
	if len(sets) == 0 {
		return ""
	}
	return fmt.Sprintf(models.AntiDuplicationTemplate, strings.Join(sets, "\n\n"))
}

func generationTask(count int) string {
	return fmt.Sprintf(models.GenerationTaskTemplate, count)
}
