package promptbuilder

import (
	"fmt"
	"strings"

	"ragd/internal/contextbuilder"
	"ragd/internal/domain"
)

// Style selects the response-style clause embedded in answer prompts.
type Style string

const (
	StyleConcise        Style = "concise"
	StyleDetailed       Style = "detailed"
	StyleConversational Style = "conversational"
)

const (
	// DefaultMaxHistoryLength bounds how many prior turns a conversational
	// prompt carries.
	DefaultMaxHistoryLength = 5

	// DefaultContextLimit bounds the rendered context placed into a prompt.
	DefaultContextLimit = 4000
)

// Options tune prompt construction. Zero values mean detailed style, no
// citations, default history and context limits.
type Options struct {
	Style            Style
	Citations        bool
	MaxHistoryLength int
	ContextLimit     int
}

func (o Options) withDefaults() Options {
	if o.Style == "" {
		o.Style = StyleDetailed
	}
	if o.MaxHistoryLength <= 0 {
		o.MaxHistoryLength = DefaultMaxHistoryLength
	}
	if o.ContextLimit <= 0 {
		o.ContextLimit = DefaultContextLimit
	}
	return o
}

func styleClause(s Style) string {
	switch s {
	case StyleConcise:
		return "Answer concisely, in a few sentences at most."
	case StyleConversational:
		return "Answer in a friendly, conversational tone."
	default:
		return "Answer thoroughly, covering the relevant details from the context."
	}
}

const antiHallucinationClause = "Only use the information in the provided context. " +
	"If the context does not contain enough information to answer, say so explicitly. " +
	"Do not fabricate facts."

const citationClause = "When you use information from the context, cite it inline " +
	"as [Source: name] using the source names shown."

// BuildAnswerPrompt assembles the single-shot instruction block for a
// question over a built context.
func BuildAnswerPrompt(question string, ctx domain.BuiltContext, opts Options) string {
	opts = opts.withDefaults()

	var sb strings.Builder
	sb.WriteString("You are a helpful assistant answering questions from a knowledge base.\n")
	sb.WriteString(styleClause(opts.Style))
	sb.WriteString("\n")
	if opts.Citations {
		sb.WriteString(citationClause)
		sb.WriteString("\n")
	}
	sb.WriteString(antiHallucinationClause)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(FormatContext(ctx.Text, opts.ContextLimit))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// BuildConversationalPrompt returns the system framing and the user turn
// separately. The user turn carries the last MaxHistoryLength turns verbatim,
// then the context, then the question.
func BuildConversationalPrompt(question string, ctx domain.BuiltContext, history []domain.ConversationTurn, opts Options) (system, user string) {
	opts = opts.withDefaults()

	system = "You are a helpful assistant in an ongoing conversation. " +
		styleClause(opts.Style) + " " + antiHallucinationClause

	var sb strings.Builder
	if n := len(history); n > 0 {
		start := 0
		if n > opts.MaxHistoryLength {
			start = n - opts.MaxHistoryLength
		}
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history[start:] {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Context:\n")
	sb.WriteString(FormatContext(ctx.Text, opts.ContextLimit))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return system, sb.String()
}

// BuildSummaryPrompt asks the model to summarize text within a rough
// sentence budget.
func BuildSummaryPrompt(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return fmt.Sprintf(
		"Summarize the following text in at most %d sentences. Keep the key facts and drop filler.\n\nText:\n%s\n\nSummary:",
		maxSentences, text)
}

// BuildQuestionGenerationPrompt asks the model to propose questions a reader
// could answer from the text.
func BuildQuestionGenerationPrompt(text string, count int) string {
	if count <= 0 {
		count = 3
	}
	return fmt.Sprintf(
		"Read the following text and write %d questions that it answers. Return one question per line, no numbering.\n\nText:\n%s\n\nQuestions:",
		count, text)
}

// BuildClassificationPrompt asks the model to place text into exactly one of
// the given labels.
func BuildClassificationPrompt(text string, labels []string) string {
	return fmt.Sprintf(
		"Classify the following text into exactly one of these categories: %s. Respond with the category name only.\n\nText:\n%s\n\nCategory:",
		strings.Join(labels, ", "), text)
}

// FormatContext bounds rendered context for inclusion in a prompt, cutting
// at a sentence boundary the same way the context builder does.
func FormatContext(text string, limit int) string {
	return contextbuilder.TruncateAtBoundary(text, limit)
}
