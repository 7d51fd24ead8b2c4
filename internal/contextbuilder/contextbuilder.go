package contextbuilder

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ragd/internal/domain"
)

// Layout selects how matches are rendered into one text block.
type Layout string

const (
	LayoutDefault          Layout = "default"
	LayoutSourceGrouped    Layout = "source-grouped"
	LayoutQuestionSpecific Layout = "question-specific"
	LayoutTemplate         Layout = "template"
)

const (
	DefaultMaxLength = 4000

	// TruncationMarker is appended whenever rendered context is cut.
	TruncationMarker = "\n\n[... truncated]"
)

// Options configure one build call. The zero value renders a default layout
// with metadata attribution and the default length bound. Template is only
// consulted under LayoutTemplate; Question only under LayoutQuestionSpecific.
type Options struct {
	MaxLength        int
	ExcludeMetadata  bool
	SeparateBySource bool
	Layout           Layout
	Template         string
	Question         string
}

// DefaultOptions returns the options Build assumes for zero values.
func DefaultOptions() Options {
	return Options{
		MaxLength: DefaultMaxLength,
		Layout:    LayoutDefault,
	}
}

// Builder renders scored matches into a bounded, attributed context block.
type Builder struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{logger: logger}
}

// Build renders matches under the requested layout, truncates at a sentence
// boundary when the text exceeds MaxLength, and returns the result with its
// pre-truncation source list.
func (b *Builder) Build(matches []domain.ScoredMatch, opts Options) domain.BuiltContext {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.Layout == "" {
		if opts.SeparateBySource {
			opts.Layout = LayoutSourceGrouped
		} else {
			opts.Layout = LayoutDefault
		}
	}

	var text string
	switch opts.Layout {
	case LayoutSourceGrouped:
		text = renderSourceGrouped(matches, !opts.ExcludeMetadata)
	case LayoutQuestionSpecific:
		text = renderQuestionSpecific(matches, opts)
	case LayoutTemplate:
		text = renderTemplate(matches, opts)
	default:
		text = renderDefault(matches, !opts.ExcludeMetadata)
	}

	sources := domain.SourceSet(matches)
	truncated := TruncateAtBoundary(text, opts.MaxLength)
	if len(truncated) != len(text) {
		b.logger.WithFields(logrus.Fields{
			"rendered":   len(text),
			"max_length": opts.MaxLength,
		}).Debug("context truncated")
	}

	return domain.BuiltContext{
		Text:        truncated,
		Sources:     sources,
		Matches:     matches,
		TotalLength: len(truncated),
	}
}

func renderDefault(matches []domain.ScoredMatch, includeMetadata bool) string {
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, m.Chunk.Content)
		if includeMetadata {
			if meta := metadataSuffix(m.Chunk.Metadata); meta != "" {
				sb.WriteString(" ")
				sb.WriteString(meta)
			}
		}
	}
	return sb.String()
}

func renderSourceGrouped(matches []domain.ScoredMatch, includeMetadata bool) string {
	groups := make(map[string][]domain.ScoredMatch)
	for _, m := range matches {
		src := m.Chunk.Metadata.Source
		groups[src] = append(groups[src], m)
	}

	var sb strings.Builder
	for _, src := range domain.SourceSet(matches) {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## From %s:\n", src)
		for i, m := range groups[src] {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			fmt.Fprintf(&sb, "[%d] %s", i+1, m.Chunk.Content)
			if includeMetadata {
				if meta := metadataSuffix(m.Chunk.Metadata); meta != "" {
					sb.WriteString(" ")
					sb.WriteString(meta)
				}
			}
		}
	}
	return sb.String()
}

// QuestionKind classifies the question driving a question-specific layout.
type QuestionKind string

const (
	QuestionProcedural  QuestionKind = "procedural"
	QuestionComparative QuestionKind = "comparative"
	QuestionFactual     QuestionKind = "factual"
	QuestionGeneral     QuestionKind = "general"
)

// ClassifyQuestion applies the keyword heuristics used by the
// question-specific layout. Exported so prompt templates can reuse the same
// classification.
func ClassifyQuestion(question string) QuestionKind {
	q := strings.ToLower(strings.TrimSpace(question))
	switch {
	case strings.Contains(q, "how to"), strings.Contains(q, "steps"), strings.Contains(q, "process"):
		return QuestionProcedural
	case strings.Contains(q, "vs"), strings.Contains(q, "compared to"), strings.Contains(q, "difference"):
		return QuestionComparative
	case strings.HasPrefix(q, "what"), strings.HasPrefix(q, "who"), strings.HasPrefix(q, "when"):
		return QuestionFactual
	default:
		return QuestionGeneral
	}
}

func renderQuestionSpecific(matches []domain.ScoredMatch, opts Options) string {
	switch ClassifyQuestion(opts.Question) {
	case QuestionComparative:
		return "Compare the following information across sources:\n\n" +
			renderSourceGrouped(matches, !opts.ExcludeMetadata)
	case QuestionProcedural:
		return "Relevant steps and procedures:\n\n" +
			renderDefault(matches, !opts.ExcludeMetadata)
	case QuestionFactual:
		return renderSourceGrouped(matches, true)
	default:
		return renderDefault(matches, !opts.ExcludeMetadata)
	}
}

func renderTemplate(matches []domain.ScoredMatch, opts Options) string {
	chunks := renderDefault(matches, !opts.ExcludeMetadata)
	sources := strings.Join(domain.SourceSet(matches), ", ")

	out := opts.Template
	out = strings.ReplaceAll(out, "{{chunks}}", chunks)
	out = strings.ReplaceAll(out, "{{sources}}", sources)
	out = strings.ReplaceAll(out, "{{numChunks}}", fmt.Sprintf("%d", len(matches)))
	return out
}

func metadataSuffix(m domain.Metadata) string {
	var parts []string
	if m.Source != "" {
		parts = append(parts, "Source: "+m.Source)
	}
	if m.Section != "" {
		parts = append(parts, "Section: "+m.Section)
	}
	if m.Page > 0 {
		parts = append(parts, fmt.Sprintf("Page: %d", m.Page))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// TruncateAtBoundary bounds text to max characters, cutting at the last
// sentence-ending period or newline at or after 80% of max. If no boundary
// sits in that window it hard-cuts at max. The marker is appended whenever a
// cut happens, so the result is at most max+len(TruncationMarker).
func TruncateAtBoundary(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	floor := max * 8 / 10
	cut := max
	for i := max - 1; i >= floor-1 && i >= 0; i-- {
		if text[i] == '.' || text[i] == '\n' {
			cut = i + 1
			break
		}
	}
	return text[:cut] + TruncationMarker
}
