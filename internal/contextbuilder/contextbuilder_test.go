package contextbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
)

func scored(source, section, content string, page int) domain.ScoredMatch {
	return domain.ScoredMatch{
		Chunk: domain.Chunk{
			ID:      source + "/" + content[:min(8, len(content))],
			Content: content,
			Metadata: domain.Metadata{
				Source:  source,
				Section: section,
				Page:    page,
			},
		},
		Score: 0.9,
	}
}

func TestBuild_DefaultLayoutNumbersAndAttributes(t *testing.T) {
	matches := []domain.ScoredMatch{
		scored("guide.md", "Setup", "Install the binary.", 0),
		scored("faq.md", "", "Restart after upgrades.", 3),
	}
	b := New(nil)

	ctx := b.Build(matches, DefaultOptions())

	assert.Contains(t, ctx.Text, "[1] Install the binary. (Source: guide.md, Section: Setup)")
	assert.Contains(t, ctx.Text, "[2] Restart after upgrades. (Source: faq.md, Page: 3)")
	assert.Equal(t, []string{"guide.md", "faq.md"}, ctx.Sources)
	assert.Equal(t, len(ctx.Text), ctx.TotalLength)
}

func TestBuild_DefaultLayoutWithoutMetadata(t *testing.T) {
	matches := []domain.ScoredMatch{scored("guide.md", "Setup", "Install the binary.", 0)}
	b := New(nil)

	opts := DefaultOptions()
	opts.ExcludeMetadata = true
	ctx := b.Build(matches, opts)

	assert.Equal(t, "[1] Install the binary.", ctx.Text)
}

func TestBuild_ZeroOptionsKeepAttribution(t *testing.T) {
	matches := []domain.ScoredMatch{scored("guide.md", "Setup", "Install the binary.", 0)}
	b := New(nil)

	ctx := b.Build(matches, Options{})

	assert.Contains(t, ctx.Text, "(Source: guide.md, Section: Setup)")
}

func TestBuild_SourceGroupedLayout(t *testing.T) {
	matches := []domain.ScoredMatch{
		scored("guide.md", "", "First from guide.", 0),
		scored("faq.md", "", "From the faq.", 0),
		scored("guide.md", "", "Second from guide.", 0),
	}
	b := New(nil)

	opts := DefaultOptions()
	opts.Layout = LayoutSourceGrouped
	opts.ExcludeMetadata = true
	ctx := b.Build(matches, opts)

	guideIdx := strings.Index(ctx.Text, "## From guide.md:")
	faqIdx := strings.Index(ctx.Text, "## From faq.md:")
	require.GreaterOrEqual(t, guideIdx, 0)
	require.Greater(t, faqIdx, guideIdx, "groups follow first-appearance order")

	guideBlock := ctx.Text[guideIdx:faqIdx]
	assert.Contains(t, guideBlock, "[1] First from guide.")
	assert.Contains(t, guideBlock, "[2] Second from guide.")
	assert.Contains(t, ctx.Text[faqIdx:], "[1] From the faq.", "numbering restarts per group")
}

func TestBuild_SeparateBySourceSelectsGrouping(t *testing.T) {
	matches := []domain.ScoredMatch{scored("guide.md", "", "Hello.", 0)}
	b := New(nil)

	ctx := b.Build(matches, Options{MaxLength: 4000, SeparateBySource: true})

	assert.Contains(t, ctx.Text, "## From guide.md:")
}

func TestClassifyQuestion(t *testing.T) {
	cases := map[string]QuestionKind{
		"How to configure the index?":        QuestionProcedural,
		"What are the steps for setup?":      QuestionProcedural,
		"Postgres vs Qdrant for vectors":     QuestionComparative,
		"difference between modes":           QuestionComparative,
		"What is a chunk?":                   QuestionFactual,
		"Who maintains this?":                QuestionFactual,
		"When was it released?":              QuestionFactual,
		"Tell me about the retrieval layer.": QuestionGeneral,
	}
	for question, want := range cases {
		assert.Equal(t, want, ClassifyQuestion(question), question)
	}
}

func TestBuild_QuestionSpecificComparative(t *testing.T) {
	matches := []domain.ScoredMatch{
		scored("a.md", "", "Option A is fast.", 0),
		scored("b.md", "", "Option B is safe.", 0),
	}
	b := New(nil)

	opts := DefaultOptions()
	opts.Layout = LayoutQuestionSpecific
	opts.Question = "A vs B?"
	ctx := b.Build(matches, opts)

	assert.True(t, strings.HasPrefix(ctx.Text, "Compare the following information across sources:"))
	assert.Contains(t, ctx.Text, "## From a.md:")
	assert.Contains(t, ctx.Text, "## From b.md:")
}

func TestBuild_QuestionSpecificProcedural(t *testing.T) {
	matches := []domain.ScoredMatch{scored("guide.md", "", "Run the installer.", 0)}
	b := New(nil)

	opts := DefaultOptions()
	opts.Layout = LayoutQuestionSpecific
	opts.Question = "How to install?"
	ctx := b.Build(matches, opts)

	assert.True(t, strings.HasPrefix(ctx.Text, "Relevant steps and procedures:"))
	assert.Contains(t, ctx.Text, "[1] Run the installer.")
}

func TestBuild_QuestionSpecificGeneralFallsBackToDefault(t *testing.T) {
	matches := []domain.ScoredMatch{scored("guide.md", "", "Some fact.", 0)}
	b := New(nil)

	opts := DefaultOptions()
	opts.Layout = LayoutQuestionSpecific
	opts.Question = "Tell me everything."
	ctx := b.Build(matches, opts)

	assert.True(t, strings.HasPrefix(ctx.Text, "[1] Some fact."))
}

func TestBuild_TemplateLayout(t *testing.T) {
	matches := []domain.ScoredMatch{
		scored("guide.md", "", "Alpha.", 0),
		scored("faq.md", "", "Bravo.", 0),
	}
	b := New(nil)

	opts := DefaultOptions()
	opts.Layout = LayoutTemplate
	opts.ExcludeMetadata = true
	opts.Template = "Context ({{numChunks}} chunks from {{sources}}):\n{{chunks}}"
	ctx := b.Build(matches, opts)

	assert.True(t, strings.HasPrefix(ctx.Text, "Context (2 chunks from guide.md, faq.md):"))
	assert.Contains(t, ctx.Text, "[1] Alpha.")
	assert.Contains(t, ctx.Text, "[2] Bravo.")
}

func TestBuild_SourcesSurviveTruncation(t *testing.T) {
	matches := []domain.ScoredMatch{
		scored("first.md", "", strings.Repeat("aaaa ", 40), 0),
		scored("second.md", "", strings.Repeat("bbbb ", 40), 0),
	}
	b := New(nil)

	opts := DefaultOptions()
	opts.MaxLength = 100
	ctx := b.Build(matches, opts)

	assert.Equal(t, []string{"first.md", "second.md"}, ctx.Sources,
		"source list reflects all matches even when their text was cut")
}

func TestBuild_NeverExceedsBound(t *testing.T) {
	matches := []domain.ScoredMatch{
		scored("big.md", "", strings.Repeat("word ", 2000), 0),
	}
	b := New(nil)

	opts := DefaultOptions()
	opts.MaxLength = 500
	ctx := b.Build(matches, opts)

	assert.LessOrEqual(t, len(ctx.Text), 500+len(TruncationMarker))
	assert.True(t, strings.HasSuffix(ctx.Text, TruncationMarker))
}

func TestTruncateAtBoundary_SentenceBoundaryInWindow(t *testing.T) {
	// 5000 characters with the only sentence end at character 3200: the cut
	// lands exactly there.
	text := strings.Repeat("a", 3199) + "." + strings.Repeat("b", 1800)
	require.Len(t, text, 5000)

	out := TruncateAtBoundary(text, 4000)

	require.True(t, strings.HasSuffix(out, TruncationMarker))
	body := strings.TrimSuffix(out, TruncationMarker)
	assert.Len(t, body, 3200)
	assert.True(t, strings.HasSuffix(body, "."))
}

func TestTruncateAtBoundary_NewlineCountsAsBoundary(t *testing.T) {
	text := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 60)

	out := TruncateAtBoundary(text, 100)

	body := strings.TrimSuffix(out, TruncationMarker)
	assert.Len(t, body, 91)
	assert.True(t, strings.HasSuffix(body, "\n"))
}

func TestTruncateAtBoundary_NoBoundaryHardCuts(t *testing.T) {
	text := strings.Repeat("a", 200)

	out := TruncateAtBoundary(text, 100)

	body := strings.TrimSuffix(out, TruncationMarker)
	assert.Len(t, body, 100)
}

func TestTruncateAtBoundary_BoundaryBeforeWindowIgnored(t *testing.T) {
	// A period at 50% of max sits outside the 80% window, so the cut is hard.
	text := strings.Repeat("a", 49) + "." + strings.Repeat("b", 150)

	out := TruncateAtBoundary(text, 100)

	body := strings.TrimSuffix(out, TruncationMarker)
	assert.Len(t, body, 100)
}

func TestTruncateAtBoundary_ShortTextUntouched(t *testing.T) {
	assert.Equal(t, "short.", TruncateAtBoundary("short.", 100))
}

func TestBuild_EmptyMatches(t *testing.T) {
	b := New(nil)

	ctx := b.Build(nil, DefaultOptions())

	assert.Empty(t, ctx.Text)
	assert.Empty(t, ctx.Sources)
	assert.Zero(t, ctx.TotalLength)
}
