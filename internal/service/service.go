package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"ragd/internal/chunker"
	"ragd/internal/contextbuilder"
	"ragd/internal/domain"
	"ragd/internal/promptbuilder"
	"ragd/internal/ratelimit"
	"ragd/internal/retriever"
)

// NoInformationAnswer is the terminal answer for a query that retrieved
// nothing. It is a first-class outcome, not an error.
const NoInformationAnswer = "I couldn't find any relevant information in the knowledge base to answer your question."

// DefaultIngestBatchSize bounds how many chunks go to the index per write.
const DefaultIngestBatchSize = 16

// QueryOptions shape a single query through retrieval, context assembly,
// prompting, and generation. Zero values mean the per-component defaults.
type QueryOptions struct {
	K               int
	Threshold       float64
	FilterBySource  []string
	UserID          string
	Strategy        retriever.Strategy
	Rerank          bool
	ContextLayout   contextbuilder.Layout
	ContextTemplate string
	ContextLength   int
	Style           promptbuilder.Style
	Citations       bool
	Temperature     float64
	MaxTokens       int
}

// Service sequences Retriever, Context Builder, Prompt Builder, and the
// language model behind a shared rate limiter. It is stateless across
// queries except for the limiter's reservation clock.
type Service struct {
	retriever    *retriever.Retriever
	builder      *contextbuilder.Builder
	splitter     *chunker.Splitter
	sectionAware bool
	store        domain.VectorStore
	llm          domain.LLM
	limiter      *ratelimit.Limiter
	batchSize    int
	logger       *logrus.Logger
}

type Config struct {
	Retriever       *retriever.Retriever
	Builder         *contextbuilder.Builder
	Splitter        *chunker.Splitter
	SectionAware    bool
	Store           domain.VectorStore
	LLM             domain.LLM
	Limiter         *ratelimit.Limiter
	IngestBatchSize int
	Logger          *logrus.Logger
}

func New(cfg Config) *Service {
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(ratelimit.DefaultMinInterval)
	}
	if cfg.IngestBatchSize <= 0 {
		cfg.IngestBatchSize = DefaultIngestBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Builder == nil {
		cfg.Builder = contextbuilder.New(cfg.Logger)
	}
	return &Service{
		retriever:    cfg.Retriever,
		builder:      cfg.Builder,
		splitter:     cfg.Splitter,
		sectionAware: cfg.SectionAware,
		store:        cfg.Store,
		llm:          cfg.LLM,
		limiter:      cfg.Limiter,
		batchSize:    cfg.IngestBatchSize,
		logger:       cfg.Logger,
	}
}

// Answer runs the full pipeline for a single-shot question.
func (s *Service) Answer(ctx context.Context, question string, opts QueryOptions) (domain.AnswerResult, error) {
	return s.answer(ctx, question, nil, opts)
}

// AnswerWithHistory runs the pipeline with prior conversation turns folded
// into the prompt.
func (s *Service) AnswerWithHistory(ctx context.Context, question string, history []domain.ConversationTurn, opts QueryOptions) (domain.AnswerResult, error) {
	return s.answer(ctx, question, history, opts)
}

func (s *Service) answer(ctx context.Context, question string, history []domain.ConversationTurn, opts QueryOptions) (domain.AnswerResult, error) {
	built, matches, err := s.prepare(ctx, question, opts)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if len(matches) == 0 {
		return emptyResult(), nil
	}

	genOpts := domain.GenerateOptions{Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	promptOpts := promptbuilder.Options{
		Style:        opts.Style,
		Citations:    opts.Citations,
		ContextLimit: opts.ContextLength,
	}

	var answer string
	if len(history) > 0 {
		system, user := promptbuilder.BuildConversationalPrompt(question, built, history, promptOpts)
		// The user part already carries the recent history verbatim, so the
		// model sees exactly two turns.
		turns := []domain.ConversationTurn{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return domain.AnswerResult{}, err
		}
		answer, err = s.llm.GenerateWithHistory(ctx, turns, genOpts)
	} else {
		prompt := promptbuilder.BuildAnswerPrompt(question, built, promptOpts)

		if err := s.limiter.Wait(ctx); err != nil {
			return domain.AnswerResult{}, err
		}
		answer, err = s.llm.GenerateText(ctx, prompt, genOpts)
	}
	if err != nil {
		return domain.AnswerResult{}, domain.External("generate", err)
	}

	return domain.AnswerResult{
		Answer:     answer,
		Sources:    built.Sources,
		ChunkCount: len(matches),
		Confidence: matches[0].Score,
		Matches:    matches,
	}, nil
}

// Stream is a lazy answer: metadata is final before the first token, tokens
// arrive on Content, and at most one generation error lands on Err after
// Content closes.
type Stream struct {
	Sources    []string
	ChunkCount int
	Confidence float64
	Content    <-chan string
	Err        <-chan error
}

// AnswerStream runs retrieval and context assembly eagerly, then returns a
// stream over the generation. Empty retrieval yields the fixed no-answer
// message as a single token.
func (s *Service) AnswerStream(ctx context.Context, question string, opts QueryOptions) (Stream, error) {
	built, matches, err := s.prepare(ctx, question, opts)
	if err != nil {
		return Stream{}, err
	}
	if len(matches) == 0 {
		content := make(chan string, 1)
		content <- NoInformationAnswer
		close(content)
		errs := make(chan error)
		close(errs)
		return Stream{Content: content, Err: errs}, nil
	}

	prompt := promptbuilder.BuildAnswerPrompt(question, built, promptbuilder.Options{
		Style:        opts.Style,
		Citations:    opts.Citations,
		ContextLimit: opts.ContextLength,
	})

	if err := s.limiter.Wait(ctx); err != nil {
		return Stream{}, err
	}
	tokens, errs := s.llm.GenerateStream(ctx, prompt, domain.GenerateOptions{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})

	wrapped := make(chan error, 1)
	go func() {
		defer close(wrapped)
		if err := <-errs; err != nil {
			wrapped <- domain.External("generate", err)
		}
	}()

	return Stream{
		Sources:    built.Sources,
		ChunkCount: len(matches),
		Confidence: matches[0].Score,
		Content:    tokens,
		Err:        wrapped,
	}, nil
}

// prepare validates the question, retrieves, and assembles context. A nil
// match slice with a nil error means empty retrieval.
func (s *Service) prepare(ctx context.Context, question string, opts QueryOptions) (domain.BuiltContext, []domain.ScoredMatch, error) {
	if strings.TrimSpace(question) == "" {
		return domain.BuiltContext{}, nil, domain.ErrEmptyQuestion
	}

	matches, err := s.retriever.Retrieve(ctx, question, retriever.Options{
		K:              opts.K,
		Threshold:      opts.Threshold,
		FilterBySource: opts.FilterBySource,
		UserID:         opts.UserID,
		Strategy:       opts.Strategy,
		Rerank:         opts.Rerank,
	})
	if err != nil {
		return domain.BuiltContext{}, nil, domain.External("retrieve", err)
	}
	if len(matches) == 0 {
		s.logger.WithField("question_length", len(question)).Debug("empty retrieval")
		return domain.BuiltContext{}, nil, nil
	}

	built := s.builder.Build(matches, contextbuilder.Options{
		MaxLength: opts.ContextLength,
		Layout:    opts.ContextLayout,
		Template:  opts.ContextTemplate,
		Question:  question,
	})
	return built, matches, nil
}

func emptyResult() domain.AnswerResult {
	return domain.AnswerResult{
		Answer:     NoInformationAnswer,
		Sources:    []string{},
		ChunkCount: 0,
		Confidence: 0,
	}
}
