package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/llm"
	"github.com/helixir/review-reply-service/internal/observability"
)

// Default settings.
const (
	DefaultOwnerLanguage = "Vietnamese"
	DefaultStageTimeout  = 90 * time.Second
)

// Backends holds one client per stage. Only Triage is required.
type Backends struct {
	// Triage is the primary backend. It also serves Draft when Draft is nil and
	// the reduced localize prompt when Translate is nil or fails.
	Triage llm.Client
	// Consult is the optional escalation backend.
	Consult llm.Client
	// Draft is the optional reply backend.
	Draft llm.Client
	// Translate is the optional localization backend.
	Translate llm.Client
}

// Options configures a Pipeline.
type Options struct {
	// OwnerLanguage is the language of the summary and translated reply.
	OwnerLanguage string
	// Reference is optional price/policy material attached to draft prompts.
	Reference string
	// StageTimeout bounds each backend call.
	StageTimeout time.Duration
	// Metrics may be nil.
	Metrics *observability.Metrics
}

// Input is one review to analyze.
type Input struct {
	ReviewID   string
	BusinessID string
	AuthorName string
	Rating     int
	Text       string
	// IsComplex forces the consult stage regardless of triage output.
	IsComplex bool
	// History holds recent drafted replies used as prompt context.
	History []string
}

// InputFromReview builds an Input from a stored record.
func InputFromReview(r *domain.Review, history []string) Input {
	return Input{
		ReviewID:   r.ReviewID,
		BusinessID: r.BusinessID,
		AuthorName: r.AuthorName,
		Rating:     r.Rating,
		Text:       r.OriginalText,
		History:    history,
	}
}

// Result is the output of one pipeline run.
type Result struct {
	Trace *domain.AnalysisTrace
}

// Degraded reports whether any stage fell back to a default.
func (r *Result) Degraded() bool {
	for _, s := range r.Trace.Stages {
		if s.Outcome == domain.OutcomeDefaulted || s.Outcome == domain.OutcomeFallback {
			return true
		}
	}
	return false
}

// capabilities records which optional backends are present. It is computed once
// at construction so stage code never checks for nil clients.
type capabilities struct {
	consult   bool
	translate bool
}

// Pipeline runs the four analysis stages. It is safe for concurrent use.
type Pipeline struct {
	triage    llm.Client
	consult   llm.Client
	draft     llm.Client
	translate llm.Client

	caps    capabilities
	opts    Options
	decoder *decoder
	logger  zerolog.Logger
	metrics *observability.Metrics
	nowFunc func() time.Time
}

// NewPipeline validates the backends and builds a pipeline. A missing primary
// backend is a ConfigurationError.
func NewPipeline(b Backends, opts Options, logger zerolog.Logger) (*Pipeline, error) {
	if b.Triage == nil {
		return nil, domain.NewConfigurationError("analysis.triage", "primary analysis backend is required")
	}
	if opts.OwnerLanguage == "" {
		opts.OwnerLanguage = DefaultOwnerLanguage
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}

	draft := b.Draft
	if draft == nil {
		draft = b.Triage
	}

	return &Pipeline{
		triage:    b.Triage,
		consult:   b.Consult,
		draft:     draft,
		translate: b.Translate,
		caps: capabilities{
			consult:   b.Consult != nil,
			translate: b.Translate != nil,
		},
		opts:    opts,
		decoder: newDecoder(),
		logger:  logger.With().Str("component", "analysis").Logger(),
		metrics: opts.Metrics,
		nowFunc: time.Now,
	}, nil
}

// Process runs every stage for in. It returns an error only when the context is
// cancelled or a stage panics; per-stage backend failures are absorbed into the
// trace.
func (p *Pipeline) Process(ctx context.Context, in Input) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("analysis of %s aborted: panic: %v", in.ReviewID, r)
		}
	}()

	logger := observability.WithReviewContext(p.logger, in.ReviewID, in.BusinessID)
	trace := &domain.AnalysisTrace{}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	triage, rec := p.runTriage(ctx, logger, in)
	trace.Triage = triage
	p.appendStage(trace, rec)
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	notes, consulted, rec := p.runConsult(ctx, logger, in, triage)
	trace.Consult = notes
	trace.Consulted = consulted
	p.appendStage(trace, rec)
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	draft, rec := p.runDraft(ctx, logger, in, triage, notes)
	trace.Draft = draft
	p.appendStage(trace, rec)
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	localized, rec := p.runLocalize(ctx, logger, in, draft)
	trace.Localized = localized
	p.appendStage(trace, rec)
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	trace.ProcessedAt = p.nowFunc().UTC()

	logger.Info().
		Str("sentiment", string(triage.Sentiment)).
		Str("category", triage.Category).
		Bool("risk_flag", triage.RiskFlag).
		Bool("consulted", consulted).
		Msg("review analyzed")

	return &Result{Trace: trace}, nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return nil
}

func (p *Pipeline) appendStage(trace *domain.AnalysisTrace, rec domain.StageRecord) {
	trace.Stages = append(trace.Stages, rec)
	if p.metrics != nil {
		p.metrics.RecordStage(rec.Stage, rec.Outcome, rec.Duration.Seconds())
	}
}

// runTriage classifies the review. Any failure yields domain.DefaultTriage.
func (p *Pipeline) runTriage(ctx context.Context, logger zerolog.Logger, in Input) (domain.TriageResult, domain.StageRecord) {
	start := p.nowFunc()
	rec := domain.StageRecord{Stage: domain.StageTriage, Backend: p.triage.Provider()}

	resp, err := p.call(ctx, domain.StageTriage, p.triage, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: triageSystem()},
			{Role: llm.RoleUser, Content: triageUser(in)},
		},
		ResponseFormat: llm.FormatJSON,
	})

	var result domain.TriageResult
	if err == nil {
		var payload triagePayload
		if err = p.decoder.decode(resp.Content, &payload); err == nil {
			result = payload.toResult()
		}
	}

	if err != nil {
		stageLog := observability.WithStageContext(logger, domain.StageTriage, rec.Backend)
		stageLog.Warn().
			Err(err).
			Msg("triage failed, using default classification")
		result = domain.DefaultTriage()
		rec.Outcome = domain.OutcomeDefaulted
		rec.Error = err.Error()
	} else {
		rec.Outcome = domain.OutcomeSucceeded
	}

	result.IsComplex = result.IsComplex || in.IsComplex
	rec.Duration = p.nowFunc().Sub(start)
	return result, rec
}

// runConsult asks the escalation backend for root cause notes when triage calls
// for it. An absent backend skips silently; a failed call yields empty notes.
func (p *Pipeline) runConsult(ctx context.Context, logger zerolog.Logger, in Input, triage domain.TriageResult) (domain.ConsultNotes, bool, domain.StageRecord) {
	start := p.nowFunc()
	rec := domain.StageRecord{Stage: domain.StageConsult}

	if !triage.NeedsConsult() {
		rec.Outcome = domain.OutcomeSkipped
		return domain.ConsultNotes{}, false, rec
	}
	if !p.caps.consult {
		rec.Outcome = domain.OutcomeSkipped
		rec.Error = "consult backend not configured"
		return domain.ConsultNotes{}, false, rec
	}

	rec.Backend = p.consult.Provider()
	resp, err := p.call(ctx, domain.StageConsult, p.consult, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: consultSystemPrompt},
			{Role: llm.RoleUser, Content: consultUser(in, triage)},
		},
		ResponseFormat: llm.FormatJSON,
	})

	var notes domain.ConsultNotes
	if err == nil {
		var payload consultPayload
		if err = p.decoder.decode(resp.Content, &payload); err == nil {
			notes = domain.ConsultNotes{
				RootCause:         strings.TrimSpace(payload.RootCause),
				RecommendedAction: strings.TrimSpace(payload.RecommendedAction),
			}
		}
	}

	rec.Duration = p.nowFunc().Sub(start)
	if err != nil {
		stageLog := observability.WithStageContext(logger, domain.StageConsult, rec.Backend)
		stageLog.Warn().
			Err(err).
			Msg("consult failed, continuing without notes")
		rec.Outcome = domain.OutcomeFallback
		rec.Error = err.Error()
		return domain.ConsultNotes{}, true, rec
	}

	rec.Outcome = domain.OutcomeSucceeded
	return notes, true, rec
}

// runDraft writes the customer-facing reply. Any failure yields domain.FallbackReply.
func (p *Pipeline) runDraft(ctx context.Context, logger zerolog.Logger, in Input, triage domain.TriageResult, notes domain.ConsultNotes) (string, domain.StageRecord) {
	start := p.nowFunc()
	rec := domain.StageRecord{Stage: domain.StageDraft, Backend: p.draft.Provider()}

	resp, err := p.call(ctx, domain.StageDraft, p.draft, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: draftSystemPrompt},
			{Role: llm.RoleUser, Content: draftUser(in, triage, notes, p.opts.Reference)},
		},
		ResponseFormat: llm.FormatText,
	})

	var draft string
	if err == nil {
		draft = strings.Trim(strings.TrimSpace(resp.Content), `"`)
		if draft == "" {
			err = errors.New("empty draft")
		}
	}

	rec.Duration = p.nowFunc().Sub(start)
	if err != nil {
		stageLog := observability.WithStageContext(logger, domain.StageDraft, rec.Backend)
		stageLog.Warn().
			Err(err).
			Msg("draft failed, using fallback reply")
		rec.Outcome = domain.OutcomeFallback
		rec.Error = err.Error()
		return domain.FallbackReply, rec
	}

	rec.Outcome = domain.OutcomeSucceeded
	return draft, rec
}

// runLocalize produces the owner-language summary and reply translation. It
// tries the translate backend, then the primary backend with a reduced prompt,
// then returns the translation-failed sentinel.
func (p *Pipeline) runLocalize(ctx context.Context, logger zerolog.Logger, in Input, draft string) (domain.LocalizedContent, domain.StageRecord) {
	start := p.nowFunc()
	rec := domain.StageRecord{Stage: domain.StageLocalize}
	lang := p.opts.OwnerLanguage
	user := localizeUser(in, draft)

	var errs []string

	if p.caps.translate {
		rec.Backend = p.translate.Provider()
		out, err := p.localizeWith(ctx, p.translate, fmt.Sprintf(localizeSystemPrompt, lang, lang, lang), user)
		if err == nil {
			rec.Outcome = domain.OutcomeSucceeded
			rec.Duration = p.nowFunc().Sub(start)
			return out, rec
		}
		stageLog := observability.WithStageContext(logger, domain.StageLocalize, rec.Backend)
		stageLog.Warn().
			Err(err).
			Msg("translate backend failed, falling back to primary backend")
		errs = append(errs, err.Error())
	}

	rec.Backend = p.triage.Provider()
	out, err := p.localizeWith(ctx, p.triage, fmt.Sprintf(localizeReducedPrompt, lang), user)
	rec.Duration = p.nowFunc().Sub(start)
	if err == nil {
		rec.Outcome = domain.OutcomeFallback
		if len(errs) > 0 {
			rec.Error = strings.Join(errs, "; ")
		}
		return out, rec
	}
	errs = append(errs, err.Error())

	stageLog := observability.WithStageContext(logger, domain.StageLocalize, rec.Backend)
	stageLog.Warn().
		Err(err).
		Msg("localization unavailable, storing translation-failed marker")
	rec.Outcome = domain.OutcomeDefaulted
	rec.Error = strings.Join(errs, "; ")
	return domain.LocalizedContent{
		Summary: domain.TranslationFailed,
		Reply:   domain.TranslationFailed,
	}, rec
}

func (p *Pipeline) localizeWith(ctx context.Context, client llm.Client, system, user string) (domain.LocalizedContent, error) {
	resp, err := p.call(ctx, domain.StageLocalize, client, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		ResponseFormat: llm.FormatJSON,
	})
	if err != nil {
		return domain.LocalizedContent{}, err
	}

	var payload localizePayload
	if err := p.decoder.decode(resp.Content, &payload); err != nil {
		return domain.LocalizedContent{}, err
	}
	return domain.LocalizedContent{
		Summary: strings.TrimSpace(payload.Summary),
		Reply:   strings.TrimSpace(payload.Reply),
	}, nil
}

// call performs one bounded backend request and records metrics.
func (p *Pipeline) call(ctx context.Context, stage string, client llm.Client, req llm.Request) (*llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.StageTimeout)
	defer cancel()

	resp, err := client.Complete(callCtx, req)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordBackendRequestFailed(stage, client.Provider(), llm.ErrorType(err))
		}
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("backend returned no response")
	}

	if p.metrics != nil {
		p.metrics.RecordBackendRequest(stage, client.Provider(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return resp, nil
}
