package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
)

const (
	defaultCallTimeout = 120 * time.Second
	maxAttempts        = 2
	insightRunes       = 500
	summaryFallback    = 2000
)

// AnalysisInput is what the orchestrator needs for one evaluation.
type AnalysisInput struct {
	Proposal   string
	ToR        string
	Guidelines string
}

// AnalysisResult holds the three sections and the orchestrator's status.
// DeadlineExceeded is set when the overall deadline passed before Internal
// and External both finished; Delta is then never dispatched.
type AnalysisResult struct {
	Internal         *domain.AnalysisSection
	External         *domain.AnalysisSection
	Delta            *domain.AnalysisSection
	Status           domain.Status
	DeadlineExceeded bool
}

// Sections returns the analyses in presentation order.
func (r *AnalysisResult) Sections() []*domain.AnalysisSection {
	return []*domain.AnalysisSection{r.Internal, r.External, r.Delta}
}

// Orchestrator runs Internal and External concurrently, joins them, then
// runs Delta with a condensed view of both.
type Orchestrator struct {
	Client  ai.Client
	Prompts map[domain.AnalysisKind]domain.PromptBuilder

	// Optional pre-summarization. Both nil means raw text goes to the
	// analysis prompts.
	ProposalSummary domain.PromptBuilder
	TorSummary      domain.PromptBuilder

	CallTimeout time.Duration
	Logger      *zap.Logger
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Orchestrator) timeout() time.Duration {
	if o.CallTimeout <= 0 {
		return defaultCallTimeout
	}
	return o.CallTimeout
}

// Analyze never fails because of an individual analysis; it only returns an
// error for empty input or a missing prompt builder.
func (o *Orchestrator) Analyze(ctx context.Context, in AnalysisInput) (*AnalysisResult, error) {
	if strings.TrimSpace(in.Proposal) == "" {
		return nil, domain.ErrEmptyProposal
	}
	if strings.TrimSpace(in.ToR) == "" {
		return nil, domain.ErrEmptyToR
	}
	for _, k := range domain.Kinds {
		if o.Prompts[k] == nil {
			return nil, fmt.Errorf("no prompt builder for %s", k)
		}
	}

	base := o.summarize(ctx, domain.PromptInput{
		Proposal:   in.Proposal,
		ToR:        in.ToR,
		Guidelines: in.Guidelines,
	})

	internal := Go(ctx, func(ctx context.Context) (*domain.AnalysisSection, error) {
		return o.run(ctx, domain.KindInternal, base), nil
	})
	external := Go(ctx, func(ctx context.Context) (*domain.AnalysisSection, error) {
		return o.run(ctx, domain.KindExternal, base), nil
	})

	if err := Join(ctx, internal, external); err != nil || ctx.Err() != nil {
		o.log().Warn("evaluation_deadline_before_join", zap.Bool("internal_done", internal.Ready()), zap.Bool("external_done", external.Ready()))
		res := &AnalysisResult{
			Internal:         settled(internal, domain.KindInternal),
			External:         settled(external, domain.KindExternal),
			Delta:            domain.FailedSection(domain.KindDelta),
			Status:           domain.StatusFailure,
			DeadlineExceeded: true,
		}
		return res, nil
	}

	res := &AnalysisResult{
		Internal: settled(internal, domain.KindInternal),
		External: settled(external, domain.KindExternal),
	}

	deltaIn := base
	deltaIn.InternalInsights = Insights(domain.KindInternal, res.Internal)
	deltaIn.ExternalInsights = Insights(domain.KindExternal, res.External)
	res.Delta = o.run(ctx, domain.KindDelta, deltaIn)

	res.Status = domain.StatusOf(res.Sections()...)
	return res, nil
}

// settled returns the future's section when it finished, or a failed
// placeholder otherwise.
func settled(f *Future[*domain.AnalysisSection], kind domain.AnalysisKind) *domain.AnalysisSection {
	if !f.Ready() {
		return domain.FailedSection(kind)
	}
	sec, err := f.Await(context.Background())
	if err != nil || sec == nil {
		return domain.FailedSection(kind)
	}
	return sec
}

// run builds, calls and parses one analysis. Failure after the retry yields
// a failed section instead of an error.
func (o *Orchestrator) run(ctx context.Context, kind domain.AnalysisKind, in domain.PromptInput) *domain.AnalysisSection {
	start := time.Now()
	req := o.Prompts[kind].Build(in)
	raw, err := o.Complete(ctx, req)
	if err != nil {
		o.log().Error("analysis_failed", zap.String("kind", string(kind)), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return domain.FailedSection(kind)
	}

	sec := domain.Parse(kind, raw)
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("confidence", string(sec.ParseConfidence)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if sec.Score != nil {
		fields = append(fields, zap.Float64("score", *sec.Score))
	}
	o.log().Info("analysis_complete", fields...)
	return sec
}

// Complete calls the model with the per-call timeout and retries exactly
// once when the first failure is transient and ctx is still alive.
func (o *Orchestrator) Complete(ctx context.Context, req ai.Request) (string, error) {
	req.Temperature = ai.ClampTemperature(req.Temperature)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := o.attempt(ctx, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("evaluation cancelled: %w", errors.Join(ctx.Err(), err))
		}
		if !ai.IsTransient(err) {
			return "", err
		}
		if attempt < maxAttempts {
			o.log().Warn("llm_call_retry", zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (o *Orchestrator) attempt(ctx context.Context, req ai.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	f := Go(callCtx, func(ctx context.Context) (string, error) {
		return o.Client.Complete(ctx, req)
	})
	return f.Await(callCtx)
}

// summarize replaces the proposal and ToR with model summaries when the
// summary builders are configured. A failed summary falls back to a prefix
// of the raw text.
func (o *Orchestrator) summarize(ctx context.Context, in domain.PromptInput) domain.PromptInput {
	if o.ProposalSummary == nil || o.TorSummary == nil {
		return in
	}

	summary := func(b domain.PromptBuilder, text, label string) *Future[string] {
		return Go(ctx, func(ctx context.Context) (string, error) {
			out, err := o.Complete(ctx, b.Build(in))
			if err != nil || strings.TrimSpace(out) == "" {
				o.log().Warn("summary_failed", zap.String("document", label), zap.Error(err))
				return TruncateRunes(text, summaryFallback), nil
			}
			return strings.TrimSpace(out), nil
		})
	}

	proposal := summary(o.ProposalSummary, in.Proposal, "proposal")
	tor := summary(o.TorSummary, in.ToR, "tor")

	out := in
	if p, err := proposal.Await(ctx); err == nil {
		out.Proposal = p
	} else {
		out.Proposal = TruncateRunes(in.Proposal, summaryFallback)
	}
	if t, err := tor.Await(ctx); err == nil {
		out.ToR = t
	} else {
		out.ToR = TruncateRunes(in.ToR, summaryFallback)
	}
	return out
}

// Insights condenses a finished section for the Delta prompt. A failed
// section becomes a short placeholder.
func Insights(kind domain.AnalysisKind, s *domain.AnalysisSection) string {
	if s.Failed() {
		return kind.Label() + " analysis unavailable."
	}
	var b strings.Builder
	if s.Score != nil {
		fmt.Fprintf(&b, "Score: %.0f\n", *s.Score)
	}
	if n := TruncateRunes(s.Narrative, insightRunes); n != "" {
		b.WriteString(n)
		b.WriteString("\n")
	}
	if len(s.Gaps) > 0 {
		b.WriteString("Gaps already identified:\n")
		for _, g := range s.Gaps {
			b.WriteString("- ")
			b.WriteString(g)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
