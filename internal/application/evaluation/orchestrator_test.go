package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
)

type stubBuilder struct {
	kind        string
	temperature float32
}

func (b stubBuilder) Build(in domain.PromptInput) ai.Request {
	prompt := strings.Join([]string{
		"KIND=" + b.kind,
		"PROPOSAL=" + in.Proposal,
		"TOR=" + in.ToR,
		"GUIDELINES=" + in.Guidelines,
		"INTERNAL=" + in.InternalInsights,
		"EXTERNAL=" + in.ExternalInsights,
	}, "\n")
	temp := b.temperature
	if temp == 0 {
		temp = 0.7
	}
	return ai.Request{Prompt: prompt, Temperature: temp, MaxTokens: 2000}
}

type responder func(ctx context.Context, kind string, attempt int) (string, error)

type scriptedClient struct {
	mu       sync.Mutex
	calls    map[string]int
	prompts  map[string][]string
	temps    []float32
	finished map[string]bool
	// kinds already finished when Delta was first dispatched
	seenAtDelta map[string]bool
	respond     responder
}

func newScriptedClient(r responder) *scriptedClient {
	return &scriptedClient{
		calls:    map[string]int{},
		prompts:  map[string][]string{},
		finished: map[string]bool{},
		respond:  r,
	}
}

func kindOf(prompt string) string {
	first, _, _ := strings.Cut(prompt, "\n")
	return strings.TrimPrefix(first, "KIND=")
}

func (c *scriptedClient) Complete(ctx context.Context, req ai.Request) (string, error) {
	kind := kindOf(req.Prompt)

	c.mu.Lock()
	c.calls[kind]++
	attempt := c.calls[kind]
	c.prompts[kind] = append(c.prompts[kind], req.Prompt)
	c.temps = append(c.temps, req.Temperature)
	if kind == string(domain.KindDelta) && c.seenAtDelta == nil {
		c.seenAtDelta = map[string]bool{}
		for k, v := range c.finished {
			c.seenAtDelta[k] = v
		}
	}
	c.mu.Unlock()

	out, err := c.respond(ctx, kind, attempt)

	c.mu.Lock()
	c.finished[kind] = true
	c.mu.Unlock()
	return out, err
}

func (c *scriptedClient) callCount(kind domain.AnalysisKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[string(kind)]
}

func (c *scriptedClient) lastPrompt(kind domain.AnalysisKind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.prompts[string(kind)]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func goodResponse(score int, gap string) string {
	return fmt.Sprintf("**SCORE**: %d\n\n**GAPS**:\n- %s\n\n**DETAILED ANALYSIS**:\nNarrative for %s.", score, gap, gap)
}

func allGood(_ context.Context, kind string, _ int) (string, error) {
	switch kind {
	case string(domain.KindInternal):
		return goodResponse(80, "internal gap"), nil
	case string(domain.KindExternal):
		return goodResponse(60, "external gap"), nil
	default:
		return goodResponse(70, "delta gap"), nil
	}
}

func newOrchestrator(client ai.Client) *Orchestrator {
	return &Orchestrator{
		Client: client,
		Prompts: map[domain.AnalysisKind]domain.PromptBuilder{
			domain.KindInternal: stubBuilder{kind: string(domain.KindInternal)},
			domain.KindExternal: stubBuilder{kind: string(domain.KindExternal)},
			domain.KindDelta:    stubBuilder{kind: string(domain.KindDelta)},
		},
		CallTimeout: time.Second,
	}
}

var input = AnalysisInput{Proposal: "We will build wells.", ToR: "Build ten wells.", Guidelines: "Be frugal."}

func TestAnalyzeSuccess(t *testing.T) {
	client := newScriptedClient(allGood)
	res, err := newOrchestrator(client).Analyze(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.False(t, res.DeadlineExceeded)
	for _, s := range res.Sections() {
		assert.Equal(t, domain.ConfidenceFull, s.ParseConfidence, s.Kind)
	}

	assert.True(t, client.seenAtDelta[string(domain.KindInternal)], "delta waits for internal")
	assert.True(t, client.seenAtDelta[string(domain.KindExternal)], "delta waits for external")

	delta := client.lastPrompt(domain.KindDelta)
	assert.Contains(t, delta, "INTERNAL=Score: 80")
	assert.Contains(t, delta, "- internal gap")
	assert.Contains(t, delta, "- external gap")
	assert.Contains(t, client.lastPrompt(domain.KindExternal), "GUIDELINES=Be frugal.")
}

func TestAnalyzeInternalTimesOutTwice(t *testing.T) {
	client := newScriptedClient(func(ctx context.Context, kind string, attempt int) (string, error) {
		if kind == string(domain.KindInternal) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return allGood(ctx, kind, attempt)
	})
	o := newOrchestrator(client)
	o.CallTimeout = 30 * time.Millisecond

	res, err := o.Analyze(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 2, client.callCount(domain.KindInternal), "retried exactly once")
	assert.Equal(t, domain.ConfidenceFailed, res.Internal.ParseConfidence)
	assert.Nil(t, res.Internal.Score)
	assert.Empty(t, res.Internal.Narrative)

	assert.Equal(t, domain.ConfidenceFull, res.External.ParseConfidence)
	assert.Equal(t, 1, client.callCount(domain.KindDelta), "delta still runs")
	assert.Contains(t, client.lastPrompt(domain.KindDelta), "INTERNAL=Internal analysis unavailable.")
	assert.Contains(t, client.lastPrompt(domain.KindDelta), "- external gap")

	assert.Equal(t, domain.StatusPartialSuccess, res.Status)
}

func TestAnalyzeRetryPolicy(t *testing.T) {
	t.Run("permanent error is not retried", func(t *testing.T) {
		client := newScriptedClient(func(ctx context.Context, kind string, attempt int) (string, error) {
			if kind == string(domain.KindExternal) {
				return "", ai.Classify("openai", 401, "invalid_api_key", errors.New("bad key"))
			}
			return allGood(ctx, kind, attempt)
		})
		res, err := newOrchestrator(client).Analyze(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, 1, client.callCount(domain.KindExternal))
		assert.True(t, res.External.Failed())
		assert.Equal(t, domain.StatusPartialSuccess, res.Status)
	})

	t.Run("transient error then success", func(t *testing.T) {
		client := newScriptedClient(func(ctx context.Context, kind string, attempt int) (string, error) {
			if kind == string(domain.KindExternal) && attempt == 1 {
				return "", ai.Classify("openai", 503, "", errors.New("unavailable"))
			}
			return allGood(ctx, kind, attempt)
		})
		res, err := newOrchestrator(client).Analyze(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, 2, client.callCount(domain.KindExternal))
		assert.False(t, res.External.Failed())
		assert.Equal(t, domain.StatusSuccess, res.Status)
	})

	t.Run("transient twice fails the section", func(t *testing.T) {
		client := newScriptedClient(func(ctx context.Context, kind string, attempt int) (string, error) {
			if kind == string(domain.KindDelta) {
				return "", ai.Classify("anthropic", 529, "overloaded_error", errors.New("overloaded"))
			}
			return allGood(ctx, kind, attempt)
		})
		res, err := newOrchestrator(client).Analyze(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, 2, client.callCount(domain.KindDelta))
		assert.True(t, res.Delta.Failed())
		assert.Equal(t, domain.StatusPartialSuccess, res.Status)
	})
}

func TestAnalyzeAllFailed(t *testing.T) {
	client := newScriptedClient(func(context.Context, string, int) (string, error) {
		return "", ai.Classify("openai", 400, "", errors.New("bad request"))
	})
	res, err := newOrchestrator(client).Analyze(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, res.Status)
	assert.False(t, res.DeadlineExceeded)
}

func TestAnalyzeDeadlineBeforeJoin(t *testing.T) {
	client := newScriptedClient(func(ctx context.Context, kind string, attempt int) (string, error) {
		if kind == string(domain.KindInternal) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return allGood(ctx, kind, attempt)
	})
	o := newOrchestrator(client)
	o.CallTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := o.Analyze(ctx, input)
	require.NoError(t, err)
	assert.True(t, res.DeadlineExceeded)
	assert.Equal(t, domain.StatusFailure, res.Status)
	assert.True(t, res.Internal.Failed())
	assert.True(t, res.Delta.Failed())
	assert.Equal(t, 0, client.callCount(domain.KindDelta), "delta is never dispatched")
	assert.Equal(t, 1, client.callCount(domain.KindInternal), "no retry once the deadline passed")
}

func blockingDelta(ctx context.Context, kind string, attempt int) (string, error) {
	if kind == string(domain.KindDelta) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return allGood(ctx, kind, attempt)
}

func TestAnalyzeDeadlineAfterJoin(t *testing.T) {
	client := newScriptedClient(blockingDelta)
	o := newOrchestrator(client)
	o.CallTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := o.Analyze(ctx, input)
	require.NoError(t, err)
	assert.False(t, res.DeadlineExceeded, "internal and external finished before the deadline")
	assert.False(t, res.Internal.Failed())
	assert.False(t, res.External.Failed())
	assert.True(t, res.Delta.Failed())
	assert.Nil(t, res.Delta.Score)
	assert.Equal(t, domain.StatusPartialSuccess, res.Status)
	assert.Equal(t, 1, client.callCount(domain.KindDelta), "no retry once the deadline passed")
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	o := newOrchestrator(newScriptedClient(allGood))

	_, err := o.Analyze(context.Background(), AnalysisInput{Proposal: "  ", ToR: "tor"})
	assert.ErrorIs(t, err, domain.ErrEmptyProposal)

	_, err = o.Analyze(context.Background(), AnalysisInput{Proposal: "p", ToR: "\n"})
	assert.ErrorIs(t, err, domain.ErrEmptyToR)
}

func TestAnalyzeMissingBuilder(t *testing.T) {
	o := newOrchestrator(newScriptedClient(allGood))
	delete(o.Prompts, domain.KindDelta)

	_, err := o.Analyze(context.Background(), input)
	assert.Error(t, err)
}

func TestAnalyzeClampsTemperature(t *testing.T) {
	client := newScriptedClient(allGood)
	o := newOrchestrator(client)
	o.Prompts[domain.KindInternal] = stubBuilder{kind: string(domain.KindInternal), temperature: 1.7}

	_, err := o.Analyze(context.Background(), input)
	require.NoError(t, err)
	for _, temp := range client.temps {
		assert.LessOrEqual(t, temp, float32(1))
	}
}

func TestAnalyzeSummaries(t *testing.T) {
	t.Run("summaries replace raw text", func(t *testing.T) {
		client := newScriptedClient(func(ctx context.Context, kind string, attempt int) (string, error) {
			switch kind {
			case "proposal_summary":
				return "short proposal", nil
			case "tor_summary":
				return "short tor", nil
			}
			return allGood(ctx, kind, attempt)
		})
		o := newOrchestrator(client)
		o.ProposalSummary = stubBuilder{kind: "proposal_summary"}
		o.TorSummary = stubBuilder{kind: "tor_summary"}

		_, err := o.Analyze(context.Background(), input)
		require.NoError(t, err)
		assert.Contains(t, client.lastPrompt(domain.KindExternal), "PROPOSAL=short proposal")
		assert.Contains(t, client.lastPrompt(domain.KindExternal), "TOR=short tor")
	})

	t.Run("failed summary falls back to raw prefix", func(t *testing.T) {
		client := newScriptedClient(func(ctx context.Context, kind string, attempt int) (string, error) {
			if strings.HasSuffix(kind, "_summary") {
				return "", ai.Classify("openai", 400, "", errors.New("nope"))
			}
			return allGood(ctx, kind, attempt)
		})
		o := newOrchestrator(client)
		o.ProposalSummary = stubBuilder{kind: "proposal_summary"}
		o.TorSummary = stubBuilder{kind: "tor_summary"}

		res, err := o.Analyze(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, res.Status)
		assert.Contains(t, client.lastPrompt(domain.KindInternal), "PROPOSAL="+input.Proposal)
	})
}

func TestInsights(t *testing.T) {
	assert.Equal(t, "External analysis unavailable.", Insights(domain.KindExternal, domain.FailedSection(domain.KindExternal)))

	score := 55.0
	long := strings.Repeat("é", 600)
	got := Insights(domain.KindInternal, &domain.AnalysisSection{
		Score:           &score,
		Narrative:       long,
		Gaps:            []string{"a", "b"},
		ParseConfidence: domain.ConfidencePartial,
	})
	assert.True(t, strings.HasPrefix(got, "Score: 55\n"))
	assert.Contains(t, got, strings.Repeat("é", 500)+"\n")
	assert.NotContains(t, got, strings.Repeat("é", 501))
	assert.True(t, strings.HasSuffix(got, "- a\n- b"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
	assert.Equal(t, "hi", TruncateRunes("hi", 4))
}
