package prompt

import (
	"strings"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
)

const (
	analysisTemperature = 0.7
	analysisMaxTokens   = 2000
	summaryTemperature  = 0.5
	summaryMaxTokens    = 800
	followupTemperature = 0.7
	followupMaxTokens   = 600

	noGuidelines = "No organization-specific guidelines provided."
)

// Builder renders one template into a completion request.
type Builder struct {
	Name        string
	System      string
	Template    string
	Temperature float32
	MaxTokens   int
}

// Build fills the template placeholders in a single pass, so document text
// that happens to contain a placeholder is never expanded.
func (b Builder) Build(in evaluation.PromptInput) ai.Request {
	guidelines := strings.TrimSpace(in.Guidelines)
	if guidelines == "" {
		guidelines = noGuidelines
	}
	section := strings.TrimSpace(in.Section)
	if section == "" {
		section = "None"
	}
	r := strings.NewReplacer(
		"{proposal}", strings.TrimSpace(in.Proposal),
		"{tor}", strings.TrimSpace(in.ToR),
		"{guidelines}", guidelines,
		"{internal_insights}", orNone(in.InternalInsights),
		"{external_insights}", orNone(in.ExternalInsights),
		"{evaluation_summary}", orNone(in.EvaluationSummary),
		"{question}", strings.TrimSpace(in.Question),
		"{section}", section,
	)
	return ai.Request{
		Prompt:       r.Replace(b.Template),
		SystemPrompt: b.System,
		Temperature:  ai.ClampTemperature(b.Temperature),
		MaxTokens:    b.MaxTokens,
	}
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "None"
	}
	return s
}

// Analyses maps each analysis kind to its builder.
func Analyses() map[evaluation.AnalysisKind]evaluation.PromptBuilder {
	return AnalysesWithMaxTokens(0)
}

// AnalysesWithMaxTokens overrides the analysis token budget; n <= 0 keeps
// the default.
func AnalysesWithMaxTokens(n int) map[evaluation.AnalysisKind]evaluation.PromptBuilder {
	out := map[evaluation.AnalysisKind]evaluation.PromptBuilder{}
	for kind, b := range map[evaluation.AnalysisKind]Builder{
		evaluation.KindInternal: Internal(),
		evaluation.KindExternal: External(),
		evaluation.KindDelta:    Delta(),
	} {
		if n > 0 {
			b.MaxTokens = n
		}
		out[kind] = b
	}
	return out
}

func Internal() Builder {
	return Builder{Name: "p_internal", System: evaluatorSystem, Template: internalTemplate, Temperature: analysisTemperature, MaxTokens: analysisMaxTokens}
}

func External() Builder {
	return Builder{Name: "p_external", System: evaluatorSystem, Template: externalTemplate, Temperature: analysisTemperature, MaxTokens: analysisMaxTokens}
}

func Delta() Builder {
	return Builder{Name: "p_delta", System: evaluatorSystem, Template: deltaTemplate, Temperature: analysisTemperature, MaxTokens: analysisMaxTokens}
}

func ProposalSummary() Builder {
	return Builder{Name: "proposal_summary", System: summarySystem, Template: proposalSummaryTemplate, Temperature: summaryTemperature, MaxTokens: summaryMaxTokens}
}

func TorSummary() Builder {
	return Builder{Name: "tor_summary", System: summarySystem, Template: torSummaryTemplate, Temperature: summaryTemperature, MaxTokens: summaryMaxTokens}
}

func Followup() Builder {
	return Builder{Name: "followup", System: evaluatorSystem, Template: followupTemplate, Temperature: followupTemperature, MaxTokens: followupMaxTokens}
}

const evaluatorSystem = `You are an expert evaluator of funding and program proposals. Answer in plain text using exactly the section headers requested. Never wrap the answer in code fences.`

const summarySystem = `You are an expert in proposal and Terms of Reference analysis. Write concise, factual summaries.`

const outputFormat = `## Output Format
Provide your analysis in the following structure:

**SCORE**: [0-100]

**STRENGTHS**:
- [one per line]

**GAPS**:
- [one per line]

**RECOMMENDATIONS**:
- [one per line]

**DETAILED ANALYSIS**:
[400-600 words of narrative analysis]`

const internalTemplate = `You are analyzing the INTERNAL CONSISTENCY of a proposal.

## Task
Evaluate the proposal's internal consistency against the organization's guidelines.

## Proposal
{proposal}

## Organization Guidelines
{guidelines}

## Instructions
Analyze the proposal for:
1. Logical consistency between objectives, activities and outcomes
2. Completeness of essential components
3. Clarity and structure
4. Feasibility of the proposed activities
5. Coherence across sections

` + outputFormat

const externalTemplate = `You are analyzing the ALIGNMENT of a proposal with its Terms of Reference (ToR).

## Task
Evaluate how well the proposal addresses the requirements specified in the ToR.

## Proposal
{proposal}

## ToR
{tor}

## Organization Guidelines
{guidelines}

## Instructions
Analyze the alignment between proposal and ToR:
1. Coverage of every ToR requirement
2. Alignment of objectives
3. Methodology against ToR specifications
4. Deliverables against ToR expectations
5. Team qualifications against required qualifications

` + outputFormat

const deltaTemplate = `You are performing a GAP ANALYSIS between a proposal and its Terms of Reference (ToR).

## Task
Identify the gaps and differences between the proposal and the ToR. Do not restate gaps already listed in the insights below unless you add something new.

## Proposal
{proposal}

## ToR
{tor}

## Internal Analysis Insights
{internal_insights}

## External Analysis Insights
{external_insights}

## Instructions
1. Missing requirements
2. Partially covered requirements
3. Scope and scale differences
4. Budget, timeline and personnel gaps
5. Quality and standard discrepancies

## Output Format
**SCORE**: [0-100, where 100 means no gaps]

**CRITICAL GAPS**:
- [one per line]

**MINOR GAPS**:
- [one per line]

**RECOMMENDATIONS**:
- [prioritized, one per line]

**DETAILED ANALYSIS**:
[400-600 words on the gaps, their implications and how to close them]`

const proposalSummaryTemplate = `Summarize the following proposal.

## Proposal
{proposal}

Cover the main objectives, key activities and methodology, expected outcomes, budget highlights, timeline and target beneficiaries when they are mentioned. Keep it between 300 and 500 words.`

const torSummaryTemplate = `Summarize the following Terms of Reference (ToR).

## ToR
{tor}

Cover the main requirements, scope of work, expected deliverables, required qualifications, evaluation criteria and deadlines when they are mentioned. Keep it between 300 and 500 words.`

const followupTemplate = `You previously evaluated a proposal against its Terms of Reference and the organization's guidelines. The evaluation covered internal consistency, ToR alignment and gap analysis.

## Evaluation Summary
{evaluation_summary}

## Section
{section}

## Question
{question}

Answer the question from the evaluation context. Reference specific findings and keep the answer between 200 and 400 words.`
