package usecase

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/prompt-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
	"github.com/fairyhunter13/prompt-evaluator/internal/scorer"
)

// ImprovedCandidate is the best self-correction rewrite, attached to the
// output only when it beats the original by the configured margin.
type ImprovedCandidate struct {
	Prompt      string
	BaseScores  domain.ScoreVector
	FinalScores domain.ScoreVector
	Overall     *float64
}

// EvaluateOutput is the assembled evaluation, ready for the transport layer
// to render as the response envelope.
type EvaluateOutput struct {
	TraceID     string
	Prompt      string
	BaseScores  domain.ScoreVector
	FinalScores domain.ScoreVector
	Overall     *float64
	Suggestions []domain.Suggestion
	Rewrites    []domain.RewriteVariant
	References  []domain.ReferenceMatch
	Raw         string
	ParseErr    string
	Improved    *ImprovedCandidate
}

// EvaluateConfig carries the orchestration knobs.
type EvaluateConfig struct {
	RetrieveTopK      int
	LowScoreThreshold float64
	ImprovementMargin float64
	PenaltyStrength   float64
	XPMinimum         int
	XPPerPoint        float64
}

// EvaluateService runs the pipeline: normalize, retrieve, score, advise,
// assemble, then fire side effects. Stages run strictly in that order; each
// stage's failure policy differs and is documented on the call site.
type EvaluateService struct {
	Normalizer Normalizer
	Retriever  domain.ReferenceRetriever
	Scorer     domain.ScoreBackend
	Advisor    domain.Advisor
	Effects    *SideEffectDispatcher
	Cfg        EvaluateConfig
}

// NewEvaluateService constructs an EvaluateService with its dependencies.
func NewEvaluateService(n Normalizer, r domain.ReferenceRetriever, s domain.ScoreBackend, a domain.Advisor, fx *SideEffectDispatcher, cfg EvaluateConfig) EvaluateService {
	return EvaluateService{Normalizer: n, Retriever: r, Scorer: s, Advisor: a, Effects: fx, Cfg: cfg}
}

// Evaluate runs one evaluation. Returned errors are sentinel-wrapped:
// ErrInvalidArgument for rejected input, ErrEvaluatorUnavailable when the
// score backend is down. Everything else degrades into the output.
func (s EvaluateService) Evaluate(ctx domain.Context, in EvaluateInput) (EvaluateOutput, error) {
	start := time.Now()

	canonical, err := s.Normalizer.Normalize(in)
	if err != nil {
		return EvaluateOutput{}, err
	}

	k := in.K
	if k <= 0 {
		k = s.Cfg.RetrieveTopK
	}
	refs, err := s.Retriever.Retrieve(ctx, canonical, k)
	if err != nil {
		// retrievers swallow their own failures; treat a stray error the same
		slog.Warn("retriever returned error, continuing without references", slog.Any("error", err))
		refs = nil
	}

	scoreRes, err := s.Scorer.Score(ctx, canonical)
	if err != nil {
		observability.ObserveEvaluation("evaluator_unavailable", nil, time.Since(start))
		return EvaluateOutput{}, err
	}

	final := scorer.ApplyPenalty(scoreRes.Scores, canonical, s.Cfg.PenaltyStrength)
	overall := final.Overall()

	advice, err := s.Advisor.Advise(ctx, canonical, final, refs)
	if err != nil {
		// advising is an enrichment; an unreachable advisor degrades, it
		// does not fail the evaluation
		slog.Warn("advisor unavailable, degrading", slog.Any("error", err))
		advice = domain.Advice{ParseErr: fmt.Sprintf("advisor unavailable: %v", err)}
	}

	out := EvaluateOutput{
		TraceID:     newTraceID(),
		Prompt:      canonical,
		BaseScores:  scoreRes.Scores,
		FinalScores: final,
		Overall:     overall,
		Suggestions: advice.Suggestions,
		Rewrites:    advice.Rewrites,
		References:  refs,
	}
	out.Raw, out.ParseErr = mergeFlags(scoreRes, advice)

	if in.ImproveIfLow && overall != nil && *overall < s.Cfg.LowScoreThreshold {
		out.Improved = s.improve(ctx, *overall, advice.Rewrites)
	}

	outcome := "ok"
	if out.ParseErr != "" {
		outcome = "degraded"
	}
	observability.ObserveEvaluation(outcome, overall, time.Since(start))

	s.dispatchSideEffects(out, in)
	return out, nil
}

// improve scores each rewrite candidate and returns the best one that
// clears the improvement margin, or nil. One pass only; candidate scoring
// failures are logged and skipped.
func (s EvaluateService) improve(ctx domain.Context, overall float64, rewrites []domain.RewriteVariant) *ImprovedCandidate {
	var best *ImprovedCandidate
	bestOverall := overall + s.Cfg.ImprovementMargin
	for _, rw := range rewrites {
		cand := strings.TrimSpace(rw.Content)
		if cand == "" {
			continue
		}
		res, err := s.Scorer.Score(ctx, cand)
		if err != nil {
			slog.Warn("candidate scoring failed, skipping", slog.Any("error", err))
			continue
		}
		candFinal := scorer.ApplyPenalty(res.Scores, cand, s.Cfg.PenaltyStrength)
		candOverall := candFinal.Overall()
		if candOverall == nil || *candOverall <= bestOverall {
			continue
		}
		bestOverall = *candOverall
		best = &ImprovedCandidate{
			Prompt:      cand,
			BaseScores:  res.Scores,
			FinalScores: candFinal,
			Overall:     candOverall,
		}
	}
	return best
}

// dispatchSideEffects queues the post-assembly effects: history save, usage
// counter bump, XP award. The response path does not wait on them.
func (s EvaluateService) dispatchSideEffects(out EvaluateOutput, in EvaluateInput) {
	if s.Effects == nil {
		return
	}
	rec := domain.Evaluation{
		TraceID:     out.TraceID,
		UserID:      in.UserID,
		TemplateID:  in.TemplateID,
		Prompt:      out.Prompt,
		BaseScores:  out.BaseScores,
		FinalScores: out.FinalScores,
		Overall:     out.Overall,
		Suggestions: out.Suggestions,
		Rewrites:    out.Rewrites,
		References:  out.References,
		RawOutput:   out.Raw,
		ParseError:  out.ParseErr,
		CreatedAt:   time.Now().UTC(),
	}
	var award *domain.XPAward
	if in.UserID != "" && out.Overall != nil {
		award = &domain.XPAward{
			UserID:  in.UserID,
			TraceID: out.TraceID,
			Amount:  s.xpFor(*out.Overall),
			Reason:  "prompt evaluation",
		}
	}
	s.Effects.Dispatch(rec, award)
}

func (s EvaluateService) xpFor(overall float64) int {
	xp := int(math.Round(overall * s.Cfg.XPPerPoint))
	if xp < s.Cfg.XPMinimum {
		xp = s.Cfg.XPMinimum
	}
	return xp
}

// mergeFlags combines the raw capture and parse error of the score and
// advice stages. The scorer's capture wins when both degraded.
func mergeFlags(score domain.ScoreResult, advice domain.Advice) (raw, parseErr string) {
	if score.ParseErr != "" {
		return score.Raw, score.ParseErr
	}
	if advice.ParseErr != "" {
		return advice.Raw, advice.ParseErr
	}
	return "", ""
}

// Evaluate runs on concurrent request goroutines; the monotonic reader
// alone is not safe for that, so it is wrapped in a locked reader.
var traceEntropy = &ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec // Weak random is sufficient for ULID entropy.
}

// newTraceID returns a ULID string. Assigned exactly once per evaluation,
// after assembly and before any side effect fires.
func newTraceID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), traceEntropy).String()
}
