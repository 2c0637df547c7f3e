package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// EvaluationRepo persists and loads evaluation history from PostgreSQL.
// Score vectors, suggestions, rewrites and references land in JSONB columns
// so the row mirrors the response envelope.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

// Save inserts one evaluation row keyed by trace_id. Replaying a trace id
// overwrites the row; saves are idempotent per evaluation.
func (r *EvaluationRepo) Save(ctx domain.Context, e domain.Evaluation) error {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("trace_id", e.TraceID),
	)

	baseJSON, err := json.Marshal(e.BaseScores)
	if err != nil {
		return fmt.Errorf("op=evaluation.save: %w", err)
	}
	finalJSON, err := json.Marshal(e.FinalScores)
	if err != nil {
		return fmt.Errorf("op=evaluation.save: %w", err)
	}
	suggestionsJSON, err := json.Marshal(e.Suggestions)
	if err != nil {
		return fmt.Errorf("op=evaluation.save: %w", err)
	}
	rewritesJSON, err := json.Marshal(e.Rewrites)
	if err != nil {
		return fmt.Errorf("op=evaluation.save: %w", err)
	}
	referencesJSON, err := json.Marshal(e.References)
	if err != nil {
		return fmt.Errorf("op=evaluation.save: %w", err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `INSERT INTO evaluations
	(trace_id, user_id, template_id, prompt, base_scores, final_scores, overall_score, suggestions, rewrite_versions, references_used, raw_output, parse_error, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (trace_id) DO UPDATE SET
	base_scores=EXCLUDED.base_scores, final_scores=EXCLUDED.final_scores,
	overall_score=EXCLUDED.overall_score, suggestions=EXCLUDED.suggestions,
	rewrite_versions=EXCLUDED.rewrite_versions, references_used=EXCLUDED.references_used,
	raw_output=EXCLUDED.raw_output, parse_error=EXCLUDED.parse_error`
	_, err = r.Pool.Exec(ctx, q,
		e.TraceID, e.UserID, e.TemplateID, e.Prompt,
		baseJSON, finalJSON, e.Overall,
		suggestionsJSON, rewritesJSON, referencesJSON,
		e.RawOutput, e.ParseError, createdAt)
	if err != nil {
		return fmt.Errorf("op=evaluation.save: %w", err)
	}
	return nil
}

const evaluationColumns = `trace_id, user_id, template_id, prompt, base_scores, final_scores, overall_score, suggestions, rewrite_versions, references_used, raw_output, parse_error, created_at`

// GetByTraceID loads one evaluation by its trace id.
func (r *EvaluationRepo) GetByTraceID(ctx domain.Context, traceID string) (domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.GetByTraceID")
	defer span.End()

	q := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE trace_id=$1`
	row := r.Pool.QueryRow(ctx, q, traceID)
	e, err := scanEvaluation(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w: trace %s", domain.ErrNotFound, traceID)
		}
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w", err)
	}
	return e, nil
}

// ListByUser returns the most recent evaluations for a user, newest first.
func (r *EvaluationRepo) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.ListByUser")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.list: %w", err)
	}
	defer rows.Close()

	var out []domain.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("op=evaluation.list: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evaluation.list: %w", err)
	}
	return out, nil
}

func scanEvaluation(scan func(dest ...any) error) (domain.Evaluation, error) {
	var (
		e               domain.Evaluation
		baseJSON        []byte
		finalJSON       []byte
		suggestionsJSON []byte
		rewritesJSON    []byte
		referencesJSON  []byte
	)
	if err := scan(
		&e.TraceID, &e.UserID, &e.TemplateID, &e.Prompt,
		&baseJSON, &finalJSON, &e.Overall,
		&suggestionsJSON, &rewritesJSON, &referencesJSON,
		&e.RawOutput, &e.ParseError, &e.CreatedAt,
	); err != nil {
		return domain.Evaluation{}, err
	}
	for _, p := range []struct {
		src []byte
		dst any
	}{
		{baseJSON, &e.BaseScores},
		{finalJSON, &e.FinalScores},
		{suggestionsJSON, &e.Suggestions},
		{rewritesJSON, &e.Rewrites},
		{referencesJSON, &e.References},
	} {
		if len(p.src) == 0 {
			continue
		}
		if err := json.Unmarshal(p.src, p.dst); err != nil {
			return domain.Evaluation{}, err
		}
	}
	return e, nil
}
