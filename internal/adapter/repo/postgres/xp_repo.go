package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// XPRepo implements domain.XPLedger on PostgreSQL. Each award appends an
// audit row and bumps the user's running total in one round trip each.
type XPRepo struct{ Pool PgxPool }

// NewXPRepo constructs an XPRepo with the given pool.
func NewXPRepo(p PgxPool) *XPRepo { return &XPRepo{Pool: p} }

// Award credits a.Amount to the user and returns the new total. The award
// row is keyed by trace_id so replaying an evaluation cannot double-credit.
func (r *XPRepo) Award(ctx domain.Context, a domain.XPAward) (int64, error) {
	tracer := otel.Tracer("repo.xp")
	ctx, span := tracer.Start(ctx, "xp.Award")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("user_id", a.UserID),
		attribute.Int("amount", a.Amount),
	)

	insert := `INSERT INTO xp_awards (trace_id, user_id, amount, reason, created_at)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (trace_id) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, insert, a.TraceID, a.UserID, a.Amount, a.Reason, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("op=xp.award: %w", err)
	}
	credit := a.Amount
	if tag.RowsAffected() == 0 {
		// already credited for this trace; report the current total
		credit = 0
	}

	upsert := `INSERT INTO user_progress (user_id, xp, updated_at)
	VALUES ($1,$2,$3)
	ON CONFLICT (user_id) DO UPDATE SET xp = user_progress.xp + EXCLUDED.xp, updated_at = EXCLUDED.updated_at
	RETURNING xp`
	var total int64
	if err := r.Pool.QueryRow(ctx, upsert, a.UserID, credit, time.Now().UTC()).Scan(&total); err != nil {
		return 0, fmt.Errorf("op=xp.award: %w", err)
	}
	return total, nil
}
