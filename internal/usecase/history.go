package usecase

import (
	"time"

	"github.com/fairyhunter13/prompt-evaluator/internal/domain"
)

// HistoryService answers read queries over persisted evaluations and usage
// counters.
type HistoryService struct {
	Evaluations domain.EvaluationRepository
	Usage       domain.UsageCounterRepository
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(e domain.EvaluationRepository, u domain.UsageCounterRepository) HistoryService {
	return HistoryService{Evaluations: e, Usage: u}
}

// GetByTraceID loads one evaluation by its trace id.
func (s HistoryService) GetByTraceID(ctx domain.Context, traceID string) (domain.Evaluation, error) {
	return s.Evaluations.GetByTraceID(ctx, traceID)
}

// ListByUser returns a user's recent evaluations, newest first.
func (s HistoryService) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.Evaluation, error) {
	return s.Evaluations.ListByUser(ctx, userID, limit)
}

// UsageToday returns today's counter for a template.
func (s HistoryService) UsageToday(ctx domain.Context, templateID string) (int64, error) {
	return s.Usage.Get(ctx, templateID, time.Now().UTC())
}

// UsageOn returns the counter for a template on a specific day.
func (s HistoryService) UsageOn(ctx domain.Context, templateID string, day time.Time) (int64, error) {
	return s.Usage.Get(ctx, templateID, day)
}
