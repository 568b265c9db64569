package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	retry "github.com/sethvargo/go-retry"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// LeadSink persists lead rows.
type LeadSink interface {
	InsertLead(ctx context.Context, lead *models.Lead) error
}

// LeadRecorder writes a lead row per answered query in the background,
// retrying with Fibonacci backoff. Recording never delays the response.
type LeadRecorder struct {
	sink    LeadSink
	logger  *slog.Logger
	base    time.Duration
	retries uint64
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewLeadRecorder(sink LeadSink, logger *slog.Logger) *LeadRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadRecorder{
		sink:    sink,
		logger:  logger,
		base:    200 * time.Millisecond,
		retries: 4,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
}

// Record builds the lead for res and schedules its write.
func (l *LeadRecorder) Record(callerID, query string, res models.FusionResult) {
	lead := &models.Lead{
		ID:           uuid.NewString(),
		CallerID:     callerID,
		Query:        query,
		Strategy:     res.Strategy,
		Confidence:   res.Confidence,
		Contributors: res.Metadata.Contributors,
		CreatedAt:    l.now().UTC(),
	}
	scores := make([]float64, 0, 2)
	for _, p := range res.Metadata.Contributors {
		scores = append(scores, res.Metadata.GlobalScores[p])
	}
	if len(scores) > 0 {
		lead.ScoreA = scores[0]
	}
	if len(scores) > 1 {
		lead.ScoreB = scores[1]
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.write(lead)
	}()
}

func (l *LeadRecorder) write(lead *models.Lead) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	b := retry.NewFibonacci(l.base)
	if err := retry.Do(ctx, retry.WithMaxRetries(l.retries, b), func(ctx context.Context) error {
		if err := l.sink.InsertLead(ctx, lead); err != nil {
			l.logger.Debug("lead write failed, will retry", "lead", lead.ID, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		l.logger.Warn("lead write gave up", "lead", lead.ID, "caller", lead.CallerID, "error", err)
	}
}

// Wait blocks until every scheduled write has finished.
func (l *LeadRecorder) Wait() {
	l.wg.Wait()
}
