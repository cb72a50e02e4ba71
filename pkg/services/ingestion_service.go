package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/config"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/email"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/extraction"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/logging"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/metrics"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/prompts"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/repositories"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/resolver"
)

// Run kinds.
const (
	RunKindIngest   = "ingest"
	RunKindBackfill = "backfill"
)

// Per-message outcomes reported in RunSummary.Messages.
const (
	OutcomeCommitted = metrics.OutcomeCommitted
	OutcomeQueued    = metrics.OutcomeQueued
	OutcomeEmpty     = metrics.OutcomeEmpty
	OutcomeDuplicate = metrics.OutcomeDuplicate
	OutcomeFailed    = metrics.OutcomeFailed
)

// IngestionSettings are the tunables of the orchestrator.
type IngestionSettings struct {
	Keywords          []string
	LookbackDays      int
	MaxMessages       int
	BackfillBatchDays int
	BackfillPause     time.Duration
	CatalogSampleSize int
	// ReviewCommit is the confidence below which results go to review.
	ReviewCommit float64
	// FallbackSkip is the structured confidence at which the fallback is not called.
	FallbackSkip float64
	Merge        extraction.MergeConfig
}

// SettingsFromConfig maps configuration onto IngestionSettings.
func SettingsFromConfig(cfg *config.Config) IngestionSettings {
	return IngestionSettings{
		Keywords:          cfg.Ingestion.Keywords,
		LookbackDays:      cfg.Ingestion.LookbackDays,
		MaxMessages:       cfg.Ingestion.MaxMessages,
		BackfillBatchDays: cfg.Ingestion.BackfillBatchDays,
		BackfillPause:     cfg.Ingestion.BackfillPause,
		CatalogSampleSize: cfg.LLM.CatalogSampleSize,
		ReviewCommit:      cfg.Thresholds.ReviewCommit,
		FallbackSkip:      cfg.Thresholds.FallbackSkip,
		Merge:             extraction.MergeConfig{AgreementBonus: cfg.Thresholds.AgreementBonus},
	}
}

// DefaultIngestionSettings mirrors the configuration defaults.
func DefaultIngestionSettings() IngestionSettings {
	return IngestionSettings{
		Keywords:          []string{"quotation", "quote", "offer", "price"},
		LookbackDays:      7,
		MaxMessages:       100,
		BackfillBatchDays: 7,
		BackfillPause:     5 * time.Second,
		CatalogSampleSize: 50,
		ReviewCommit:      0.90,
		FallbackSkip:      0.95,
		Merge:             extraction.DefaultMergeConfig,
	}
}

// RunOptions narrows one run. Zero values fall back to the settings.
type RunOptions struct {
	After       time.Time
	Before      time.Time
	MaxMessages int
}

// MessageOutcome is what happened to one message in a run.
type MessageOutcome struct {
	MessageID  string                  `json:"message_id"`
	Subject    string                  `json:"subject,omitempty"`
	Outcome    string                  `json:"outcome"`
	Method     models.ExtractionMethod `json:"method,omitempty"`
	Confidence float64                 `json:"confidence"`
	Items      int                     `json:"items"`
	Entries    int                     `json:"entries"`
	CostUSD    float64                 `json:"cost_usd,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// RunSummary reports a finished run.
type RunSummary struct {
	Kind       string            `json:"kind"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Considered int               `json:"considered"`
	Committed  int               `json:"committed"`
	Queued     int               `json:"queued"`
	Empty      int               `json:"empty"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Entries    int               `json:"entries"`
	CostUSD    float64           `json:"cost_usd"`
	Messages   []*MessageOutcome `json:"messages"`
}

func (s *RunSummary) add(o *MessageOutcome) {
	s.Considered++
	s.Messages = append(s.Messages, o)
	switch o.Outcome {
	case OutcomeCommitted:
		s.Committed++
	case OutcomeQueued:
		s.Queued++
	case OutcomeEmpty:
		s.Empty++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeFailed:
		s.Failed++
	}
	s.Entries += o.Entries
	s.CostUSD += o.CostUSD
}

// IngestionService discovers quotation emails and turns them into price history.
type IngestionService interface {
	// Run processes one batch of candidate messages. It returns
	// apperrors.ErrRunInProgress when another run holds the lock.
	Run(ctx context.Context, opts RunOptions) (*RunSummary, error)
	// Backfill runs the pipeline over [from, to) in windows of
	// BackfillBatchDays, pausing between windows.
	Backfill(ctx context.Context, from, to time.Time) (*RunSummary, error)
	// ProcessMessage runs one fetched message through the pipeline. It does
	// not take the run lock or check the dedup ledger.
	ProcessMessage(ctx context.Context, msg *email.Message) *MessageOutcome
	// RunScheduler runs Run immediately and then every interval until ctx is done.
	RunScheduler(ctx context.Context, interval time.Duration)
	// LastRun returns the most recent summary, or nil.
	LastRun() *RunSummary
}

// IngestionDeps are the collaborators of the orchestrator.
type IngestionDeps struct {
	Provider   email.Provider
	Structured *extraction.StructuredExtractor
	Fallback   *extraction.FallbackExtractor
	Resolver   *resolver.Resolver
	Committer  *Committer
	Reviews    ReviewService
	Telemetry  TelemetryService
	Log        repositories.IngestionLogRepository
	Tx         database.Transactor
	Lock       RunLock
	Metrics    *metrics.Metrics
	Settings   IngestionSettings
	Logger     *zap.Logger
}

type ingestionService struct {
	IngestionDeps
	logger *zap.Logger

	mu      sync.RWMutex
	lastRun *RunSummary

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(deps IngestionDeps) IngestionService {
	if deps.Lock == nil {
		deps.Lock = NewLocalRunLock()
	}
	return &ingestionService{
		IngestionDeps: deps,
		logger:        deps.Logger.Named("ingestion-service"),
		sleep:         sleepCtx,
	}
}

var _ IngestionService = (*ingestionService)(nil)

func (s *ingestionService) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := s.newSummary(RunKindIngest)
	if opts.After.IsZero() {
		opts.After = time.Now().AddDate(0, 0, -s.Settings.LookbackDays)
	}
	err = s.runWindow(ctx, opts, summary)
	s.finish(summary)
	return summary, err
}

func (s *ingestionService) Backfill(ctx context.Context, from, to time.Time) (*RunSummary, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: backfill start %s is not before end %s", apperrors.ErrInvalidInput,
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := s.newSummary(RunKindBackfill)
	defer s.finish(summary)

	step := s.Settings.BackfillBatchDays
	if step <= 0 {
		step = 7
	}
	for start := from; start.Before(to); {
		end := start.AddDate(0, 0, step)
		if end.After(to) {
			end = to
		}
		s.logger.Info("Backfill window",
			zap.Time("after", start),
			zap.Time("before", end))

		// Each window gets its own message cap; backfill is bounded by the range.
		if err := s.runWindow(ctx, RunOptions{After: start, Before: end}, summary); err != nil {
			return summary, err
		}
		start = end
		if start.Before(to) && s.Settings.BackfillPause > 0 {
			if err := s.sleep(ctx, s.Settings.BackfillPause); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func (s *ingestionService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Ingestion scheduler started", zap.Duration("interval", interval))

		// Run immediately on startup, then at each interval
		s.scheduledRun(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Ingestion scheduler stopped")
				return
			case <-ticker.C:
				s.scheduledRun(ctx)
			}
		}
	}()
}

func (s *ingestionService) scheduledRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.Run(ctx, RunOptions{})
	switch {
	case errors.Is(err, apperrors.ErrRunInProgress):
		s.logger.Info("Ingestion scheduler: previous run still active, skipping")
	case err != nil:
		s.logger.Error("Ingestion scheduler: run failed", zap.Error(err))
	}
}

func (s *ingestionService) LastRun() *RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

func (s *ingestionService) acquire(ctx context.Context) (func(), error) {
	release, ok, err := s.Lock.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.Metrics.Busy()
		return nil, apperrors.ErrRunInProgress
	}
	return release, nil
}

func (s *ingestionService) newSummary(kind string) *RunSummary {
	return &RunSummary{Kind: kind, StartedAt: time.Now(), Messages: []*MessageOutcome{}}
}

func (s *ingestionService) finish(summary *RunSummary) {
	summary.FinishedAt = time.Now()
	s.Metrics.Run(summary.Kind, summary.FinishedAt.Sub(summary.StartedAt))

	s.mu.Lock()
	s.lastRun = summary
	s.mu.Unlock()

	s.logger.Info("Ingestion run finished",
		zap.String("kind", summary.Kind),
		zap.Int("considered", summary.Considered),
		zap.Int("committed", summary.Committed),
		zap.Int("queued", summary.Queued),
		zap.Int("empty", summary.Empty),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed),
		zap.Int("entries", summary.Entries),
		zap.Float64("cost_usd", summary.CostUSD),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))
}

// runWindow searches one date window and processes each result in order.
// Only a failed search or a cancelled context ends it early.
func (s *ingestionService) runWindow(ctx context.Context, opts RunOptions, summary *RunSummary) error {
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = s.Settings.MaxMessages
	}
	refs, err := s.Provider.Search(ctx, email.Query{
		Keywords:   s.Settings.Keywords,
		After:      opts.After,
		Before:     opts.Before,
		MaxResults: maxMessages,
	})
	if err != nil {
		s.recordFailure(ctx, "", "", models.MethodNone, models.StageFetch, err)
		return fmt.Errorf("failed to search mailbox: %w", err)
	}
	s.logger.Debug("Candidate messages found", zap.Int("count", len(refs)))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := s.processRef(ctx, ref)
		summary.add(o)
		s.Metrics.Message(o.Outcome)
	}
	return nil
}

func (s *ingestionService) processRef(ctx context.Context, ref email.MessageRef) *MessageOutcome {
	seen, err := s.Log.Exists(ctx, ref.ID)
	if err != nil {
		s.logger.Error("Failed to check ingestion log", zap.String("message_id", ref.ID), zap.Error(err))
		return &MessageOutcome{MessageID: ref.ID, Outcome: OutcomeFailed, Error: logging.SanitizeError(err)}
	}
	if seen {
		return &MessageOutcome{MessageID: ref.ID, Outcome: OutcomeDuplicate}
	}

	msg, err := s.Provider.Fetch(ctx, ref.ID)
	if err != nil {
		return s.fail(ctx, &email.Message{ID: ref.ID, ThreadID: ref.ThreadID}, models.MethodNone, models.StageFetch, err)
	}
	return s.ProcessMessage(ctx, msg)
}

func (s *ingestionService) ProcessMessage(ctx context.Context, msg *email.Message) *MessageOutcome {
	start := time.Now()

	structured := s.Structured.Extract(msg.HTML, extraction.Envelope{From: msg.From, To: msg.To, Cc: msg.Cc})

	var fallback *models.ExtractionResult
	if !structured.Usable() || structured.Confidence < s.Settings.FallbackSkip {
		if s.Fallback.Enabled() {
			var err error
			fallback, err = s.Fallback.Extract(ctx, prompts.QuotationEmail{
				Subject:    msg.Subject,
				From:       msg.From,
				To:         strings.Join(msg.To, ", "),
				ReceivedAt: msg.ReceivedAt,
				Body:       msg.PlainText(),
			}, s.Resolver.CatalogSample(s.Settings.CatalogSampleSize))
			if err != nil {
				return s.fail(ctx, msg, models.MethodFallback, models.StageExtraction, err)
			}
		}
	}

	result := extraction.Merge(structured, fallback, s.Settings.Merge)
	latency := time.Since(start)
	s.Metrics.Extraction(result.Method, result.Confidence)
	s.Metrics.LLMUsage(result.Usage)

	o := &MessageOutcome{
		MessageID:  msg.ID,
		Subject:    msg.Subject,
		Method:     result.Method,
		Confidence: result.Confidence,
		Items:      len(result.Items),
	}
	history := &models.ParsingHistoryRecord{
		MessageID:  msg.ID,
		Method:     result.Method,
		Confidence: result.Confidence,
		ItemCount:  len(result.Items),
		LatencyMS:  latency.Milliseconds(),
	}
	if result.Usage != nil {
		o.CostUSD = result.Usage.CostUSD
		history.CostUSD = result.Usage.CostUSD
		history.PromptTokens = result.Usage.PromptTokens
		history.CompletionTokens = result.Usage.CompletionTokens
	}

	source := models.SourceMessage{
		MessageID:  msg.ID,
		ThreadID:   msg.ThreadID,
		Subject:    msg.Subject,
		ReceivedAt: msg.ReceivedAt,
	}

	switch {
	case !result.Usable():
		o.Outcome = OutcomeEmpty
		o.Items = 0
		history.ItemCount = 0
		err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.Telemetry.RecordParse(ctx, history); err != nil {
				return err
			}
			return s.writeLog(ctx, msg, 0, models.IngestionStatusSuccess, result.Reason)
		})
		if err != nil {
			return s.fail(ctx, msg, result.Method, models.StagePersist, err)
		}
		s.logger.Debug("No quotation items found",
			zap.String("message_id", msg.ID),
			zap.String("reason", result.Reason))

	case result.Confidence < s.Settings.ReviewCommit:
		o.Outcome = OutcomeQueued
		preview := s.Committer.Preview(result)
		err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.Reviews.Enqueue(ctx, source, result, preview); err != nil && !errors.Is(err, apperrors.ErrConflict) {
				return err
			}
			if err := s.Telemetry.RecordParse(ctx, history); err != nil {
				return err
			}
			return s.writeLog(ctx, msg, len(result.Items), models.IngestionStatusPartial, "queued for review")
		})
		if err != nil {
			return s.fail(ctx, msg, result.Method, models.StagePersist, err)
		}

	default:
		o.Outcome = OutcomeCommitted
		var commit *CommitOutcome
		err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			commit, err = s.Committer.Commit(ctx, CommitRequest{Source: source, Extraction: result})
			if err != nil {
				return err
			}
			if err := s.Telemetry.RecordParse(ctx, history); err != nil {
				return err
			}
			return s.writeLog(ctx, msg, len(result.Items), models.IngestionStatusSuccess, "")
		})
		if err != nil {
			return s.fail(ctx, msg, result.Method, models.StagePersist, err)
		}
		s.Committer.Publish(commit)
		o.Entries = commit.Entries
	}

	s.logger.Info("Message processed",
		zap.String("message_id", msg.ID),
		zap.String("outcome", o.Outcome),
		zap.String("method", string(o.Method)),
		zap.Float64("confidence", o.Confidence),
		zap.Int("items", o.Items),
		zap.Int("entries", o.Entries),
		zap.Duration("latency", latency))
	return o
}

// fail records a per-message failure. The failure record and the ledger row
// are written outside any transaction the failed step may have rolled back.
func (s *ingestionService) fail(ctx context.Context, msg *email.Message, method models.ExtractionMethod, stage string, cause error) *MessageOutcome {
	text := logging.SanitizeError(cause)
	s.logger.Error("Message failed",
		zap.String("message_id", msg.ID),
		zap.String("stage", stage),
		zap.String("error", text))

	s.recordFailure(ctx, msg.ID, msg.Subject, method, stage, cause)
	if err := s.writeLog(ctx, msg, 0, models.IngestionStatusFailed, text); err != nil {
		s.logger.Error("Failed to write ingestion log", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return &MessageOutcome{
		MessageID: msg.ID,
		Subject:   msg.Subject,
		Outcome:   OutcomeFailed,
		Method:    method,
		Error:     text,
	}
}

func (s *ingestionService) recordFailure(ctx context.Context, messageID, subject string, method models.ExtractionMethod, stage string, cause error) {
	err := s.Telemetry.RecordFailure(ctx, &models.ParsingFailureRecord{
		MessageID: messageID,
		Method:    method,
		Stage:     stage,
		ErrorText: cause.Error(),
		Subject:   subject,
	})
	if err != nil {
		s.logger.Error("Failed to record parsing failure", zap.String("message_id", messageID), zap.Error(err))
	}
}

func (s *ingestionService) writeLog(ctx context.Context, msg *email.Message, items int, status, errorText string) error {
	return s.Log.Record(ctx, &models.IngestionLogRecord{
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		ItemCount: items,
		Status:    status,
		ErrorText: logging.TruncateString(errorText, logging.MaxErrorTextLength),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
