package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/metrics"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/repositories"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/resolver"
)

// DefaultReviewListLimit bounds List when no limit is given.
const DefaultReviewListLimit = 50

// ReviewOutcome is the result of a decision that replays an extraction.
type ReviewOutcome struct {
	Item    *models.ReviewQueueItem `json:"item"`
	Entries int                     `json:"entries"`
	Skipped int                     `json:"skipped"`
	Aliases int                     `json:"aliases_learned"`
}

// ReviewService drives the review queue state machine. Each item moves from
// pending to exactly one of approved, rejected or corrected.
type ReviewService interface {
	// Enqueue creates the pending item for a message. A message already queued
	// returns apperrors.ErrConflict.
	Enqueue(ctx context.Context, source models.SourceMessage, ext *models.ExtractionResult, preview *models.ResolutionPreview) (*models.ReviewQueueItem, error)
	List(ctx context.Context, status models.ReviewStatus, limit int) ([]*models.ReviewQueueItem, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReviewQueueItem, error)
	// Approve replays the stored extraction as-is.
	Approve(ctx context.Context, id uuid.UUID, reviewer string) (*ReviewOutcome, error)
	// Reject records the decision and nothing else.
	Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.ReviewQueueItem, error)
	// Correct applies corrections, replays, and learns an alias for every
	// corrected material or client mapping.
	Correct(ctx context.Context, id uuid.UUID, reviewer string, corrections models.ReviewCorrections) (*ReviewOutcome, error)
}

type reviewService struct {
	repo      repositories.ReviewRepository
	tx        database.Transactor
	committer *Committer
	resolver  *resolver.Resolver
	telemetry TelemetryService
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(
	repo repositories.ReviewRepository,
	tx database.Transactor,
	committer *Committer,
	res *resolver.Resolver,
	telemetry TelemetryService,
	m *metrics.Metrics,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{
		repo:      repo,
		tx:        tx,
		committer: committer,
		resolver:  res,
		telemetry: telemetry,
		metrics:   m,
		logger:    logger.Named("review-service"),
	}
}

var _ ReviewService = (*reviewService)(nil)

func (s *reviewService) Enqueue(ctx context.Context, source models.SourceMessage, ext *models.ExtractionResult, preview *models.ResolutionPreview) (*models.ReviewQueueItem, error) {
	if ext == nil {
		return nil, fmt.Errorf("%w: extraction is required", apperrors.ErrInvalidInput)
	}
	item := &models.ReviewQueueItem{
		MessageID:  source.MessageID,
		ThreadID:   source.ThreadID,
		Subject:    source.Subject,
		Confidence: ext.Confidence,
		Method:     ext.Method,
		Payload: models.ReviewPayload{
			Source:     source,
			Extraction: *ext,
			Preview:    preview,
		},
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	s.refreshPending(ctx)

	s.logger.Info("Extraction queued for review",
		zap.String("review_id", item.ID.String()),
		zap.String("message_id", item.MessageID),
		zap.Float64("confidence", item.Confidence),
		zap.Int("items", len(ext.Items)))
	return item, nil
}

func (s *reviewService) List(ctx context.Context, status models.ReviewStatus, limit int) ([]*models.ReviewQueueItem, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown review status %q", apperrors.ErrInvalidInput, status)
	}
	if limit <= 0 {
		limit = DefaultReviewListLimit
	}
	items, err := s.repo.List(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.ReviewQueueItem{}
	}
	return items, nil
}

func (s *reviewService) Get(ctx context.Context, id uuid.UUID) (*models.ReviewQueueItem, error) {
	return s.repo.Get(ctx, id)
}

func (s *reviewService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*ReviewOutcome, error) {
	var (
		outcome *ReviewOutcome
		commit  *CommitOutcome
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.repo.Transition(ctx, id, models.ReviewApproved, reviewer, "", nil)
		if err != nil {
			return err
		}
		ext := item.Payload.Extraction
		commit, err = s.committer.Commit(ctx, CommitRequest{
			Source:     item.Payload.Source,
			Extraction: &ext,
		})
		if err != nil {
			return err
		}
		if err := s.recordHumanReview(ctx, item, len(ext.Items)); err != nil {
			return err
		}
		outcome = &ReviewOutcome{Item: item, Entries: commit.Entries, Skipped: commit.Skipped}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to approve review item %s: %w", id, err)
	}

	s.committer.Publish(commit)
	s.decided(ctx, outcome.Item)
	return outcome, nil
}

func (s *reviewService) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.ReviewQueueItem, error) {
	reason = strings.TrimSpace(reason)
	var item *models.ReviewQueueItem
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.repo.Transition(ctx, id, models.ReviewRejected, reviewer, reason, nil)
		if err != nil {
			return err
		}
		errorText := "rejected"
		if reason != "" {
			errorText = "rejected: " + reason
		}
		return s.telemetry.RecordFailure(ctx, &models.ParsingFailureRecord{
			MessageID: item.MessageID,
			Method:    item.Method,
			Stage:     models.StageReview,
			ErrorText: errorText,
			Subject:   item.Subject,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reject review item %s: %w", id, err)
	}

	s.decided(ctx, item)
	return item, nil
}

func (s *reviewService) Correct(ctx context.Context, id uuid.UUID, reviewer string, corrections models.ReviewCorrections) (*ReviewOutcome, error) {
	var (
		outcome *ReviewOutcome
		commit  *CommitOutcome
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.repo.Transition(ctx, id, models.ReviewCorrected, reviewer, "", &corrections)
		if err != nil {
			return err
		}

		original := item.Payload.Extraction
		corrected, err := applyCorrections(&original, corrections)
		if err != nil {
			return err
		}

		commit, err = s.committer.Commit(ctx, CommitRequest{
			Source:      item.Payload.Source,
			Extraction:  corrected.extraction,
			ClientID:    corrections.ClientID,
			MaterialIDs: corrected.materialIDs,
		})
		if err != nil {
			return err
		}

		learned, err := s.learnFromCorrection(ctx, &original, corrected, corrections, commit)
		if err != nil {
			return err
		}
		if err := s.recordHumanReview(ctx, item, len(corrected.extraction.Items)); err != nil {
			return err
		}
		outcome = &ReviewOutcome{Item: item, Entries: commit.Entries, Skipped: commit.Skipped, Aliases: learned}
		return nil
	})

	// LearnAlias updates the in-memory alias map before the transaction
	// settles, so the index is rebuilt from the store either way.
	if reloadErr := s.resolver.Reload(ctx); reloadErr != nil {
		s.logger.Error("Failed to reload resolver after correction", zap.Error(reloadErr))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to correct review item %s: %w", id, err)
	}

	s.committer.Publish(commit)
	s.decided(ctx, outcome.Item)
	return outcome, nil
}

// learnFromCorrection maps the extracted text to the entity the reviewer chose.
// Text fixes without an explicit id teach the entity the fixed text resolved to.
func (s *reviewService) learnFromCorrection(ctx context.Context, original *models.ExtractionResult, c *correctedExtraction, corrections models.ReviewCorrections, commit *CommitOutcome) (int, error) {
	learned := 0

	if corrections.ClientID != nil && !original.Client.IsEmpty() {
		// A client known only by address is taught by address. The resolver
		// looks up address aliases after name aliases.
		text := original.Client.Name
		if text == "" {
			text = original.Client.Email
		}
		err := s.resolver.LearnAlias(ctx, models.EntityClient, text, *corrections.ClientID, models.AliasOriginCorrection)
		switch {
		case err == nil:
			learned++
		case !errors.Is(err, apperrors.ErrInvalidInput):
			return learned, err
		}
	}

	for _, ic := range corrections.Items {
		if ic.Remove || (ic.MaterialID == nil && ic.MaterialText == nil) {
			continue
		}
		newIndex, kept := c.indexMap[ic.Index]
		if !kept {
			continue
		}
		materialID, persisted := commit.MaterialIDs[newIndex]
		if !persisted {
			continue
		}
		text := original.Items[ic.Index].MaterialText
		if ic.MaterialID == nil && s.resolver.Normalize(models.EntityMaterial, text) == s.resolver.Normalize(models.EntityMaterial, *ic.MaterialText) {
			continue
		}
		if err := s.resolver.LearnAlias(ctx, models.EntityMaterial, text, materialID, models.AliasOriginCorrection); err != nil {
			if errors.Is(err, apperrors.ErrInvalidInput) {
				continue
			}
			return learned, err
		}
		learned++
	}
	return learned, nil
}

func (s *reviewService) recordHumanReview(ctx context.Context, item *models.ReviewQueueItem, items int) error {
	return s.telemetry.RecordParse(ctx, &models.ParsingHistoryRecord{
		MessageID:  item.MessageID,
		Method:     models.MethodHumanReview,
		Confidence: 1.0,
		ItemCount:  items,
	})
}

func (s *reviewService) decided(ctx context.Context, item *models.ReviewQueueItem) {
	s.metrics.ReviewDecision(item.Status)
	s.refreshPending(ctx)
	s.logger.Info("Review item decided",
		zap.String("review_id", item.ID.String()),
		zap.String("message_id", item.MessageID),
		zap.String("status", string(item.Status)))
}

func (s *reviewService) refreshPending(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.repo.CountByStatus(ctx, models.ReviewPending)
	if err != nil {
		s.logger.Warn("Failed to count pending reviews", zap.Error(err))
		return
	}
	s.metrics.SetReviewPending(n)
}
