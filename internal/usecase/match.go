package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/productmatch/internal/catalog"
	"github.com/example/productmatch/internal/compliance"
	"github.com/example/productmatch/internal/imageio"
	"github.com/example/productmatch/internal/logging"
	"github.com/example/productmatch/internal/matcher"
	"github.com/example/productmatch/internal/repository"
	"github.com/example/productmatch/internal/retry"
)

// MatchRepository defines the persistence operations needed by the use case.
type MatchRepository interface {
	ListCatalog(ctx context.Context) ([]catalog.Entry, error)
	SaveLog(ctx context.Context, log *repository.MatchLog) error
	FindBySearchID(ctx context.Context, searchID string) (*repository.MatchLog, error)
	AggregateStats(ctx context.Context) (*repository.Stats, error)
}

// Searcher runs the best-match search.
type Searcher interface {
	FindBestMatch(ctx context.Context, userImage image.Image, entries []catalog.Entry, check matcher.ComplianceFunc) (*matcher.Result, error)
}

// TermsSource hands out the current forbidden-terms snapshot.
type TermsSource interface {
	Terms() compliance.Terms
}

// MatchResponse is returned by Match.
type MatchResponse struct {
	SearchID string
	Result   *matcher.Result
	Report   string
}

// StatsSummary represents aggregated match insights.
type StatsSummary struct {
	TotalSearches     int64   `json:"total_searches"`
	AcceptedSearches  int64   `json:"accepted_searches"`
	AcceptRate        float64 `json:"accept_rate"`
	AverageScore      float64 `json:"average_score"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}

// MatchUseCase wires decoding, catalog lookup, the search and result storage.
type MatchUseCase struct {
	repo      MatchRepository
	cache     Cache
	searcher  Searcher
	terms     TermsSource
	logger    *zap.Logger
	retry     retry.Policy
	resultTTL time.Duration
	now       func() time.Time
}

type cachedMatch struct {
	SearchID  string    `json:"search_id"`
	EntryID   *int64    `json:"entry_id,omitempty"`
	EntryName string    `json:"entry_name"`
	Score     float64   `json:"score"`
	Accepted  bool      `json:"accepted"`
	Verdict   string    `json:"verdict"`
	Report    string    `json:"report"`
	Hash      string    `json:"sha1_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMatchUseCase constructs a new use case instance.
func NewMatchUseCase(repo MatchRepository, cache Cache, searcher Searcher, terms TermsSource, logger *zap.Logger, resultTTL time.Duration) *MatchUseCase {
	if resultTTL <= 0 {
		resultTTL = 10 * time.Minute
	}
	return &MatchUseCase{
		repo:      repo,
		cache:     cache,
		searcher:  searcher,
		terms:     terms,
		logger:    logger.Named("match_usecase"),
		retry:     retry.DefaultPolicy,
		resultTTL: resultTTL,
		now:       time.Now,
	}
}

// Match decodes the uploaded image and searches the catalog for it. History
// and cache writes are best effort; only decode, catalog and search failures
// are returned.
func (uc *MatchUseCase) Match(ctx context.Context, imageBytes []byte) (*MatchResponse, error) {
	searchID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.match", searchID)
	started := uc.now()

	img, err := imageio.Decode(imageBytes)
	if err != nil {
		return nil, logging.NewOperationError("usecase.decode_image", searchID, fmt.Errorf("%w: %v", matcher.ErrInvalidImage, err))
	}

	entries, err := uc.repo.ListCatalog(ctx)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.list_catalog", searchID, err)
		opLogger.Error("failed to load catalog", zap.Error(wrapped))
		return nil, wrapped
	}

	result, err := uc.searcher.FindBestMatch(ctx, img, entries, compliance.Checker(uc.terms.Terms()))
	if err != nil {
		wrapped := logging.NewOperationError("usecase.find_best_match", searchID, err)
		opLogger.Error("search failed", zap.Error(wrapped))
		return nil, wrapped
	}

	hash := sha1.Sum(imageBytes)
	log := &repository.MatchLog{
		SearchID:    searchID,
		Accepted:    result.Accepted,
		Verdict:     result.Verdict,
		Report:      result.Report(),
		SHA1Hash:    hex.EncodeToString(hash[:]),
		CatalogSize: len(entries),
		DurationMs:  uc.now().Sub(started).Milliseconds(),
		CreatedAt:   uc.now().UTC(),
	}
	if o := result.Outcome; o != nil {
		id := o.Entry.ID
		log.EntryID = &id
		log.EntryName = o.Entry.Name
		log.Score = o.Score
	}

	opLogger.Info("search completed",
		zap.Int("catalog_size", len(entries)),
		zap.Bool("accepted", log.Accepted),
		zap.Float64("score", log.Score),
		zap.Int64("duration_ms", log.DurationMs),
	)

	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Warn("failed to persist match log", zap.Error(err))
	}
	uc.cacheResult(ctx, log)

	return &MatchResponse{SearchID: searchID, Result: result, Report: log.Report}, nil
}

func (uc *MatchUseCase) cacheResult(ctx context.Context, log *repository.MatchLog) {
	serialized, err := json.Marshal(cachedMatch{
		SearchID:  log.SearchID,
		EntryID:   log.EntryID,
		EntryName: log.EntryName,
		Score:     log.Score,
		Accepted:  log.Accepted,
		Verdict:   log.Verdict,
		Report:    log.Report,
		Hash:      log.SHA1Hash,
		CreatedAt: log.CreatedAt,
	})
	if err != nil {
		uc.logger.Warn("failed to serialize match result", zap.Error(err))
		return
	}

	err = retry.Do(ctx, uc.logger, uc.retry, "cache.set.result", log.SearchID, func() error {
		return uc.cache.Set(ctx, log.SearchID, string(serialized), uc.resultTTL)
	})
	if err != nil {
		uc.logger.Warn("failed to cache match result", zap.Error(err))
	}
}

// GetResult returns a finished search from the cache, or from the history
// table when the cache has expired.
func (uc *MatchUseCase) GetResult(ctx context.Context, searchID string) (*repository.MatchLog, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", searchID)

	var cached string
	miss := false
	err := retry.Do(ctx, uc.logger, uc.retry, "cache.get.result", searchID, func() error {
		value, err := uc.cache.Get(ctx, searchID)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		cached = value
		return err
	})
	switch {
	case err != nil:
		opLogger.Warn("failed to read cache", zap.Error(err))
	case !miss:
		log, err := decodeCachedMatch(cached)
		if err == nil {
			return log, nil
		}
		opLogger.Warn("failed to decode cached result", zap.Error(err))
	}

	return uc.repo.FindBySearchID(ctx, searchID)
}

func decodeCachedMatch(raw string) (*repository.MatchLog, error) {
	var payload cachedMatch
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	return &repository.MatchLog{
		SearchID:  payload.SearchID,
		EntryID:   payload.EntryID,
		EntryName: payload.EntryName,
		Score:     payload.Score,
		Accepted:  payload.Accepted,
		Verdict:   payload.Verdict,
		Report:    payload.Report,
		SHA1Hash:  payload.Hash,
		CreatedAt: payload.CreatedAt,
	}, nil
}

// Stats aggregates the match history.
func (uc *MatchUseCase) Stats(ctx context.Context) (*StatsSummary, error) {
	agg, err := uc.repo.AggregateStats(ctx)
	if err != nil {
		return nil, err
	}

	summary := &StatsSummary{
		TotalSearches:     agg.TotalCount,
		AcceptedSearches:  agg.AcceptedCount,
		AverageScore:      agg.AverageScore,
		AverageDurationMs: agg.AverageDurationMs,
	}
	if agg.TotalCount > 0 {
		summary.AcceptRate = float64(agg.AcceptedCount) / float64(agg.TotalCount)
	}
	return summary, nil
}
