// Package matcher finds the catalog entry that best matches a submitted photo.
//
// One comparison runs per catalog entry. The first comparison to reach
// AcceptThreshold wins and stops further launches; comparisons already in
// flight finish but cannot displace it. Without an accepted match the
// strictly highest score wins.
package matcher

import (
	"context"
	"errors"
	"image"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/productmatch/internal/catalog"
)

// AcceptThreshold is the score at or above which a match is conclusive.
const AcceptThreshold = 0.8

// ErrInvalidImage is returned when the submitted image is missing or empty.
var ErrInvalidImage = errors.New("invalid user image")

// Comparator scores the similarity of two images in [0,1].
type Comparator interface {
	Compare(a, b image.Image) (float64, error)
}

// ImageLoader opens the image stored under a catalog-relative path and returns
// it together with the resolved path.
type ImageLoader interface {
	Load(ctx context.Context, relPath string) (image.Image, string, error)
}

// ComplianceFunc maps a description to a compliance verdict.
type ComplianceFunc func(description string) string

// Outcome is the result of one successful comparison.
type Outcome struct {
	Entry        catalog.Entry
	Score        float64
	ResolvedPath string
}

// Result is what a search returns. Outcome is nil when nothing could be compared.
type Result struct {
	Outcome  *Outcome
	Accepted bool
	Verdict  string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMaxParallel bounds how many comparisons run at once. Zero or less means
// one goroutine per entry.
func WithMaxParallel(n int) Option {
	return func(m *Matcher) {
		m.maxParallel = n
	}
}

// Matcher coordinates a concurrent best-match search.
type Matcher struct {
	loader      ImageLoader
	comparator  Comparator
	logger      *zap.Logger
	maxParallel int
}

// New constructs a Matcher.
func New(loader ImageLoader, comparator Comparator, logger *zap.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		loader:     loader,
		comparator: comparator,
		logger:     logger.Named("matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// searchState is owned by one FindBestMatch call. Every field is guarded by mu.
type searchState struct {
	mu            sync.Mutex
	accepted      *Outcome
	best          *Outcome
	highest       float64
	verdict       string
	stopRequested bool
}

func (s *searchState) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// record applies one outcome. It reports whether the outcome became the
// accepted match.
func (s *searchState) record(o *Outcome, verdict string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Score >= AcceptThreshold && s.accepted == nil {
		s.accepted = o
		s.verdict = verdict
		s.stopRequested = true
		return true
	}
	if o.Score > s.highest {
		s.best = o
		s.highest = o.Score
		if s.accepted == nil {
			s.verdict = verdict
		}
	}
	return false
}

func (s *searchState) result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.accepted != nil:
		return &Result{Outcome: s.accepted, Accepted: true, Verdict: s.verdict}
	case s.best != nil:
		return &Result{Outcome: s.best, Verdict: s.verdict}
	default:
		return &Result{}
	}
}

// FindBestMatch compares userImage with every entry, in catalog order, until
// an accepted match stops further launches. Per-entry failures are logged and
// skipped. Only an invalid user image or a cancelled ctx is returned as error.
func (m *Matcher) FindBestMatch(ctx context.Context, userImage image.Image, entries []catalog.Entry, check ComplianceFunc) (*Result, error) {
	if userImage == nil || userImage.Bounds().Empty() {
		return nil, ErrInvalidImage
	}
	if check == nil {
		check = func(string) string { return "" }
	}

	state := &searchState{}
	var g errgroup.Group
	if m.maxParallel > 0 {
		g.SetLimit(m.maxParallel)
	}

	launched := 0
	for _, entry := range entries {
		if state.stopped() || ctx.Err() != nil {
			break
		}
		entry := entry
		launched++
		g.Go(func() error {
			// With a parallelism bound this may start long after it was queued.
			if state.stopped() {
				return nil
			}
			m.compare(ctx, userImage, entry, check, state)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := state.result()
	m.logger.Debug("search finished",
		zap.Int("catalog_size", len(entries)),
		zap.Int("launched", launched),
		zap.Bool("accepted", res.Accepted),
	)
	return res, nil
}

func (m *Matcher) compare(ctx context.Context, userImage image.Image, entry catalog.Entry, check ComplianceFunc, state *searchState) {
	log := m.logger.With(zap.Int64("entry_id", entry.ID), zap.String("image_path", entry.ImagePath))

	img, resolved, err := m.loader.Load(ctx, entry.ImagePath)
	if err != nil {
		log.Warn("skipping catalog entry: image unavailable", zap.String("resolved_path", resolved), zap.Error(err))
		return
	}

	score, err := m.comparator.Compare(userImage, img)
	if err != nil {
		log.Warn("skipping catalog entry: comparison failed", zap.Error(err))
		return
	}

	log.Debug("compared", zap.String("name", entry.Name), zap.Float64("score", score))

	outcome := &Outcome{Entry: entry, Score: score, ResolvedPath: resolved}
	if state.record(outcome, check(entry.Description)) {
		log.Info("accepted match", zap.Float64("score", score))
	}
}
