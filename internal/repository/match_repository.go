package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/productmatch/internal/catalog"
	"github.com/example/productmatch/internal/retry"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Product is a catalog row.
type Product struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false"`
	Name        string `gorm:"column:name;size:255"`
	ImagePath   string `gorm:"column:image_path;size:1024;not null"`
	Description string `gorm:"column:description;type:text"`
}

// TableName overrides the default table name.
func (Product) TableName() string {
	return "products"
}

// Entry converts the row into a catalog entry.
func (p Product) Entry() catalog.Entry {
	return catalog.Entry{ID: p.ID, Name: p.Name, ImagePath: p.ImagePath, Description: p.Description}
}

// MatchLog records one finished search.
type MatchLog struct {
	ID          uint      `gorm:"primaryKey"`
	SearchID    string    `gorm:"column:search_id;uniqueIndex;size:64"`
	EntryID     *int64    `gorm:"column:entry_id"`
	EntryName   string    `gorm:"column:entry_name;size:255"`
	Score       float64   `gorm:"column:score"`
	Accepted    bool      `gorm:"column:accepted"`
	Verdict     string    `gorm:"column:verdict;size:255"`
	Report      string    `gorm:"column:report;type:text"`
	SHA1Hash    string    `gorm:"column:sha1_hash;index;size:40"`
	CatalogSize int       `gorm:"column:catalog_size"`
	DurationMs  int64     `gorm:"column:duration_ms"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (MatchLog) TableName() string {
	return "match_logs"
}

// Stats aggregates the match history.
type Stats struct {
	TotalCount        int64
	AcceptedCount     int64
	AverageScore      float64
	AverageDurationMs float64
}

// MatchRepository reads the catalog and persists match history.
type MatchRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewMatchRepository creates a new repository instance.
func NewMatchRepository(db *gorm.DB, logger *zap.Logger) *MatchRepository {
	return &MatchRepository{
		db:             db,
		logger:         logger.Named("match_repository"),
		retryAttempts:  retry.DefaultPolicy.Attempts,
		initialBackoff: retry.DefaultPolicy.InitialBackoff,
		maxBackoff:     retry.DefaultPolicy.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *MatchRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&Product{}, &MatchLog{})
	})
}

// ListCatalog returns every product ordered by id.
func (r *MatchRepository) ListCatalog(ctx context.Context) ([]catalog.Entry, error) {
	var rows []Product
	err := r.executeWithRetry(ctx, "repository.list_catalog", "", func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).Order("id").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	entries := make([]catalog.Entry, len(rows))
	for i, row := range rows {
		entries[i] = row.Entry()
	}
	return entries, nil
}

// UpsertProducts inserts entries, overwriting rows that share an id.
func (r *MatchRepository) UpsertProducts(ctx context.Context, entries []catalog.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([]Product, len(entries))
	for i, e := range entries {
		rows[i] = Product{ID: e.ID, Name: e.Name, ImagePath: e.ImagePath, Description: e.Description}
	}

	var affected int64
	err := r.executeWithRetry(ctx, "repository.upsert_products", "", func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&rows)
		affected = res.RowsAffected
		return res.Error
	})
	return int(affected), err
}

// SaveLog persists a match log entry.
func (r *MatchRepository) SaveLog(ctx context.Context, log *MatchLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.SearchID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindBySearchID retrieves a match log by its search id.
func (r *MatchRepository) FindBySearchID(ctx context.Context, searchID string) (*MatchLog, error) {
	var log MatchLog
	err := r.executeWithRetry(ctx, "repository.find_by_search_id", searchID, func() error {
		err := r.db.WithContext(ctx).First(&log, "search_id = ?", searchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateStats summarizes all persisted searches.
func (r *MatchRepository) AggregateStats(ctx context.Context) (*Stats, error) {
	var row struct {
		TotalCount        int64
		AcceptedCount     int64
		AverageScore      float64
		AverageDurationMs float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_stats", "", func() error {
		return r.db.WithContext(ctx).Model(&MatchLog{}).Select(
			"COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN accepted THEN 1 ELSE 0 END), 0) AS accepted_count, " +
				"COALESCE(AVG(score), 0) AS average_score, " +
				"COALESCE(AVG(duration_ms), 0) AS average_duration_ms",
		).Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalCount:        row.TotalCount,
		AcceptedCount:     row.AcceptedCount,
		AverageScore:      row.AverageScore,
		AverageDurationMs: row.AverageDurationMs,
	}, nil
}

func (r *MatchRepository) executeWithRetry(ctx context.Context, operation, searchID string, fn func() error) error {
	policy := retry.Policy{Attempts: r.retryAttempts, InitialBackoff: r.initialBackoff, MaxBackoff: r.maxBackoff}
	return retry.Do(ctx, r.logger, policy, operation, searchID, fn)
}
