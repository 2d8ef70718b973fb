package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TrendStorage implements the TrendStorage interface for Badger
type TrendStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTrendStorage creates a new TrendStorage instance
func NewTrendStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TrendStorage {
	return &TrendStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TrendStorage) SaveTrend(ctx context.Context, trend *models.TrendCluster) error {
	if trend.ID == "" {
		return fmt.Errorf("%w: trend ID is required", models.ErrValidationFailed)
	}
	trend.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(trend.ID, trend); err != nil {
		return fmt.Errorf("failed to save trend: %w", err)
	}
	return nil
}

func (s *TrendStorage) GetTrend(ctx context.Context, trendID string) (*models.TrendCluster, error) {
	var trend models.TrendCluster
	if err := s.db.Store().Get(trendID, &trend); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: trend %s", models.ErrNotFound, trendID)
		}
		return nil, fmt.Errorf("failed to get trend: %w", err)
	}
	return &trend, nil
}

func (s *TrendStorage) ListTrends(ctx context.Context, limit int) ([]*models.TrendCluster, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("UpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var trends []models.TrendCluster
	if err := s.db.Store().Find(&trends, query); err != nil {
		return nil, fmt.Errorf("failed to list trends: %w", err)
	}

	result := make([]*models.TrendCluster, len(trends))
	for i := range trends {
		result[i] = &trends[i]
	}
	return result, nil
}
