// Package favorites reads persisted watchlist entries from Postgres. The
// result seeds the subscription registry at session bootstrap.
package favorites

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockplus/kisfeed/internal/model"
)

// Store reads favorite instruments from the watchlist tables.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a favorites store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

const favoritesQuery = `
SELECT stock_code, COALESCE(exchange_code, '')
FROM watchlist_items
WHERE is_favorite = TRUE
ORDER BY stock_code`

// Favorites returns every favorited instrument across all watchlists.
// Duplicates are preserved; the registry deduplicates by code.
func (s *Store) Favorites(ctx context.Context) ([]model.Favorite, error) {
	rows, err := s.pool.Query(ctx, favoritesQuery)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	var favorites []model.Favorite
	for rows.Next() {
		var f model.Favorite
		var venue string
		if err := rows.Scan(&f.Code, &venue); err != nil {
			return nil, fmt.Errorf("scan favorite row: %w", err)
		}
		f.Venue = model.Venue(venue)
		favorites = append(favorites, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorite rows: %w", err)
	}

	s.logger.Debug("favorites loaded", "count", len(favorites))
	return favorites, nil
}
