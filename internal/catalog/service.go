package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-quranicare/internal/db"
	"backend-quranicare/internal/logging"
	"backend-quranicare/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 50
)

const itemColumns = `id, kind, category_id, title, COALESCE(description,''), duration_seconds, repeat_count,
		play_count, completion_count, rating_sum, rating_count, is_active, created_at, updated_at`

// Service serves read-only catalog queries. Only active rows are ever
// returned. Results may be cached in redis for ttl; session start does not go
// through this cache.
type Service struct {
	db    db.Querier
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
	log   *zap.Logger
}

func NewService(q db.Querier, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{db: q, cache: cache, ttl: ttl, log: logging.OrNop(logger)}
}

func (s *Service) Categories(ctx context.Context, kind Kind) ([]Category, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidInput, kind)
	}
	return cached(ctx, s, "catalog:categories:"+string(kind), func(ctx context.Context) ([]Category, error) {
		rows, err := s.db.Query(ctx, `
			SELECT id, kind, name, COALESCE(description,''), COALESCE(icon,''), COALESCE(color_code,'')
			FROM categories
			WHERE is_active AND ($1 = '' OR kind = $1)
			ORDER BY kind, name
		`, string(kind))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		categories := []Category{}
		for rows.Next() {
			var c Category
			if err := rows.Scan(&c.ID, &c.Kind, &c.Name, &c.Description, &c.Icon, &c.ColorCode); err != nil {
				return nil, err
			}
			categories = append(categories, c)
		}
		return categories, rows.Err()
	})
}

// ListByCategory returns the active items of a category ordered by title.
func (s *Service) ListByCategory(ctx context.Context, categoryID string) ([]Item, error) {
	return cached(ctx, s, "catalog:category:"+categoryID+":items", func(ctx context.Context) ([]Item, error) {
		return s.queryItems(ctx, `
			SELECT `+itemColumns+`
			FROM catalog_items
			WHERE category_id=$1 AND is_active
			ORDER BY title
		`, categoryID)
	})
}

// Get returns an active item or apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	return cached(ctx, s, "catalog:item:"+id, func(ctx context.Context) (Item, error) {
		item, err := scanItem(s.db.QueryRow(ctx, `
			SELECT `+itemColumns+`
			FROM catalog_items
			WHERE id=$1 AND is_active
		`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
		}
		return item, err
	})
}

// Popular returns active items ordered by play count.
func (s *Service) Popular(ctx context.Context, kind Kind, limit int) ([]Item, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidInput, kind)
	}
	if limit <= 0 {
		limit = defaultPopularLimit
	}
	if limit > maxPopularLimit {
		limit = maxPopularLimit
	}
	key := fmt.Sprintf("catalog:popular:%s:%d", kind, limit)
	return cached(ctx, s, key, func(ctx context.Context) ([]Item, error) {
		return s.queryItems(ctx, `
			SELECT `+itemColumns+`
			FROM catalog_items
			WHERE is_active AND ($1 = '' OR kind = $1)
			ORDER BY play_count DESC, title
			LIMIT $2
		`, string(kind), limit)
	})
}

// Search matches title or description case-insensitively. Not cached.
func (s *Service) Search(ctx context.Context, query string, kind Kind) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query required", apperr.ErrInvalidInput)
	}
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidInput, kind)
	}
	return s.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM catalog_items
		WHERE is_active AND ($2 = '' OR kind = $2) AND (title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\')
		ORDER BY title
		LIMIT 50
	`, "%"+likeEscaper.Replace(query)+"%", string(kind))
}

// likeEscaper makes user input match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Service) queryItems(ctx context.Context, sql string, args ...any) ([]Item, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Kind, &it.CategoryID, &it.Title, &it.Description, &it.DurationSeconds, &it.RepeatCount,
		&it.PlayCount, &it.CompletionCount, &it.RatingSum, &it.RatingCount, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	it.RatingMean = Mean(it.RatingSum, it.RatingCount)
	return it, nil
}

// cached serves key from redis when possible and otherwise runs load once per
// key across concurrent callers, storing the result for s.ttl.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	useCache := s.cache != nil && s.ttl > 0

	if useCache {
		raw, err := s.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		case !errors.Is(err, redis.Nil):
			s.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if useCache {
			if payload, err := json.Marshal(v); err == nil {
				if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil {
					s.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
				}
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
