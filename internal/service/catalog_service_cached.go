package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"price-catalog/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProductListCacheKey holds the JSON-encoded ordered product list
const ProductListCacheKey = "catalog:products"

type cachedCatalogService struct {
	next        CatalogService
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewCachedCatalogService wraps next with a redis read-through cache for List
func NewCachedCatalogService(next CatalogService, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) CatalogService {
	return &cachedCatalogService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    ttl,
		logger:      logger,
	}
}

func (s *cachedCatalogService) List(ctx context.Context) ([]*domain.Product, error) {
	val, err := s.redisClient.Get(ctx, ProductListCacheKey).Bytes()
	if err == nil {
		var products []*domain.Product
		decodeErr := json.Unmarshal(val, &products)
		if decodeErr == nil {
			return products, nil
		}
		s.logger.Warn("Discarding undecodable product cache entry", zap.Error(decodeErr))
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("Failed to read product cache", zap.Error(err))
	}

	products, err := s.next.List(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(products); err == nil {
		if err := s.redisClient.Set(ctx, ProductListCacheKey, data, s.cacheTTL).Err(); err != nil {
			s.logger.Warn("Failed to write product cache", zap.Error(err))
		}
	}

	return products, nil
}

func (s *cachedCatalogService) Grouped(ctx context.Context) ([]domain.ItemGroup, error) {
	products, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.GroupByItem(products), nil
}

func (s *cachedCatalogService) Create(ctx context.Context, input domain.ProductInput) (*domain.Product, error) {
	product, err := s.next.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return product, nil
}

func (s *cachedCatalogService) Update(ctx context.Context, id int64, input domain.ProductInput) (*domain.Product, error) {
	product, err := s.next.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return product, nil
}

func (s *cachedCatalogService) Delete(ctx context.Context, id int64) error {
	if err := s.next.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *cachedCatalogService) BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (int, error) {
	n, err := s.next.BulkUpsert(ctx, inputs)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return n, nil
}

func (s *cachedCatalogService) Ready(ctx context.Context) error {
	return s.next.Ready(ctx)
}

func (s *cachedCatalogService) invalidate(ctx context.Context) {
	if err := s.redisClient.Del(ctx, ProductListCacheKey).Err(); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}
}
