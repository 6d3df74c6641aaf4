package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/repository"
	"async-import-export/internal/infra/metrics"
	red "async-import-export/internal/infra/redis"
)

// Progress is polled far more often than it changes, so reads go through
// redis: the worker writes through on every chunk boundary and pollers only
// fall back to postgres on a cache miss. All other repository methods pass
// straight to the inner repo.

var _ repository.ExportJobRepository = (*exportJobRepoCacheDecorator)(nil)

type exportJobRepoCacheDecorator struct {
	repository.ExportJobRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewExportJobRepoCacheDecorator(inner repository.ExportJobRepository, cache red.RedisClient, ttl time.Duration) repository.ExportJobRepository {
	return &exportJobRepoCacheDecorator{ExportJobRepository: inner, cache: cache, ttl: ttl}
}

func (d *exportJobRepoCacheDecorator) SetProgress(ctx context.Context, id string, p model.Progress) error {
	if err := d.ExportJobRepository.SetProgress(ctx, id, p); err != nil {
		return err
	}
	cacheProgress(ctx, d.cache, progressKey("export", id), p, d.ttl)
	return nil
}

func (d *exportJobRepoCacheDecorator) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	if p, ok := cachedProgress(ctx, d.cache, progressKey("export", id)); ok {
		return p, nil
	}
	return d.ExportJobRepository.GetProgress(ctx, id)
}

var _ repository.ImportJobRepository = (*importJobRepoCacheDecorator)(nil)

type importJobRepoCacheDecorator struct {
	repository.ImportJobRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewImportJobRepoCacheDecorator(inner repository.ImportJobRepository, cache red.RedisClient, ttl time.Duration) repository.ImportJobRepository {
	return &importJobRepoCacheDecorator{ImportJobRepository: inner, cache: cache, ttl: ttl}
}

func (d *importJobRepoCacheDecorator) SetProgress(ctx context.Context, id string, p model.Progress) error {
	if err := d.ImportJobRepository.SetProgress(ctx, id, p); err != nil {
		return err
	}
	cacheProgress(ctx, d.cache, progressKey("import", id), p, d.ttl)
	return nil
}

func (d *importJobRepoCacheDecorator) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	if p, ok := cachedProgress(ctx, d.cache, progressKey("import", id)); ok {
		return p, nil
	}
	return d.ImportJobRepository.GetProgress(ctx, id)
}

func progressKey(kind, id string) string { return fmt.Sprintf("job:%s:%s:progress", kind, id) }

func cacheProgress(ctx context.Context, cache red.RedisClient, key string, p model.Progress, ttl time.Duration) {
	// Best effort: losing a cache write only costs one postgres read.
	b, _ := json.Marshal(p)
	_ = cache.Set(ctx, key, b, ttl)
}

func cachedProgress(ctx context.Context, cache red.RedisClient, key string) (model.Progress, bool) {
	val, err := cache.Get(ctx, key)
	if err != nil {
		metrics.IncCacheRequest("miss")
		return model.Progress{}, false
	}
	var p model.Progress
	if json.Unmarshal([]byte(val), &p) != nil {
		metrics.IncCacheRequest("miss")
		return model.Progress{}, false
	}
	metrics.IncCacheRequest("hit")
	return p, true
}
