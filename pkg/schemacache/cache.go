// Package schemacache remembers the column lists of uploaded files so workspace
// introspection does not re-read every file on every call.
package schemacache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	DefaultSize = 1024
	DefaultTTL  = time.Hour

	keyPrefix = "file-schema:"
)

// Describer reads the column list of a file from disk.
type Describer interface {
	DescribeFile(ctx context.Context, asset *models.FileAsset, path string) ([]models.ColumnInfo, error)
}

// FileSchemaCache is a two-level cache: an in-process expirable LRU in front of an
// optional shared Redis. Redis failures degrade to the describer and are only logged.
type FileSchemaCache struct {
	local     *expirable.LRU[string, []models.ColumnInfo]
	redis     *redis.Client
	ttl       time.Duration
	describer Describer
	logger    *zap.Logger
}

// New creates a cache. rdb may be nil to run without the shared level.
func New(size int, ttl time.Duration, rdb *redis.Client, describer Describer, logger *zap.Logger) *FileSchemaCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FileSchemaCache{
		local:     expirable.NewLRU[string, []models.ColumnInfo](size, nil, ttl),
		redis:     rdb,
		ttl:       ttl,
		describer: describer,
		logger:    logging.OrNop(logger).Named("schema-cache"),
	}
}

// Key identifies one version of a file's schema. A re-upload changes the checksum and
// therefore the key.
func Key(asset *models.FileAsset) string {
	version := asset.Checksum
	if version == "" {
		version = strconv.FormatInt(asset.SizeBytes, 10) + "-" + strconv.FormatInt(asset.CreatedAt.UnixNano(), 10)
	}
	return tenantPrefix(asset.TenantID, asset.ID) + version
}

func tenantPrefix(tenantID, fileID uuid.UUID) string {
	return keyPrefix + tenantID.String() + ":" + fileID.String() + ":"
}

// Columns returns the file's columns: the schema stored on the asset if any, then the
// local cache, then Redis, then a fresh read through the describer.
func (c *FileSchemaCache) Columns(ctx context.Context, asset *models.FileAsset, path string) ([]models.ColumnInfo, error) {
	if len(asset.Schema) > 0 {
		return asset.Schema, nil
	}

	key := Key(asset)
	if cols, ok := c.local.Get(key); ok {
		return cols, nil
	}
	if cols, ok := c.fromRedis(ctx, key); ok {
		c.local.Add(key, cols)
		return cols, nil
	}

	if c.describer == nil {
		return nil, fmt.Errorf("no file describer configured")
	}
	cols, err := c.describer.DescribeFile(ctx, asset, path)
	if err != nil {
		return nil, err
	}
	c.local.Add(key, cols)
	c.toRedis(ctx, key, cols)
	return cols, nil
}

// Invalidate drops every cached version of a file.
func (c *FileSchemaCache) Invalidate(ctx context.Context, tenantID, fileID uuid.UUID) {
	prefix := tenantPrefix(tenantID, fileID)
	for _, key := range c.local.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.local.Remove(key)
		}
	}
	if c.redis == nil {
		return
	}

	iter := c.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("failed to scan schema cache keys", zap.String("file_id", fileID.String()), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("failed to delete schema cache keys", zap.String("file_id", fileID.String()), zap.Error(err))
	}
}

// Len is the number of entries held in process.
func (c *FileSchemaCache) Len() int {
	return c.local.Len()
}

func (c *FileSchemaCache) fromRedis(ctx context.Context, key string) ([]models.ColumnInfo, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("schema cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var cols []models.ColumnInfo
	if err := json.Unmarshal(raw, &cols); err != nil {
		c.logger.Warn("discarding corrupt schema cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return cols, true
}

func (c *FileSchemaCache) toRedis(ctx context.Context, key string, cols []models.ColumnInfo) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(cols)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("schema cache write failed", zap.String("key", key), zap.Error(err))
	}
}
