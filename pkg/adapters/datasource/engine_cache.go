package datasource

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/retry"
)

const (
	DefaultConnectionTTL    = 5 * time.Minute
	DefaultCleanupInterval  = 1 * time.Minute
	DefaultPoolMaxConns     = 10
	DefaultPoolMaxIdleConns = 2

	pingTimeout    = 5 * time.Second
	connectTimeout = 15 * time.Second
)

// ErrCacheClosed is returned by GetEngine after Close.
var ErrCacheClosed = errors.New("engine cache is closed")

// ConfigDecrypter opens the encrypted config of a data source.
type ConfigDecrypter interface {
	DecryptSource(src *models.DataSource) (models.SourceConfig, error)
}

// OpenFunc opens a database handle. sql.Open in production.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// EngineCacheConfig holds configuration for the engine cache.
type EngineCacheConfig struct {
	TTL              time.Duration
	CleanupInterval  time.Duration
	PoolMaxConns     int
	PoolMaxIdleConns int
	Open             OpenFunc
}

// Engine is an open connection pool to one data source at one effective URL.
type Engine struct {
	DB       *sql.DB
	Dialect  Dialect
	Kind     models.SourceKind
	SourceID uuid.UUID

	url string
}

// SecretURL returns the effective URL the engine was opened with, including credentials.
// It must only be used to scrub driver messages.
func (e *Engine) SecretURL() string {
	return e.url
}

// EngineCache keeps one engine per (source id, effective URL).
//
// Lock ordering: an entry's mutex may be held while taking c.mu, never the reverse.
// Cleanup and Stats read lastUsed atomically so they never need an entry lock.
type EngineCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	stopped  bool
	stopChan chan struct{}

	decrypter        ConfigDecrypter
	open             OpenFunc
	ttl              time.Duration
	cleanupInterval  time.Duration
	poolMaxConns     int
	poolMaxIdleConns int
	logger           *zap.Logger
}

type cacheEntry struct {
	mu       sync.Mutex // serializes build and health check of this key
	sourceID uuid.UUID
	kind     models.SourceKind
	engine   *Engine
	closed   bool
	lastUsed atomic.Int64 // unix nanos
}

func (e *cacheEntry) touch() {
	e.lastUsed.Store(time.Now().UnixNano())
}

func (e *cacheEntry) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastUsed.Load()))
}

// NewEngineCache creates an engine cache and starts its idle cleanup goroutine,
// which runs until Close() is called.
func NewEngineCache(cfg EngineCacheConfig, decrypter ConfigDecrypter, logger *zap.Logger) *EngineCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConnectionTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMaxIdleConns <= 0 {
		cfg.PoolMaxIdleConns = DefaultPoolMaxIdleConns
	}
	if cfg.Open == nil {
		cfg.Open = sql.Open
	}

	c := &EngineCache{
		entries:          make(map[string]*cacheEntry),
		stopChan:         make(chan struct{}),
		decrypter:        decrypter,
		open:             cfg.Open,
		ttl:              cfg.TTL,
		cleanupInterval:  cfg.CleanupInterval,
		poolMaxConns:     cfg.PoolMaxConns,
		poolMaxIdleConns: cfg.PoolMaxIdleConns,
		logger:           logging.OrNop(logger).Named("engine-cache"),
	}

	go c.cleanupLoop()
	return c
}

// GetEngine returns a healthy engine for a relational source, building one if needed.
// Building an engine for a new effective URL closes the engines of the source's older URLs.
func (c *EngineCache) GetEngine(ctx context.Context, src *models.DataSource) (*Engine, error) {
	if !src.Kind.IsRelational() {
		return nil, fmt.Errorf("%w: %s sources have no engine", apperrors.ErrUnsupportedSourceKind, src.Kind)
	}

	cfg, err := c.decrypter.DecryptSource(src)
	if err != nil {
		return nil, err
	}
	conn, ok := cfg.(*models.ConnectionConfig)
	if !ok {
		return nil, fmt.Errorf("%w: expected connection config, got %T", apperrors.ErrInvalidSourceConfig, cfg)
	}

	effectiveURL, err := ResolveEffectiveURL(src.Kind, conn)
	if err != nil {
		return nil, err
	}
	return c.Acquire(ctx, src.ID, src.Kind, effectiveURL)
}

// Acquire returns the engine for (sourceID, effectiveURL).
func (c *EngineCache) Acquire(ctx context.Context, sourceID uuid.UUID, kind models.SourceKind, effectiveURL string) (*Engine, error) {
	key := cacheKey(sourceID, effectiveURL)

	for {
		entry, err := c.entryFor(key, sourceID, kind)
		if err != nil {
			return nil, err
		}

		entry.mu.Lock()
		if entry.closed {
			// detached by Clear or eviction while we waited
			entry.mu.Unlock()
			continue
		}

		if entry.engine != nil {
			if c.healthy(ctx, entry.engine) {
				entry.touch()
				eng := entry.engine
				entry.mu.Unlock()
				return eng, nil
			}
			c.logger.Warn("engine unhealthy, rebuilding",
				zap.String("source_id", sourceID.String()),
				zap.String("kind", string(kind)),
			)
			c.closeEngine(entry.engine)
			entry.engine = nil
		}

		eng, err := c.build(ctx, sourceID, kind, effectiveURL)
		if err != nil {
			entry.closed = true
			entry.mu.Unlock()
			c.detach(key, entry)
			return nil, err
		}
		entry.engine = eng
		entry.touch()
		entry.mu.Unlock()

		// closes outside any entry lock
		c.closeEntries(c.detachOlderKeys(sourceID, key))
		return eng, nil
	}
}

func (c *EngineCache) entryFor(key string, sourceID uuid.UUID, kind models.SourceKind) (*cacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	stopped := c.stopped
	c.mu.RUnlock()
	if stopped {
		return nil, ErrCacheClosed
	}
	if ok {
		return entry, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, ErrCacheClosed
	}
	// Double-check after acquiring write lock
	if entry, ok := c.entries[key]; ok {
		return entry, nil
	}
	entry = &cacheEntry{sourceID: sourceID, kind: kind}
	entry.touch()
	c.entries[key] = entry
	return entry, nil
}

func (c *EngineCache) healthy(ctx context.Context, eng *Engine) bool {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := retry.Do(pingCtx, retry.PingConfig(), func() error {
		return eng.DB.PingContext(pingCtx)
	})
	if err != nil {
		c.logger.Debug("engine ping failed",
			zap.String("source_id", eng.SourceID.String()),
			zap.String("error", logging.SanitizeError(err, eng.url)),
		)
		return false
	}
	return true
}

func (c *EngineCache) build(ctx context.Context, sourceID uuid.UUID, kind models.SourceKind, effectiveURL string) (*Engine, error) {
	dialect, err := Lookup(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnsupportedSourceKind, err)
	}
	dsn, err := dialect.DSN(effectiveURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidSourceConfig, logging.SanitizeError(err, effectiveURL))
	}

	db, err := c.open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s engine: %s", kind, logging.SanitizeError(err, effectiveURL, dsn))
	}
	db.SetMaxOpenConns(c.poolMaxConns)
	db.SetMaxIdleConns(c.poolMaxIdleConns)
	db.SetConnMaxIdleTime(c.ttl)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	err = retry.DoIfRetryable(connectCtx, retry.DefaultConfig(), func() error {
		return db.PingContext(connectCtx)
	})
	if err != nil {
		db.Close()
		msg := logging.SanitizeError(err, effectiveURL, dsn)
		c.logger.Error("failed to connect",
			zap.String("source_id", sourceID.String()),
			zap.String("kind", string(kind)),
			zap.String("url", logging.SanitizeConnectionString(effectiveURL)),
			zap.String("error", msg),
		)
		return nil, fmt.Errorf("connect to %s source: %s", kind, msg)
	}

	c.logger.Info("created engine",
		zap.String("source_id", sourceID.String()),
		zap.String("kind", string(kind)),
		zap.String("url", logging.SanitizeConnectionString(effectiveURL)),
	)

	return &Engine{DB: db, Dialect: dialect, Kind: kind, SourceID: sourceID, url: effectiveURL}, nil
}

func (c *EngineCache) detach(key string, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[key] == entry {
		delete(c.entries, key)
	}
}

func (c *EngineCache) detachOlderKeys(sourceID uuid.UUID, keep string) []*cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []*cacheEntry
	for key, entry := range c.entries {
		if entry.sourceID == sourceID && key != keep {
			stale = append(stale, entry)
			delete(c.entries, key)
		}
	}
	return stale
}

func (c *EngineCache) closeEntries(entries []*cacheEntry) {
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.engine != nil {
			c.closeEngine(entry.engine)
			entry.engine = nil
		}
		entry.closed = true
		entry.mu.Unlock()
	}
}

func (c *EngineCache) closeEngine(eng *Engine) {
	if err := eng.DB.Close(); err != nil {
		c.logger.Warn("failed to close engine",
			zap.String("source_id", eng.SourceID.String()),
			zap.String("error", logging.SanitizeError(err, eng.url)),
		)
	}
}

// ClearSource closes every engine of one source.
func (c *EngineCache) ClearSource(sourceID uuid.UUID) int {
	stale := c.detachOlderKeys(sourceID, "")
	c.closeEntries(stale)
	if len(stale) > 0 {
		c.logger.Info("cleared engines for source",
			zap.String("source_id", sourceID.String()),
			zap.Int("count", len(stale)),
		)
	}
	return len(stale)
}

// Clear closes every cached engine. It returns the number of engines closed.
func (c *EngineCache) Clear() int {
	c.mu.Lock()
	all := make([]*cacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		all = append(all, entry)
	}
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	c.closeEntries(all)
	c.logger.Info("engine cache cleared", zap.Int("count", len(all)))
	return len(all)
}

func (c *EngineCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performCleanup()
		case <-c.stopChan:
			return
		}
	}
}

// performCleanup closes engines idle for longer than the TTL.
func (c *EngineCache) performCleanup() {
	now := time.Now()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	var expired []*cacheEntry
	for key, entry := range c.entries {
		if entry.idle(now) > c.ttl {
			expired = append(expired, entry)
			delete(c.entries, key)
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	c.closeEntries(expired)
	if len(expired) > 0 {
		c.logger.Info("cleaned up idle engines",
			zap.Int("count", len(expired)),
			zap.Int("remaining", remaining),
		)
	}
}

// Close closes all engines and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (c *EngineCache) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopChan)
	all := make([]*cacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		all = append(all, entry)
	}
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	c.closeEntries(all)
	c.logger.Info("engine cache closed")
	return nil
}

// EngineStats contains statistics about the engine cache state.
type EngineStats struct {
	TotalEngines      int            `json:"total_engines"`
	Sources           int            `json:"sources"`
	EnginesByKind     map[string]int `json:"engines_by_kind"`
	TTLMinutes        int            `json:"ttl_minutes"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}

// Stats returns statistics about the cache. Safe to call concurrently.
func (c *EngineCache) Stats() EngineStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	stats := EngineStats{
		TotalEngines:  len(c.entries),
		EnginesByKind: make(map[string]int),
		TTLMinutes:    int(c.ttl.Minutes()),
	}
	sources := make(map[uuid.UUID]struct{})
	for _, entry := range c.entries {
		stats.EnginesByKind[string(entry.kind)]++
		sources[entry.sourceID] = struct{}{}
		if idle := int(entry.idle(now).Seconds()); idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	stats.Sources = len(sources)
	return stats
}

// cacheKey never embeds the URL itself so keys are safe to log.
func cacheKey(sourceID uuid.UUID, effectiveURL string) string {
	sum := sha256.Sum256([]byte(effectiveURL))
	return sourceID.String() + ":" + hex.EncodeToString(sum[:8])
}
