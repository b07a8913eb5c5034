package schemacache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

type countingDescriber struct {
	calls int
	cols  []models.ColumnInfo
	err   error
}

func (d *countingDescriber) DescribeFile(_ context.Context, _ *models.FileAsset, _ string) ([]models.ColumnInfo, error) {
	d.calls++
	return d.cols, d.err
}

func newAsset(checksum string) *models.FileAsset {
	return &models.FileAsset{ID: uuid.New(), TenantID: uuid.New(), Name: "sales.csv", Checksum: checksum}
}

var salesColumns = []models.ColumnInfo{{Name: "region", Type: "VARCHAR"}, {Name: "total", Type: "BIGINT"}}

func TestColumns_PrefersAssetSchema(t *testing.T) {
	d := &countingDescriber{cols: salesColumns}
	c := New(10, time.Minute, nil, d, zaptest.NewLogger(t))

	asset := newAsset("abc")
	asset.Schema = []models.ColumnInfo{{Name: "stored", Type: "INTEGER"}}

	cols, err := c.Columns(context.Background(), asset, "/tmp/sales.csv")
	require.NoError(t, err)
	assert.Equal(t, asset.Schema, cols)
	assert.Zero(t, d.calls)
}

func TestColumns_LocalHit(t *testing.T) {
	d := &countingDescriber{cols: salesColumns}
	c := New(10, time.Minute, nil, d, zaptest.NewLogger(t))
	asset := newAsset("abc")

	for i := 0; i < 3; i++ {
		cols, err := c.Columns(context.Background(), asset, "/tmp/sales.csv")
		require.NoError(t, err)
		assert.Equal(t, salesColumns, cols)
	}
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, 1, c.Len())
}

func TestColumns_ChecksumChangeMisses(t *testing.T) {
	d := &countingDescriber{cols: salesColumns}
	c := New(10, time.Minute, nil, d, zaptest.NewLogger(t))
	asset := newAsset("v1")

	_, err := c.Columns(context.Background(), asset, "p")
	require.NoError(t, err)
	asset.Checksum = "v2"
	_, err = c.Columns(context.Background(), asset, "p")
	require.NoError(t, err)
	assert.Equal(t, 2, d.calls)
}

func TestColumns_DescriberErrorNotCached(t *testing.T) {
	d := &countingDescriber{err: errors.New("corrupt file")}
	c := New(10, time.Minute, nil, d, zaptest.NewLogger(t))
	asset := newAsset("abc")

	_, err := c.Columns(context.Background(), asset, "p")
	require.Error(t, err)
	_, err = c.Columns(context.Background(), asset, "p")
	require.Error(t, err)
	assert.Equal(t, 2, d.calls)
	assert.Zero(t, c.Len())
}

func TestColumns_SharedAcrossProcessesViaRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	asset := newAsset("abc")

	first := &countingDescriber{cols: salesColumns}
	a := New(10, 10*time.Minute, rdb, first, zaptest.NewLogger(t))
	_, err := a.Columns(context.Background(), asset, "p")
	require.NoError(t, err)

	raw, err := mr.Get(Key(asset))
	require.NoError(t, err)
	var stored []models.ColumnInfo
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, salesColumns, stored)
	assert.Equal(t, 10*time.Minute, mr.TTL(Key(asset)))

	second := &countingDescriber{cols: salesColumns}
	b := New(10, 10*time.Minute, rdb, second, zaptest.NewLogger(t))
	cols, err := b.Columns(context.Background(), asset, "p")
	require.NoError(t, err)
	assert.Equal(t, salesColumns, cols)
	assert.Zero(t, second.calls)
}

func TestColumns_RedisDownFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	d := &countingDescriber{cols: salesColumns}
	c := New(10, time.Minute, rdb, d, zaptest.NewLogger(t))
	cols, err := c.Columns(context.Background(), newAsset("abc"), "p")
	require.NoError(t, err)
	assert.Equal(t, salesColumns, cols)
	assert.Equal(t, 1, d.calls)
}

func TestColumns_CorruptRedisEntryIgnored(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	asset := newAsset("abc")
	require.NoError(t, mr.Set(Key(asset), "not json"))

	d := &countingDescriber{cols: salesColumns}
	c := New(10, time.Minute, rdb, d, zaptest.NewLogger(t))
	cols, err := c.Columns(context.Background(), asset, "p")
	require.NoError(t, err)
	assert.Equal(t, salesColumns, cols)
	assert.Equal(t, 1, d.calls)
}

func TestInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := &countingDescriber{cols: salesColumns}
	c := New(10, time.Minute, rdb, d, zaptest.NewLogger(t))

	asset := newAsset("abc")
	other := newAsset("abc")
	ctx := context.Background()
	_, err := c.Columns(ctx, asset, "p")
	require.NoError(t, err)
	_, err = c.Columns(ctx, other, "p")
	require.NoError(t, err)

	c.Invalidate(ctx, asset.TenantID, asset.ID)

	assert.False(t, mr.Exists(Key(asset)))
	assert.True(t, mr.Exists(Key(other)))
	assert.Equal(t, 1, c.Len())

	_, err = c.Columns(ctx, asset, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, d.calls)
}

func TestKey_FallsBackWithoutChecksum(t *testing.T) {
	asset := newAsset("")
	asset.SizeBytes = 42
	asset.CreatedAt = time.Unix(100, 0)
	assert.Equal(t, "file-schema:"+asset.TenantID.String()+":"+asset.ID.String()+":42-100000000000", Key(asset))
}
