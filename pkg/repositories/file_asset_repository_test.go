//go:build integration

package repositories

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

func TestFileAssetRepository_Lifecycle(t *testing.T) {
	tc := setupRepoTest(t)
	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	repo := NewFileAssetRepository()
	asset := &models.FileAsset{
		TenantID:    tc.tenantID,
		Name:        "sales.csv",
		StoragePath: "uploads/sales.csv",
		Format:      models.FormatCSV,
		SizeBytes:   128,
		Checksum:    "abc",
	}
	require.NoError(t, repo.Create(ctx, asset))

	got, err := repo.Get(ctx, tc.tenantID, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploads/sales.csv", got.StoragePath)
	assert.Equal(t, models.FormatCSV, got.Format)
	assert.Nil(t, got.Schema)

	cols := []models.ColumnInfo{{Name: "region", Type: "VARCHAR"}, {Name: "qty", Type: "BIGINT"}}
	require.NoError(t, repo.SetSchema(ctx, tc.tenantID, asset.ID, cols))
	got, err = repo.Get(ctx, tc.tenantID, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, cols, got.Schema)

	list, err := repo.List(ctx, tc.tenantID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.Get(ctx, uuid.New(), asset.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, tc.tenantID, asset.ID))
	assert.ErrorIs(t, repo.Delete(ctx, tc.tenantID, asset.ID), apperrors.ErrNotFound)
}
