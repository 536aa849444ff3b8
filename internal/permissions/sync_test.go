package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yasgmp/gmpauthz/internal/database/testutil"
	"github.com/yasgmp/gmpauthz/internal/models"
)

func TestSyncUpsertsCatalog(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Permission{Code: "capa.approve", Name: "stale"}).Error)

	n, err := Sync(ctx, db)
	require.NoError(t, err)
	require.Equal(t, len(All()), n)

	_, err = Sync(ctx, db)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&count).Error)
	require.EqualValues(t, n, count)

	var perm models.Permission
	require.NoError(t, db.Where("code = ?", "capa.approve").First(&perm).Error)
	require.Equal(t, "Approve CAPA", perm.Name)
	require.Equal(t, "capa", perm.Module)
}

func TestSyncRequiresDB(t *testing.T) {
	_, err := Sync(context.Background(), nil)
	require.Error(t, err)
}
