package postgres

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucsky/cuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/dronesim/internal/models"
)

func TestOrderRowMatchesColumns(t *testing.T) {
	o := &models.Order{ID: 3, Customer: "Ada", Location: models.Point{X: 1, Y: -2}, DroneID: 4}
	row := orderRow("run", o)

	require.Len(t, row, len(orderColumns))
	assert.Equal(t, "run", row[0])
	assert.Equal(t, 3, row[1])
	assert.Equal(t, -2.0, row[5])
	assert.Equal(t, 4, row[8])
}

func TestNullableFloat64(t *testing.T) {
	assert.Nil(t, nullableFloat64(math.NaN()))
	require.NotNil(t, nullableFloat64(2.5))
	assert.Equal(t, 2.5, *nullableFloat64(2.5))
}

// TestRunRepositoryRoundTrip needs a scratch database, e.g.
// DRONESIM_TEST_DATABASE_URL=postgres://localhost:5432/dronesim_test
func TestRunRepositoryRoundTrip(t *testing.T) {
	url := os.Getenv("DRONESIM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DRONESIM_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRunRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	runID := cuid.New()
	require.NoError(t, repo.SaveRun(ctx, models.RunRecord{
		RunID:         runID,
		Seed:          42,
		ChefCount:     3,
		DroneCount:    10,
		Orders:        2,
		MeanDroneWait: math.NaN(),
		CreatedAt:     time.Now(),
	}))
	defer repo.DeleteRun(ctx, runID)

	n, err := repo.SaveOrders(ctx, runID, []*models.Order{{ID: 1}, {ID: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := repo.CountOrders(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
