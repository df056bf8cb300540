package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/kmassidik/movegh/internal/common/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryBlocksAndVelocity(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	repo := NewRepository(database)

	riderID := dbtest.UniqueID("rider")
	deviceHash := HashValue(dbtest.UniqueID("device"))

	blocked, err := repo.IsBlocked(ctx, riderID, "", deviceHash)
	require.NoError(t, err)
	assert.False(t, blocked)

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, repo.InsertBlock(ctx, Block{DeviceHash: deviceHash, Reason: "expired", BlockedUntil: &expired}))
	blocked, err = repo.IsBlocked(ctx, riderID, "", deviceHash)
	require.NoError(t, err)
	assert.False(t, blocked, "expired blocks must not match")

	require.NoError(t, repo.InsertBlock(ctx, Block{DeviceHash: deviceHash, Reason: "chargeback"}))
	blocked, err = repo.IsBlocked(ctx, dbtest.UniqueID("other"), "", deviceHash)
	require.NoError(t, err)
	assert.True(t, blocked, "device block applies to any rider")

	for i := 0; i < 2; i++ {
		_, err := database.Exec(`
			INSERT INTO payment_intents (rider_id, trip_id, amount, currency, provider, status, device_id)
			VALUES ($1, $2, 10, 'GHS', 'mock', 'created', $3)
		`, riderID, dbtest.UniqueID("trip"), deviceHash)
		require.NoError(t, err)
	}

	count, err := repo.CountRecent(ctx, FieldRider, riderID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = repo.CountRecent(ctx, FieldDevice, deviceHash, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = repo.CountRecent(ctx, Field("ip; DROP TABLE x"), "v", time.Minute)
	assert.Error(t, err)

	require.NoError(t, repo.UpsertRiskProfile(ctx, "rider", riderID, StatusReview, 40, "amount_threshold"))
	require.NoError(t, repo.UpsertRiskProfile(ctx, "rider", riderID, StatusClear, 0, ""))

	var status string
	require.NoError(t, database.QueryRow(
		`SELECT status FROM risk_profiles WHERE owner_type = 'rider' AND owner_id = $1`, riderID,
	).Scan(&status))
	assert.Equal(t, StatusClear, status)
}
