package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflow/internal/store"
)

func TestLoad_FirstRun(t *testing.T) {
	st, err := Load(store.NewMemStore())
	require.NoError(t, err)

	assert.Equal(t, int64(0), st.Pending())
	assert.False(t, st.IsProcessed("T1"))
	assert.False(t, st.HasEntitlement("pro"))
}

func TestCommitReward_PersistsCreditAndProcessedIDTogether(t *testing.T) {
	db := store.NewMemStore()
	st, err := Load(db)
	require.NoError(t, err)

	require.NoError(t, st.CommitReward("T1", 100))

	assert.Equal(t, int64(100), st.Pending())
	assert.True(t, st.IsProcessed("T1"))

	// A fresh load from the same store sees the identical state.
	reloaded, err := Load(db)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.Pending())
	assert.True(t, reloaded.IsProcessed("T1"))
}

func TestCommitReward_WriteFailureLeavesNothingBehind(t *testing.T) {
	db := store.NewMemStore()
	st, err := Load(db)
	require.NoError(t, err)

	db.FailWrites = true
	err = st.CommitReward("T1", 100)
	require.Error(t, err)

	// Neither the credit nor the processed marker survives a failed batch:
	// the transaction stays unprocessed and will be redelivered.
	assert.Equal(t, int64(0), st.Pending())
	assert.False(t, st.IsProcessed("T1"))

	db.FailWrites = false
	reloaded, err := Load(db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.Pending())
	assert.False(t, reloaded.IsProcessed("T1"))

	// Replaying the same transaction after the fault clears applies it once.
	require.NoError(t, st.CommitReward("T1", 100))
	assert.Equal(t, int64(100), st.Pending())
}

func TestSettlePending_PreservesConcurrentAccrual(t *testing.T) {
	db := store.NewMemStore()
	st, err := Load(db)
	require.NoError(t, err)

	require.NoError(t, st.CommitReward("T1", 100))

	// Snapshot 100 is confirmed remotely; meanwhile a new event lands.
	require.NoError(t, st.CommitReward("T2", 50))
	require.NoError(t, st.SettlePending(100))

	assert.Equal(t, int64(50), st.Pending())

	reloaded, err := Load(db)
	require.NoError(t, err)
	assert.Equal(t, int64(50), reloaded.Pending())
}

func TestSettlePending_RejectsOverSettle(t *testing.T) {
	st, err := Load(store.NewMemStore())
	require.NoError(t, err)

	require.NoError(t, st.CommitReward("T1", 100))
	assert.Error(t, st.SettlePending(200))
	assert.Equal(t, int64(100), st.Pending())
}

func TestCommitEntitlement_IdempotentGrant(t *testing.T) {
	db := store.NewMemStore()
	st, err := Load(db)
	require.NoError(t, err)

	require.NoError(t, st.CommitEntitlement("S1", "pro"))
	require.NoError(t, st.CommitEntitlement("S2", "pro"))

	assert.True(t, st.HasEntitlement("pro"))
	assert.True(t, st.IsProcessed("S1"))
	assert.True(t, st.IsProcessed("S2"))
	assert.Equal(t, int64(0), st.Pending())
}

func TestBeginAttempt_SurvivesReload(t *testing.T) {
	db := store.NewMemStore()
	st, err := Load(db)
	require.NoError(t, err)
	require.NoError(t, st.CommitReward("T1", 100))
	require.NoError(t, st.BeginAttempt("attempt-1", 100))

	// Restart: the in-flight attempt comes back with its snapshot.
	reloaded, err := Load(db)
	require.NoError(t, err)
	id, amount, ok := reloaded.CurrentAttempt()
	require.True(t, ok)
	assert.Equal(t, "attempt-1", id)
	assert.Equal(t, int64(100), amount)
}

func TestSettlePending_RetiresAttemptRecord(t *testing.T) {
	db := store.NewMemStore()
	st, err := Load(db)
	require.NoError(t, err)
	require.NoError(t, st.CommitReward("T1", 100))
	require.NoError(t, st.BeginAttempt("attempt-1", 100))

	require.NoError(t, st.SettlePending(100))
	_, _, ok := st.CurrentAttempt()
	assert.False(t, ok)

	// The retirement is durable, not just in-memory.
	reloaded, err := Load(db)
	require.NoError(t, err)
	_, _, ok = reloaded.CurrentAttempt()
	assert.False(t, ok)
	assert.Equal(t, int64(0), reloaded.Pending())
}

func TestBeginAttempt_WriteFailureKeepsNoAttempt(t *testing.T) {
	db := store.NewMemStore()
	st, err := Load(db)
	require.NoError(t, err)
	require.NoError(t, st.CommitReward("T1", 100))

	db.FailWrites = true
	require.Error(t, st.BeginAttempt("attempt-1", 100))
	_, _, ok := st.CurrentAttempt()
	assert.False(t, ok)
}
