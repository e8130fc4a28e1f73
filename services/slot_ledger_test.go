package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestReserveNeverOversells(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 5, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var tokens []*ReservationToken
	var full int

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := ledger.Reserve(slot.ID)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrSlotFull) {
				full++
				return
			}
			require.NoError(t, err)
			tokens = append(tokens, token)
		}()
	}
	wg.Wait()

	assert.Len(t, tokens, 5)
	assert.Equal(t, 15, full)

	reloaded := reloadSlot(t, db, slot.ID)
	assert.Equal(t, 5, reloaded.ReservedCount)
	assert.Equal(t, 0, reloaded.CommittedCount)
	assert.Equal(t, 0, reloaded.AvailableSpots())
}

func TestCommitMovesReservedToCommitted(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 3, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)

	committed, err := ledger.Commit(token.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, committed.ReservedCount)
	assert.Equal(t, 1, committed.CommittedCount)

	// The token is spent; a second commit must not double-count.
	_, err = ledger.Commit(token.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	reloaded := reloadSlot(t, db, slot.ID)
	assert.Equal(t, 1, reloaded.CommittedCount)
}

func TestCommitRollsBackWhenCallbackFails(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)

	boom := errors.New("booking write failed")
	_, err = ledger.Commit(token.ID, func(tx *gorm.DB) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	reloaded := reloadSlot(t, db, slot.ID)
	assert.Equal(t, 1, reloaded.ReservedCount)
	assert.Equal(t, 0, reloaded.CommittedCount)

	// The hold survives the rollback, so the commit can be retried.
	_, err = ledger.Commit(token.ID, nil)
	require.NoError(t, err)
	reloaded = reloadSlot(t, db, slot.ID)
	assert.Equal(t, 0, reloaded.ReservedCount)
	assert.Equal(t, 1, reloaded.CommittedCount)
}

func TestCommitExpiredToken(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 1, "150.00")
	ledger := NewSlotLedger(db, -time.Second)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)

	_, err = ledger.Commit(token.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestReleaseIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)

	_, err = ledger.Release(token.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reloadSlot(t, db, slot.ID).ReservedCount)

	// Releasing again, or releasing garbage, changes nothing.
	_, err = ledger.Release(token.ID, nil)
	require.NoError(t, err)
	_, err = ledger.Release(uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reloadSlot(t, db, slot.ID).ReservedCount)
}

func TestReleaseReservedAfterSweepOnlyRunsUpdate(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")
	ledger := NewSlotLedger(db, -time.Second)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)
	require.Len(t, ledger.ReleaseExpired(), 1)
	require.Equal(t, 0, reloadSlot(t, db, slot.ID).ReservedCount)

	// The sweep already gave the spot back; settling the booking must not
	// release it a second time, but the update still has to run.
	updated := false
	_, err = ledger.ReleaseReserved(token.ID, slot.ID, func(tx *gorm.DB) error {
		updated = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 0, reloadSlot(t, db, slot.ID).ReservedCount)
}

func TestReleaseReservedAfterRestart(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")

	before := NewSlotLedger(db, 15*time.Minute)
	token, err := before.Reserve(slot.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reloadSlot(t, db, slot.ID).ReservedCount)

	// A fresh ledger has no registry entry, but the slot row still carries
	// the reserved count and must be the source of truth.
	after := NewSlotLedger(db, 15*time.Minute)
	released, err := after.ReleaseReserved(token.ID, slot.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, released.ReservedCount)
	assert.Equal(t, 2, released.AvailableSpots())
}

func TestCommitReservedAfterRestart(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")

	before := NewSlotLedger(db, 15*time.Minute)
	token, err := before.Reserve(slot.ID)
	require.NoError(t, err)

	after := NewSlotLedger(db, 15*time.Minute)
	committed, err := after.CommitReserved(token.ID, slot.ID, time.Now().Add(15*time.Minute), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, committed.ReservedCount)
	assert.Equal(t, 1, committed.CommittedCount)
}

func TestCommitReservedAfterRestartExpired(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")

	before := NewSlotLedger(db, 15*time.Minute)
	token, err := before.Reserve(slot.ID)
	require.NoError(t, err)

	after := NewSlotLedger(db, 15*time.Minute)
	_, err = after.CommitReserved(token.ID, slot.ID, time.Now().Add(-time.Minute), nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 1, reloadSlot(t, db, slot.ID).ReservedCount)
}

func TestReleaseCommittedSpot(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)
	_, err = ledger.Commit(token.ID, nil)
	require.NoError(t, err)

	released, err := ledger.Release(token.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, released.CommittedCount)
	assert.Equal(t, 2, released.AvailableSpots())
}

func TestReleaseCommittedBySlot(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 2, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)
	_, err = ledger.Commit(token.ID, nil)
	require.NoError(t, err)

	// No token involved; this is the restart-safe path for confirmed
	// cancellations.
	released, err := ledger.ReleaseCommitted(slot.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, released.CommittedCount)
}

func TestTransferCommittedMovesOneSpot(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slotA := seedSlot(t, db, org, 2, "150.00")
	slotB := seedSlot(t, db, org, 2, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	token, err := ledger.Reserve(slotA.ID)
	require.NoError(t, err)
	_, err = ledger.Commit(token.ID, nil)
	require.NoError(t, err)

	from, to, err := ledger.TransferCommitted(slotA.ID, slotB.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, from.CommittedCount)
	assert.Equal(t, 1, to.CommittedCount)
}

func TestTransferCommittedFullTargetChangesNothing(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slotA := seedSlot(t, db, org, 2, "150.00")
	slotB := seedSlot(t, db, org, 1, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	for _, slotID := range []uuid.UUID{slotA.ID, slotB.ID} {
		token, err := ledger.Reserve(slotID)
		require.NoError(t, err)
		_, err = ledger.Commit(token.ID, nil)
		require.NoError(t, err)
	}

	_, _, err := ledger.TransferCommitted(slotA.ID, slotB.ID, nil)
	assert.ErrorIs(t, err, ErrSlotFull)

	assert.Equal(t, 1, reloadSlot(t, db, slotA.ID).CommittedCount)
	assert.Equal(t, 1, reloadSlot(t, db, slotB.ID).CommittedCount)
}

func TestReleaseExpiredReclaimsLapsedHolds(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 3, "150.00")
	ledger := NewSlotLedger(db, -time.Second)

	token, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloadSlot(t, db, slot.ID).ReservedCount)

	released := ledger.ReleaseExpired()
	require.Len(t, released, 1)
	assert.Equal(t, token.ID, released[0])
	assert.Equal(t, 0, reloadSlot(t, db, slot.ID).ReservedCount)

	// A second sweep sees nothing left to reclaim.
	assert.Empty(t, ledger.ReleaseExpired())
	assert.Equal(t, 0, reloadSlot(t, db, slot.ID).ReservedCount)
}

func TestReleaseExpiredLeavesLiveHoldsAlone(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db)
	slot := seedSlot(t, db, org, 3, "150.00")
	ledger := NewSlotLedger(db, 15*time.Minute)

	_, err := ledger.Reserve(slot.ID)
	require.NoError(t, err)

	assert.Empty(t, ledger.ReleaseExpired())
	assert.Equal(t, 1, reloadSlot(t, db, slot.ID).ReservedCount)
}
