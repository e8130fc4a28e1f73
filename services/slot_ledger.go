package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itsbooked/sports_booking/models"
	"gorm.io/gorm"
)

const (
	holdReserved  = "reserved"
	holdCommitted = "committed"
	holdResolved  = "resolved"
)

// Resolved holds stay in the registry for a while so that a booking whose
// spot was already given back settles as a plain status update instead of a
// second counter release.
const resolvedRetention = time.Hour

// ReservationToken is a time-bounded hold on one unit of slot capacity.
// The holder must commit or release it before ExpiresAt, otherwise the
// expiry sweep reclaims the spot.
type ReservationToken struct {
	ID        uuid.UUID
	SlotID    uuid.UUID
	ExpiresAt time.Time
}

type hold struct {
	slotID    uuid.UUID
	state     string
	expiresAt time.Time
}

// SlotLedger gates class capacity. Every counter mutation for a slot runs
// while that slot's mutex is held, which makes reserve/commit/release
// linearizable per slot; the counters themselves live on the class_slots row
// so REST reads and the ledger always agree.
type SlotLedger struct {
	db  *gorm.DB
	ttl time.Duration

	mu        sync.Mutex
	slotLocks map[uuid.UUID]*sync.Mutex
	holds     map[uuid.UUID]*hold
}

func NewSlotLedger(db *gorm.DB, ttl time.Duration) *SlotLedger {
	return &SlotLedger{
		db:        db,
		ttl:       ttl,
		slotLocks: make(map[uuid.UUID]*sync.Mutex),
		holds:     make(map[uuid.UUID]*hold),
	}
}

func (l *SlotLedger) slotLock(slotID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.slotLocks[slotID]
	if !ok {
		lock = &sync.Mutex{}
		l.slotLocks[slotID] = lock
	}
	return lock
}

// lockSlots acquires both slot mutexes in ascending id order so that two
// concurrent cross-slot operations can never deadlock.
func (l *SlotLedger) lockSlots(a, b uuid.UUID) func() {
	first, second := l.slotLock(a), l.slotLock(b)
	if a.String() > b.String() {
		first, second = second, first
	}
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

func (l *SlotLedger) getHold(tokenID uuid.UUID) (hold, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[tokenID]
	if !ok {
		return hold{}, false
	}
	return *h, true
}

func (l *SlotLedger) setHoldState(tokenID uuid.UUID, state string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.holds[tokenID]; ok {
		h.state = state
	}
}

// Reserve atomically claims one spot on the slot. Exactly one of any number
// of concurrent callers gets the last spot; the rest fail with ErrSlotFull.
func (l *SlotLedger) Reserve(slotID uuid.UUID) (*ReservationToken, error) {
	lock := l.slotLock(slotID)
	lock.Lock()
	defer lock.Unlock()

	var slot models.ClassSlot
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&slot, "id = ?", slotID).Error; err != nil {
			return err
		}
		if slot.CommittedCount+slot.ReservedCount >= slot.Capacity {
			return ErrSlotFull
		}
		slot.ReservedCount++
		return tx.Save(&slot).Error
	})
	if err != nil {
		return nil, err
	}

	token := &ReservationToken{
		ID:        uuid.New(),
		SlotID:    slotID,
		ExpiresAt: time.Now().Add(l.ttl),
	}
	l.mu.Lock()
	l.holds[token.ID] = &hold{slotID: slotID, state: holdReserved, expiresAt: token.ExpiresAt}
	l.mu.Unlock()

	return token, nil
}

// Commit converts a live reservation into a committed spot and runs fn in
// the same transaction, so the booking transition and the counter move stand
// or fall together.
func (l *SlotLedger) Commit(tokenID uuid.UUID, fn func(tx *gorm.DB) error) (*models.ClassSlot, error) {
	h, ok := l.getHold(tokenID)
	if !ok || h.state != holdReserved || time.Now().After(h.expiresAt) {
		return nil, ErrInvalidToken
	}

	lock := l.slotLock(h.slotID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the slot lock; a concurrent release may have won.
	if current, ok := l.getHold(tokenID); !ok || current.state != holdReserved {
		return nil, ErrInvalidToken
	}

	var slot models.ClassSlot
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&slot, "id = ?", h.slotID).Error; err != nil {
			return err
		}
		if slot.ReservedCount > 0 {
			slot.ReservedCount--
		}
		slot.CommittedCount++
		if err := tx.Save(&slot).Error; err != nil {
			return err
		}
		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.setHoldState(tokenID, holdCommitted)
	return &slot, nil
}

// Release gives back whatever the token currently holds: a transient
// reservation or a committed spot. Unknown and already-resolved tokens are
// no-ops, so releasing twice is safe.
func (l *SlotLedger) Release(tokenID uuid.UUID, fn func(tx *gorm.DB) error) (*models.ClassSlot, error) {
	h, ok := l.getHold(tokenID)
	if !ok || h.state == holdResolved {
		return nil, nil
	}

	lock := l.slotLock(h.slotID)
	lock.Lock()
	defer lock.Unlock()

	current, ok := l.getHold(tokenID)
	if !ok || current.state == holdResolved {
		return nil, nil
	}

	var slot models.ClassSlot
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&slot, "id = ?", current.slotID).Error; err != nil {
			return err
		}
		switch current.state {
		case holdReserved:
			if slot.ReservedCount > 0 {
				slot.ReservedCount--
			}
		case holdCommitted:
			if slot.CommittedCount > 0 {
				slot.CommittedCount--
			}
		}
		if err := tx.Save(&slot).Error; err != nil {
			return err
		}
		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.setHoldState(tokenID, holdResolved)
	return &slot, nil
}

// ReleaseReserved settles the reservation behind a pending booking even when
// the registry and the slot row disagree. A live hold is released through the
// token; a resolved hold means the expiry sweep already gave the spot back,
// so only fn runs; an unknown token means a restart dropped the registry
// while the slot row still carries the reserved count, which is then
// decremented by slot id.
func (l *SlotLedger) ReleaseReserved(tokenID, slotID uuid.UUID, fn func(tx *gorm.DB) error) (*models.ClassSlot, error) {
	if h, ok := l.getHold(tokenID); ok {
		if h.state != holdResolved {
			return l.Release(tokenID, fn)
		}
		if fn != nil {
			if err := l.db.Transaction(fn); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	lock := l.slotLock(slotID)
	lock.Lock()
	defer lock.Unlock()

	var slot models.ClassSlot
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&slot, "id = ?", slotID).Error; err != nil {
			return err
		}
		if slot.ReservedCount > 0 {
			slot.ReservedCount--
		}
		if err := tx.Save(&slot).Error; err != nil {
			return err
		}
		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// CommitReserved commits the reservation behind a pending booking. With the
// token still in the registry it behaves exactly like Commit; after a restart
// has emptied the registry the persisted expiry on the booking row is the
// authority, and the reserved count the row still holds moves to committed by
// slot id.
func (l *SlotLedger) CommitReserved(tokenID, slotID uuid.UUID, expiresAt time.Time, fn func(tx *gorm.DB) error) (*models.ClassSlot, error) {
	if _, ok := l.getHold(tokenID); ok {
		return l.Commit(tokenID, fn)
	}
	if time.Now().After(expiresAt) {
		return nil, ErrInvalidToken
	}

	lock := l.slotLock(slotID)
	lock.Lock()
	defer lock.Unlock()

	var slot models.ClassSlot
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&slot, "id = ?", slotID).Error; err != nil {
			return err
		}
		if slot.ReservedCount > 0 {
			slot.ReservedCount--
		}
		slot.CommittedCount++
		if err := tx.Save(&slot).Error; err != nil {
			return err
		}
		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// ReleaseCommitted frees a committed spot by slot id. Cancelling a confirmed
// booking goes through here rather than the token registry, so it keeps
// working after a restart has dropped the in-memory holds.
func (l *SlotLedger) ReleaseCommitted(slotID uuid.UUID, fn func(tx *gorm.DB) error) (*models.ClassSlot, error) {
	lock := l.slotLock(slotID)
	lock.Lock()
	defer lock.Unlock()

	var slot models.ClassSlot
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&slot, "id = ?", slotID).Error; err != nil {
			return err
		}
		if slot.CommittedCount > 0 {
			slot.CommittedCount--
		}
		if err := tx.Save(&slot).Error; err != nil {
			return err
		}
		if fn != nil {
			return fn(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// TransferCommitted moves one committed spot from one slot to another in a
// single transaction, capacity-checking the target first. Used by booking
// moves; if the target is full nothing changes anywhere.
func (l *SlotLedger) TransferCommitted(fromSlotID, toSlotID uuid.UUID, fn func(tx *gorm.DB, from, to *models.ClassSlot) error) (*models.ClassSlot, *models.ClassSlot, error) {
	unlock := l.lockSlots(fromSlotID, toSlotID)
	defer unlock()

	var from, to models.ClassSlot
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&from, "id = ?", fromSlotID).Error; err != nil {
			return err
		}
		if err := tx.First(&to, "id = ?", toSlotID).Error; err != nil {
			return err
		}
		if to.CommittedCount+to.ReservedCount >= to.Capacity {
			return ErrSlotFull
		}
		if from.CommittedCount > 0 {
			from.CommittedCount--
		}
		to.CommittedCount++
		if err := tx.Save(&from).Error; err != nil {
			return err
		}
		if err := tx.Save(&to).Error; err != nil {
			return err
		}
		if fn != nil {
			return fn(tx, &from, &to)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &from, &to, nil
}

// ReleaseExpired reclaims holds whose TTL lapsed without a booking ever
// committing or releasing them, and prunes resolved registry entries. Safe
// to call repeatedly; expired holds are released at most once.
func (l *SlotLedger) ReleaseExpired() []uuid.UUID {
	now := time.Now()

	l.mu.Lock()
	var expired []uuid.UUID
	for id, h := range l.holds {
		if h.state == holdResolved {
			if now.Sub(h.expiresAt) > resolvedRetention {
				delete(l.holds, id)
			}
			continue
		}
		if h.state == holdReserved && now.After(h.expiresAt) {
			expired = append(expired, id)
		}
	}
	l.mu.Unlock()

	var released []uuid.UUID
	for _, id := range expired {
		if _, err := l.Release(id, nil); err == nil {
			released = append(released, id)
		}
	}
	return released
}
