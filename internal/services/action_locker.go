package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Wikid82/aegis/internal/logger"
	"github.com/Wikid82/aegis/internal/models"
)

// Locker grants exclusive access to one action record. The returned unlock
// func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker with one mutex per action id. Entries
// are reference counted and dropped when the last holder or waiter leaves.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until id is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, id string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(id, l)
		return nil, fmt.Errorf("lock action %s: %w", id, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			k.release(id, l)
		})
	}, nil
}

func (k *KeyedMutex) release(id string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// size reports how many ids currently have holders or waiters.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// LeaseLocker is a Locker backed by the action_locks table, for deployments
// where several processes share one database. A lock is a conditional update
// that claims the row when it is free or its lease has lapsed.
type LeaseLocker struct {
	db    *gorm.DB
	lease time.Duration
	poll  time.Duration
	now   func() time.Time
}

// NewLeaseLocker returns a LeaseLocker. lease must exceed the effector timeout.
func NewLeaseLocker(db *gorm.DB, lease time.Duration) *LeaseLocker {
	return &LeaseLocker{db: db, lease: lease, poll: 50 * time.Millisecond, now: time.Now}
}

// Lock polls until the lease is claimed or ctx is done.
func (l *LeaseLocker) Lock(ctx context.Context, id string) (func(), error) {
	token := uuid.NewString()

	if err := l.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ActionLock{ActionID: id}).Error; err != nil {
		return nil, fmt.Errorf("prepare lock row: %w", err)
	}

	for {
		now := l.now()
		res := l.db.Model(&models.ActionLock{}).
			Where("action_id = ? AND (token = '' OR expires_at < ?)", id, now).
			Updates(map[string]interface{}{"token": token, "expires_at": now.Add(l.lease)})
		if res.Error != nil {
			return nil, fmt.Errorf("claim lock: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock action %s: %w", id, ctx.Err())
		case <-time.After(l.poll):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			err := l.db.Model(&models.ActionLock{}).
				Where("action_id = ? AND token = ?", id, token).
				Updates(map[string]interface{}{"token": "", "expires_at": l.now()}).Error
			if err != nil {
				logger.Log().WithError(err).WithField("action_id", id).Error("Failed to release action lock; it will lapse with the lease")
			}
		})
	}, nil
}
