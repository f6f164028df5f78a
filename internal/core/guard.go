package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"workpal/pkg/domain"
)

// DefaultLockTimeout bounds how long an intent waits for its table.
const DefaultLockTimeout = 5 * time.Second

// LockKey identifies one guarded table.
type LockKey struct {
	Department string
	Table      string
}

func (k LockKey) String() string { return k.Department + "/" + k.Table }

func keyFor(department, table string) LockKey {
	return LockKey{Department: domain.NormalizeDepartment(department), Table: table}
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// Guard provides per-table mutual exclusion. Waiters on one key are admitted in
// arrival order; a waiter that exceeds the timeout gives up with a busy error.
// Entries are created on first use and dropped once no holder or waiter remains.
type Guard struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[LockKey]*lockEntry
}

// NewGuard returns a guard with the given lock-wait timeout. A non-positive
// timeout selects DefaultLockTimeout.
func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Guard{timeout: timeout, locks: make(map[LockKey]*lockEntry)}
}

func (g *Guard) ref(key LockKey) *lockEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.locks[key]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		g.locks[key] = e
	}
	e.refs++
	return e
}

func (g *Guard) unref(key LockKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.locks[key]; ok {
		e.refs--
		if e.refs <= 0 {
			delete(g.locks, key)
		}
	}
}

// Acquire blocks until key is free. The returned release must be called once.
func (g *Guard) Acquire(ctx context.Context, key LockKey) (func(), error) {
	e := g.ref(key)
	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		g.unref(key)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.Errorf(domain.ErrKindBusy, "lock "+key.String(), "table is busy; waited %s", g.timeout)
		}
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			g.unref(key)
		})
	}, nil
}

// Do runs fn while holding key.
func (g *Guard) Do(ctx context.Context, key LockKey, fn func() error) error {
	release, err := g.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// DoAll runs fn while holding every key. Keys are locked in sorted order so two
// multi-key callers cannot deadlock each other.
func (g *Guard) DoAll(ctx context.Context, keys []LockKey, fn func() error) error {
	sorted := dedupeKeys(keys)
	releases := make([]func(), 0, len(sorted))
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()
	for _, k := range sorted {
		release, err := g.Acquire(ctx, k)
		if err != nil {
			return err
		}
		releases = append(releases, release)
	}
	return fn()
}

// Held reports how many keys currently have holders or waiters.
func (g *Guard) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}

func dedupeKeys(keys []LockKey) []LockKey {
	seen := make(map[LockKey]struct{}, len(keys))
	out := make([]LockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Department != out[j].Department {
			return out[i].Department < out[j].Department
		}
		return out[i].Table < out[j].Table
	})
	return out
}
