package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tenmatch/core/pkg/models"
)

// lockTableDB emulates the job_locks table semantics behind the DBTX
// interface: the upsert claims only when no unexpired lease exists and the
// delete is holder-scoped.
type lockTableDB struct {
	mu     sync.Mutex
	leases map[string]models.JobLock
}

func newLockTableDB() *lockTableDB {
	return &lockTableDB{leases: make(map[string]models.JobLock)}
}

type lockRow struct {
	err  error
	scan func(dest ...any) error
}

func (r lockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.scan(dest...)
}

func (m *lockTableDB) QueryRow(_ context.Context, query string, args ...interface{}) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case strings.Contains(query, "INSERT INTO job_locks"):
		resource := args[0].(string)
		holderID := args[1].(uuid.UUID)
		ttlSecs := args[2].(float64)

		now := time.Now().UTC()
		if existing, ok := m.leases[resource]; ok && existing.ExpiresAt.After(now) {
			return lockRow{err: pgx.ErrNoRows}
		}
		lease := models.JobLock{
			Resource:   resource,
			HolderID:   holderID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(time.Duration(ttlSecs * float64(time.Second))),
		}
		m.leases[resource] = lease
		return lockRow{scan: func(dest ...any) error {
			*dest[0].(*time.Time) = lease.AcquiredAt
			*dest[1].(*time.Time) = lease.ExpiresAt
			return nil
		}}

	case strings.Contains(query, "SELECT EXISTS"):
		resource := args[0].(string)
		lease, ok := m.leases[resource]
		held := ok && lease.ExpiresAt.After(time.Now().UTC())
		return lockRow{scan: func(dest ...any) error {
			*dest[0].(*bool) = held
			return nil
		}}

	default:
		return lockRow{err: errors.New("unexpected query: " + query)}
	}
}

func (m *lockTableDB) Exec(_ context.Context, query string, args ...interface{}) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !strings.Contains(query, "DELETE FROM job_locks") {
		return pgconn.CommandTag{}, errors.New("unexpected exec: " + query)
	}
	resource := args[0].(string)
	holderID := args[1].(uuid.UUID)

	lease, ok := m.leases[resource]
	if !ok || lease.HolderID != holderID {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	delete(m.leases, resource)
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (m *lockTableDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

// seedLease plants a lease directly, bypassing the store.
func (m *lockTableDB) seedLease(resource string, expiresAt time.Time) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	holder := uuid.New()
	m.leases[resource] = models.JobLock{
		Resource:   resource,
		HolderID:   holder,
		AcquiredAt: expiresAt.Add(-time.Minute),
		ExpiresAt:  expiresAt,
	}
	return holder
}

func TestPostgresLockStore_AcquireBlocksSecondHolder(t *testing.T) {
	db := newLockTableDB()
	store := NewPostgresLockStore(db)

	lock, err := store.Acquire(context.Background(), "fetch_results", 10*time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lock.Resource != "fetch_results" {
		t.Errorf("Expected resource fetch_results, got %q", lock.Resource)
	}
	if lock.HolderID == (uuid.UUID{}) {
		t.Error("Expected a holder ID")
	}
	if !lock.ExpiresAt.After(lock.AcquiredAt) {
		t.Error("Lease must expire after acquisition")
	}

	if _, err := store.Acquire(context.Background(), "fetch_results", 10*time.Minute); !errors.Is(err, ErrLockBusy) {
		t.Errorf("Expected ErrLockBusy, got %v", err)
	}
}

func TestPostgresLockStore_DifferentResourcesIndependent(t *testing.T) {
	db := newLockTableDB()
	store := NewPostgresLockStore(db)

	if _, err := store.Acquire(context.Background(), "fetch_results", time.Minute); err != nil {
		t.Fatalf("Acquire(fetch_results) error = %v", err)
	}
	if _, err := store.Acquire(context.Background(), "resolve_cycles", time.Minute); err != nil {
		t.Errorf("Acquire(resolve_cycles) error = %v", err)
	}
}

func TestPostgresLockStore_ExpiredLeaseClaimable(t *testing.T) {
	db := newLockTableDB()
	store := NewPostgresLockStore(db)

	crashed := db.seedLease("resolve_cycles", time.Now().UTC().Add(-time.Minute))

	lock, err := store.Acquire(context.Background(), "resolve_cycles", 10*time.Minute)
	if err != nil {
		t.Fatalf("An expired lease must be claimable, got %v", err)
	}
	if lock.HolderID == crashed {
		t.Error("Expected a new holder ID on takeover")
	}
}

func TestPostgresLockStore_ReleaseOnlyOwnLease(t *testing.T) {
	db := newLockTableDB()
	store := NewPostgresLockStore(db)

	lock, err := store.Acquire(context.Background(), "fetch_results", 10*time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// A stale handle from a previous holder must not free the current lease.
	stale := &models.JobLock{Resource: "fetch_results", HolderID: uuid.New()}
	if err := store.Release(context.Background(), stale); err != nil {
		t.Fatalf("Releasing a stale handle is not an error, got %v", err)
	}
	held, err := store.IsHeld(context.Background(), "fetch_results")
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if !held {
		t.Fatal("Current lease must survive a stale release")
	}

	if err := store.Release(context.Background(), lock); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	held, err = store.IsHeld(context.Background(), "fetch_results")
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if held {
		t.Error("Lease must be gone after the holder releases")
	}
}

func TestPostgresLockStore_ReleaseNilLock(t *testing.T) {
	store := NewPostgresLockStore(newLockTableDB())
	if err := store.Release(context.Background(), nil); err != nil {
		t.Errorf("Release(nil) error = %v", err)
	}
}

func TestPostgresLockStore_IsHeld(t *testing.T) {
	db := newLockTableDB()
	store := NewPostgresLockStore(db)

	held, err := store.IsHeld(context.Background(), "fetch_results")
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if held {
		t.Error("Expected no lease initially")
	}

	db.seedLease("fetch_results", time.Now().UTC().Add(time.Minute))
	held, err = store.IsHeld(context.Background(), "fetch_results")
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if !held {
		t.Error("Expected the lease to be visible")
	}

	db.seedLease("resolve_cycles", time.Now().UTC().Add(-time.Minute))
	held, err = store.IsHeld(context.Background(), "resolve_cycles")
	if err != nil {
		t.Fatalf("IsHeld() error = %v", err)
	}
	if held {
		t.Error("An expired lease does not count as held")
	}
}
