// Package locks provides named advisory locks backed by Postgres.
// Workers may run on separate instances, so coordination must go through
// the shared store rather than in-process mutexes.
package locks

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Well-known lock names. Entity-scoped names are built with the helpers below.
const (
	NameIncomingPayments  = "ton:incoming-payments"
	NameOutgoingTransfers = "ton:outgoing-transfers"
	NameAdminsSync        = "tg:admins-sync"
)

func PayoutName(txID uuid.UUID) string {
	return fmt.Sprintf("payout:%s", txID)
}

func EscrowReleaseName(dealID uuid.UUID) string {
	return fmt.Sprintf("escrow_release:%s", dealID)
}

type Manager struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewManager(pool *pgxpool.Pool, log *zap.Logger) *Manager {
	return &Manager{pool: pool, log: log}
}

// Lock is a held advisory lock. It pins a pool connection for its lifetime
// because pg advisory locks are session-scoped.
type Lock struct {
	conn *pgxpool.Conn
	key  int64
	name string
}

// LockKey maps a lock name to the int64 key space pg advisory locks use.
func LockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// TryAcquire attempts a non-blocking acquire. If the lock is already held
// anywhere in the cluster it returns (nil, false, nil) and the caller is
// expected to skip its cycle.
func (m *Manager) TryAcquire(ctx context.Context, name string) (*Lock, bool, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire conn for lock %q: %w", name, err)
	}

	key := LockKey(name)
	var got bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock %q: %w", name, err)
	}
	if !got {
		conn.Release()
		return nil, false, nil
	}

	return &Lock{conn: conn, key: key, name: name}, true, nil
}

// Release unlocks and returns the connection to the pool. Safe to call once.
func (l *Lock) Release(ctx context.Context) {
	defer l.conn.Release()
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
}

// Name returns the lock's name, mainly for logging.
func (l *Lock) Name() string { return l.name }
