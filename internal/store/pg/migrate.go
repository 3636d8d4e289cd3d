package pg

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/paygate/internal/observability/logger"
)

// migrationLockID derives a stable pg_advisory_lock id for the schema.
func migrationLockID() int64 {
	h := sha256.Sum256([]byte("paygate:schema_migration"))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// RunMigrations applies every *_up.sql from fsys in lexical order, under a
// Postgres advisory lock so multiple replicas starting at once don't race.
// Returns how many scripts were executed.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (int, error) {
	lockID := migrationLockID()

	// Session advisory locks belong to one connection; take a dedicated conn
	// so lock, migrations and unlock all run on the same session.
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("pg: acquire migration conn: %w", err)
	}
	defer conn.Release()

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// pg_advisory_lock returns void; blocks until the lock is granted.
	if _, err := conn.Exec(lockCtx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return 0, fmt.Errorf("pg: acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			logger.Named("pg").Warn("release migration lock failed", logger.Err(err))
		}
	}()

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return 0, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), "_up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var applied int
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, err
		}
		if _, err := conn.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("pg: exec %s: %w", f, err)
		}
		applied++
	}
	logger.Named("pg").Info("migrations applied", logger.Count(applied))
	return applied, nil
}
