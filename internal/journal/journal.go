// Package journal persists applied change batches per changeset in Postgres.
// It serves the changeset download operation and optional boot-time replay;
// the in-memory store stays authoritative.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/osm-edit-engine/internal/osm"
)

// Record is one applied batch as stored in the journal.
type Record struct {
	Seq         int64
	ChangesetID int64
	UID         int64
	User        string
	Change      osm.Change
	Result      osm.DiffResult
	AppliedAt   time.Time
}

// AppliedElements returns the batch with elements whose recorded diff entry
// failed removed. Replaying the full batch would re-run elements that lost a
// version race the first time, which now fail validation outright; dropping
// them reproduces the state the batch actually left behind. Diff entries are
// recorded in create, modify, delete order, matching the batch groups. A
// record whose entry count does not line up is returned unchanged.
func (r Record) AppliedElements() osm.Change {
	entries := r.Result.Entries
	if len(entries) != r.Change.Size() {
		return r.Change
	}

	var out osm.Change
	i := 0
	keep := func(els []*osm.Element) []*osm.Element {
		var kept []*osm.Element
		for _, el := range els {
			if entries[i].Error == "" {
				kept = append(kept, el)
			}
			i++
		}
		return kept
	}
	out.Create = keep(r.Change.Create)
	out.Modify = keep(r.Change.Modify)
	out.Delete = keep(r.Change.Delete)
	return out
}

// Journal appends applied changes and replays them in apply order. All
// methods are nil-safe so the journal can be left unconfigured.
type Journal struct {
	pool       *pgxpool.Pool
	instance   string
	maxRetries int
	retryDelay time.Duration
}

// Option configures the journal.
type Option func(*Journal)

// WithMaxRetries sets the maximum retry count for transient failures.
func WithMaxRetries(n int) Option {
	return func(j *Journal) {
		j.maxRetries = n
	}
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(j *Journal) {
		j.retryDelay = d
	}
}

// New constructs a journal over the provided Postgres pool. Journals for
// different instances may share one pool; records are scoped by instance
// name.
func New(pool *pgxpool.Pool, instance string, opts ...Option) *Journal {
	j := &Journal{
		pool:       pool,
		instance:   instance,
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Enabled reports whether a backing pool is configured.
func (j *Journal) Enabled() bool {
	return j != nil && j.pool != nil
}

// EnsureSchema creates the journal table when it does not exist yet.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}
	_, err := j.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS changeset_changes (
    seq          BIGSERIAL PRIMARY KEY,
    instance     TEXT        NOT NULL,
    changeset_id BIGINT      NOT NULL,
    uid          BIGINT      NOT NULL DEFAULT 0,
    username     TEXT        NOT NULL DEFAULT '',
    change       JSONB       NOT NULL,
    diff_result  JSONB,
    applied_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS changeset_changes_instance_changeset
    ON changeset_changes (instance, changeset_id, seq)`)
	return err
}

// AppendChange durably stores an applied batch. The insert is wrapped in a
// transaction and transient failures are retried.
func (j *Journal) AppendChange(ctx context.Context, rec Record) (int64, error) {
	if !j.Enabled() {
		return 0, nil
	}
	start := time.Now()
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}

	changeBytes, err := json.Marshal(rec.Change)
	if err != nil {
		return 0, fmt.Errorf("marshal change: %w", err)
	}
	resultBytes, err := json.Marshal(rec.Result)
	if err != nil {
		return 0, fmt.Errorf("marshal diff result: %w", err)
	}

	var seq int64
	err = j.retry(ctx, func(ctx context.Context) error {
		tx, err := j.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx, `
INSERT INTO changeset_changes (instance, changeset_id, uid, username, change, diff_result, applied_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING seq`,
			j.instance, rec.ChangesetID, rec.UID, rec.User, changeBytes, resultBytes, rec.AppliedAt,
		)
		if err := row.Scan(&seq); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	appendLatency.Observe(time.Since(start).Seconds())
	return seq, nil
}

// Changes returns every batch applied under the changeset, in apply order.
func (j *Journal) Changes(ctx context.Context, changesetID int64) ([]Record, error) {
	if !j.Enabled() {
		return nil, nil
	}
	rows, err := j.pool.Query(ctx, `
SELECT seq, changeset_id, uid, username, change, diff_result, applied_at
FROM changeset_changes
WHERE instance = $1 AND changeset_id = $2
ORDER BY seq`, j.instance, changesetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Replay scans the whole journal in apply order, invoking the handler for
// each record. Used to rebuild in-memory state at boot.
func (j *Journal) Replay(ctx context.Context, handler func(Record) error) error {
	if !j.Enabled() {
		return nil
	}
	start := time.Now()
	rows, err := j.pool.Query(ctx, `
SELECT seq, changeset_id, uid, username, change, diff_result, applied_at
FROM changeset_changes
WHERE instance = $1
ORDER BY seq`, j.instance)
	if err != nil {
		return err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := handler(rec); err != nil {
			return err
		}
	}

	replayLatency.Observe(time.Since(start).Seconds())
	return nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			rec         Record
			changeBytes []byte
			resultBytes []byte
		)
		if err := rows.Scan(&rec.Seq, &rec.ChangesetID, &rec.UID, &rec.User, &changeBytes, &resultBytes, &rec.AppliedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changeBytes, &rec.Change); err != nil {
			return nil, fmt.Errorf("decode change: %w", err)
		}
		if len(resultBytes) > 0 {
			if err := json.Unmarshal(resultBytes, &rec.Result); err != nil {
				return nil, fmt.Errorf("decode diff result: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *Journal) retry(ctx context.Context, fn func(context.Context) error) error {
	delay := j.retryDelay
	for attempt := 0; attempt <= j.maxRetries; attempt++ {
		if err := fn(ctx); err != nil {
			if !isTransient(err) || attempt == j.maxRetries {
				return err
			}
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}

	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
