package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
)

// advisoryLockKey serialises chain writers across every ledgerd instance
// sharing the database.
const advisoryLockKey = int64(7_341_020_611)

const entryColumns = `id, sequence, entry_number, entry_date, description, debit_total, credit_total,
	created_by, created_at, posted_at, prev_hash, hash,
	COALESCE(reverses_entry_id, ''), COALESCE(voided_by_entry_id, ''), voided_at`

// PostgresStore persists the ledger in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Append implements Chain. The entry insert, its lines, the draft removal,
// the void mark and the tail advance commit in one transaction, or not at all.
func (s *PostgresStore) Append(ctx context.Context, req AppendRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	p := req.Entry

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE chain_tail SET sequence = $1, hash = $2 WHERE sequence = $3 AND hash = $4`,
		p.Sequence, p.Hash, req.Expected.Sequence, req.Expected.Hash,
	)
	if err != nil {
		return fmt.Errorf("advance chain tail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrChainRace
	}

	if req.DraftID != "" {
		if err := removeDraft(ctx, tx, req.DraftID, req.DraftRevision); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO journal_entries (id, sequence, entry_number, entry_date, description,
			debit_total, credit_total, created_by, created_at, posted_at, prev_hash, hash, reverses_entry_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''))`,
		p.ID, p.Sequence, p.EntryNumber, p.Date, p.Description,
		p.DebitTotal.Minor(), p.CreditTotal.Minor(), p.CreatedBy, p.CreatedAt, p.PostedAt,
		p.PrevHash, p.Hash, p.ReversesEntryID,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "journal_entries_sequence_key" {
				return model.ErrChainRace
			}
			return fmt.Errorf("%w: %s already posted", model.ErrNotDraft, p.ID)
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}

	rows := make([][]any, len(p.Lines))
	for i, l := range p.Lines {
		rows[i] = []any{p.ID, i, l.AccountID, l.Debit.Minor(), l.Credit.Minor(), l.Description}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"journal_lines"},
		[]string{"entry_id", "line_no", "account_id", "debit", "credit", "description"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("insert journal lines: %w", err)
	}

	if req.VoidsEntryID != "" {
		if err := s.markVoided(ctx, tx, req.VoidsEntryID, p.ID, p.PostedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chain tx: %w", err)
	}

	s.logger.Debug("journal entry appended",
		zap.Int64("sequence", p.Sequence),
		zap.String("entry_number", p.EntryNumber),
		zap.String("id", p.ID),
	)
	return nil
}

// removeDraft deletes the draft only at the revision that was posted.
func removeDraft(ctx context.Context, tx pgx.Tx, id string, revision int64) error {
	tag, err := tx.Exec(ctx, `DELETE FROM draft_entries WHERE id = $1 AND revision = $2`, id, revision)
	if err != nil {
		return fmt.Errorf("remove draft: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var current int64
	err = tx.QueryRow(ctx, `SELECT revision FROM draft_entries WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", model.ErrNotDraft, id)
	}
	if err != nil {
		return fmt.Errorf("check draft revision: %w", err)
	}
	return fmt.Errorf("%w: %s is at revision %d, not %d", model.ErrDraftChanged, id, current, revision)
}

func (s *PostgresStore) markVoided(ctx context.Context, tx pgx.Tx, origID, reversalID string, at time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE journal_entries SET voided_by_entry_id = $1, voided_at = $2
		 WHERE id = $3 AND voided_by_entry_id IS NULL AND reverses_entry_id IS NULL`,
		reversalID, at, origID,
	)
	if err != nil {
		return fmt.Errorf("mark voided: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var reverses, voidedBy string
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(reverses_entry_id, ''), COALESCE(voided_by_entry_id, '') FROM journal_entries WHERE id = $1`,
		origID,
	).Scan(&reverses, &voidedBy)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: %s", model.ErrNotPosted, origID)
	case err != nil:
		return fmt.Errorf("check voided entry: %w", err)
	case reverses != "":
		return model.ErrReversalEntry
	default:
		return model.ErrAlreadyVoided
	}
}

// GetBySequence implements Chain.
func (s *PostgresStore) GetBySequence(ctx context.Context, seq int64) (*model.Posted, error) {
	return s.getOne(ctx, s.pool, `SELECT `+entryColumns+` FROM journal_entries WHERE sequence = $1`, seq)
}

// GetPosted implements Chain.
func (s *PostgresStore) GetPosted(ctx context.Context, id string) (*model.Posted, error) {
	return s.getOne(ctx, s.pool, `SELECT `+entryColumns+` FROM journal_entries WHERE id = $1`, id)
}

// Range implements Chain.
func (s *PostgresStore) Range(ctx context.Context, from, to int64) ([]*model.Posted, error) {
	if from < 1 {
		from = 1
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if to <= 0 {
		tail, err := readTail(ctx, tx)
		if err != nil {
			return nil, err
		}
		to = tail.Sequence
	}
	return loadEntries(ctx, tx, from, to)
}

// Tail implements Chain.
func (s *PostgresStore) Tail(ctx context.Context) (model.ChainTail, error) {
	return readTail(ctx, s.pool)
}

// Snapshot implements Chain. Tail, entries and void marks are read in one
// REPEATABLE READ transaction, so a concurrent commit is either wholly
// visible or not at all.
func (s *PostgresStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tail, err := readTail(ctx, tx)
	if err != nil {
		return nil, err
	}
	entries, err := loadEntries(ctx, tx, 1, tail.Sequence)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Tail: tail, Entries: entries}, nil
}

// Recover implements Chain. If entries exist past the stored tail, the
// tail is advanced along the entries that link to it. Entries that do not
// link are left for the verifier to report.
func (s *PostgresStore) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return rep, fmt.Errorf("begin recover tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return rep, fmt.Errorf("acquire advisory lock: %w", err)
	}
	tail, err := readTail(ctx, tx)
	if err != nil {
		return rep, err
	}
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM journal_entries`).Scan(&rep.MaxSequence); err != nil {
		return rep, fmt.Errorf("read max sequence: %w", err)
	}
	rep.Tail = tail

	switch {
	case rep.MaxSequence == tail.Sequence:
		return rep, nil
	case rep.MaxSequence < tail.Sequence:
		s.logger.Error("chain tail is ahead of stored entries",
			zap.Int64("tail_sequence", tail.Sequence),
			zap.Int64("max_sequence", rep.MaxSequence),
		)
		return rep, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT sequence, prev_hash, hash FROM journal_entries WHERE sequence > $1 ORDER BY sequence`,
		tail.Sequence,
	)
	if err != nil {
		return rep, fmt.Errorf("scan entries past tail: %w", err)
	}
	next := tail
	for rows.Next() {
		var seq int64
		var prev, hash string
		if err := rows.Scan(&seq, &prev, &hash); err != nil {
			rows.Close()
			return rep, fmt.Errorf("scan entry: %w", err)
		}
		if seq != next.Sequence+1 || prev != next.Hash {
			break
		}
		next = model.ChainTail{Sequence: seq, Hash: hash}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rep, err
	}

	rep.Orphaned = rep.MaxSequence - next.Sequence
	if next != tail {
		if _, err := tx.Exec(ctx,
			`UPDATE chain_tail SET sequence = $1, hash = $2 WHERE sequence = $3 AND hash = $4`,
			next.Sequence, next.Hash, tail.Sequence, tail.Hash,
		); err != nil {
			return rep, fmt.Errorf("advance chain tail: %w", err)
		}
		rep.Advanced = true
		rep.Tail = next
	}
	if err := tx.Commit(ctx); err != nil {
		return rep, fmt.Errorf("commit recover tx: %w", err)
	}

	s.logger.Warn("chain tail recovered",
		zap.Int64("from_sequence", tail.Sequence),
		zap.Int64("to_sequence", next.Sequence),
		zap.Int64("orphaned", rep.Orphaned),
	)
	return rep, nil
}

// CreateDraft implements Drafts.
func (s *PostgresStore) CreateDraft(ctx context.Context, d *model.Draft) error {
	lines, err := json.Marshal(d.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO draft_entries (id, entry_number, entry_date, description, lines, created_by, created_at, updated_at, revision)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)`,
		d.ID, d.EntryNumber, d.Date, d.Description, lines, d.CreatedBy, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	d.Revision = 1
	return nil
}

// GetDraft implements Drafts.
func (s *PostgresStore) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, entry_number, entry_date, description, lines, created_by, created_at, updated_at, revision
		 FROM draft_entries WHERE id = $1`, id)
	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missingDraft(ctx, id)
	}
	return d, err
}

// UpdateDraft implements Drafts.
func (s *PostgresStore) UpdateDraft(ctx context.Context, d *model.Draft) error {
	lines, err := json.Marshal(d.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}
	var rev int64
	err = s.pool.QueryRow(ctx,
		`UPDATE draft_entries
		 SET entry_number = $1, entry_date = $2, description = $3, lines = $4, updated_at = $5, revision = revision + 1
		 WHERE id = $6 RETURNING revision`,
		d.EntryNumber, d.Date, d.Description, lines, d.UpdatedAt, d.ID,
	).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.missingDraft(ctx, d.ID)
	}
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	d.Revision = rev
	return nil
}

// DeleteDraft implements Drafts.
func (s *PostgresStore) DeleteDraft(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM draft_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingDraft(ctx, id)
	}
	return nil
}

// ListDrafts implements Drafts.
func (s *PostgresStore) ListDrafts(ctx context.Context, limit, offset int) ([]*model.Draft, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.pool.Query(ctx,
		`SELECT id, entry_number, entry_date, description, lines, created_by, created_at, updated_at, revision
		 FROM draft_entries ORDER BY created_at, entry_number LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []*model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// NextEntryNumber implements Drafts.
func (s *PostgresStore) NextEntryNumber(ctx context.Context, fiscalYear int) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO entry_counters (fiscal_year, last_value) VALUES ($1, 1)
		 ON CONFLICT (fiscal_year) DO UPDATE SET last_value = entry_counters.last_value + 1
		 RETURNING last_value`, fiscalYear,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next entry number: %w", err)
	}
	return n, nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return st, fmt.Errorf("begin stats tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if st.Tail, err = readTail(ctx, tx); err != nil {
		return st, err
	}
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(voided_by_entry_id) FROM journal_entries WHERE sequence <= $1`, st.Tail.Sequence,
	).Scan(&st.Posted, &st.Voided); err != nil {
		return st, fmt.Errorf("count entries: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM draft_entries`).Scan(&st.Drafts); err != nil {
		return st, fmt.Errorf("count drafts: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) missingDraft(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_entries WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check posted: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", model.ErrNotDraft, id)
	}
	return fmt.Errorf("%w: draft %s", model.ErrNotFound, id)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readTail(ctx context.Context, q querier) (model.ChainTail, error) {
	var t model.ChainTail
	if err := q.QueryRow(ctx, `SELECT sequence, hash FROM chain_tail WHERE id`).Scan(&t.Sequence, &t.Hash); err != nil {
		return t, fmt.Errorf("read chain tail: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) getOne(ctx context.Context, q querier, query string, arg any) (*model.Posted, error) {
	p, err := scanEntry(q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: entry %v", model.ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, q, `WHERE l.entry_id = $1`, p.ID)
	if err != nil {
		return nil, err
	}
	p.Lines = lines[p.ID]
	return p, nil
}

// loadEntries reads entries from..to with their lines, in sequence order.
func loadEntries(ctx context.Context, q querier, from, to int64) ([]*model.Posted, error) {
	if to < from {
		return nil, nil
	}
	rows, err := q.Query(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE sequence BETWEEN $1 AND $2 ORDER BY sequence`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	var out []*model.Posted
	for rows.Next() {
		p, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := loadLines(ctx, q,
		`JOIN journal_entries e ON e.id = l.entry_id WHERE e.sequence BETWEEN $1 AND $2`, from, to)
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		p.Lines = lines[p.ID]
	}
	return out, nil
}

func loadLines(ctx context.Context, q querier, where string, args ...any) (map[string][]model.Line, error) {
	rows, err := q.Query(ctx,
		`SELECT l.entry_id, l.account_id, l.debit, l.credit, l.description
		 FROM journal_lines l `+where+` ORDER BY l.entry_id, l.line_no`, args...)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Line)
	for rows.Next() {
		var entryID string
		var debit, credit int64
		var l model.Line
		if err := rows.Scan(&entryID, &l.AccountID, &debit, &credit, &l.Description); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		l.Debit = money.FromMinor(debit)
		l.Credit = money.FromMinor(credit)
		out[entryID] = append(out[entryID], l)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*model.Posted, error) {
	var p model.Posted
	var debit, credit int64
	err := row.Scan(
		&p.ID, &p.Sequence, &p.EntryNumber, &p.Date, &p.Description, &debit, &credit,
		&p.CreatedBy, &p.CreatedAt, &p.PostedAt, &p.PrevHash, &p.Hash,
		&p.ReversesEntryID, &p.VoidedByEntryID, &p.VoidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	p.Date = model.Day(p.Date)
	p.DebitTotal = money.FromMinor(debit)
	p.CreditTotal = money.FromMinor(credit)
	return &p, nil
}

func scanDraft(row pgx.Row) (*model.Draft, error) {
	var d model.Draft
	var lines []byte
	err := row.Scan(&d.ID, &d.EntryNumber, &d.Date, &d.Description, &lines, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.Revision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan draft: %w", err)
	}
	if err := json.Unmarshal(lines, &d.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal draft lines: %w", err)
	}
	d.Date = model.Day(d.Date)
	return &d, nil
}
