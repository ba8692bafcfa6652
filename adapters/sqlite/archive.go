package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/himawari-bot/himawari/domain/budget"
	"github.com/himawari-bot/himawari/ports"
)

// attachAlias names the archive database while attached to the live
// connection.
const attachAlias = "daily_archive"

// Archive implements ports.ArchiveStore with one SQLite file per JST
// calendar date, written through ATTACH on the live ledger connection
// so the summarize step is a single INSERT..SELECT.
type Archive struct {
	db  *DB
	dir string
}

// NewArchive creates an archive store rooted at dir.
func NewArchive(db *DB, dir string) *Archive {
	return &Archive{db: db, dir: dir}
}

// Path returns the archive file path for a usage date.
func (a *Archive) Path(usageDate string) string {
	return filepath.Join(a.dir, strings.ReplaceAll(usageDate, "-", "")+".db")
}

// ArchiveDay summarizes the ledger's events for usageDate into that
// date's archive file, replacing any rows a previous run wrote. The
// attach is scoped to one pooled connection and the detach runs on
// every exit path, so a failed run never leaves the archive attached.
func (a *Archive) ArchiveDay(ctx context.Context, usageDate string) (rows int64, err error) {
	if _, _, err := budget.DayWindow(usageDate); err != nil {
		return 0, fmt.Errorf("invalid usage date %q: %w", usageDate, err)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}

	// ATTACH is connection-scoped; a dedicated connection keeps it away
	// from the pool's other sessions.
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	path := a.Path(usageDate)
	quoted := strings.ReplaceAll(path, "'", "''")
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE '%s' AS %s", quoted, attachAlias)); err != nil {
		return 0, fmt.Errorf("attach archive %s: %w", path, err)
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE "+attachAlias); detachErr != nil && err == nil {
			err = fmt.Errorf("detach archive: %w", detachErr)
		}
	}()

	if err := a.writeDay(ctx, conn, usageDate, &rows); err != nil {
		return 0, err
	}
	return rows, nil
}

func (a *Archive) writeDay(ctx context.Context, conn *sql.Conn, usageDate string, rows *int64) error {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+attachAlias+`.daily_totals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			usage_date TEXT NOT NULL,
			user_id TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(usage_date, user_id)
		)
	`); err != nil {
		return fmt.Errorf("ensure daily_totals: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	// Delete-then-insert makes re-runs for the same date idempotent.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+attachAlias+".daily_totals WHERE usage_date = ?", usageDate); err != nil {
		return fmt.Errorf("clear existing day: %w", err)
	}

	// Ledger timestamps are UTC, so the JST day window is the calendar
	// date shifted back nine hours.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO `+attachAlias+`.daily_totals (
			usage_date, user_id, input_tokens, output_tokens, total_tokens
		)
		SELECT
			? AS usage_date,
			user_id,
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM token_usage
		WHERE datetime(timestamp) >= datetime(?, '-9 hours')
		  AND datetime(timestamp) < datetime(?, '-9 hours', '+1 day')
		GROUP BY user_id
	`, usageDate, usageDate, usageDate)
	if err != nil {
		return fmt.Errorf("insert aggregated rows: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive transaction: %w", err)
	}

	*rows = n
	return nil
}

// DailyTotals reads back the archived rows for usageDate from that
// date's archive file.
func (a *Archive) DailyTotals(ctx context.Context, usageDate string) ([]ports.DailyTotal, error) {
	path := a.Path(usageDate)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("stat archive %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT usage_date, user_id, input_tokens, output_tokens, total_tokens
		FROM daily_totals
		WHERE usage_date = ?
		ORDER BY user_id
	`, usageDate)
	if err != nil {
		return nil, fmt.Errorf("query archive %s: %w", path, err)
	}
	defer rows.Close()

	var totals []ports.DailyTotal
	for rows.Next() {
		var dt ports.DailyTotal
		if err := rows.Scan(&dt.UsageDate, &dt.UserID, &dt.InputTokens, &dt.OutputTokens, &dt.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		totals = append(totals, dt)
	}
	return totals, rows.Err()
}

// Ensure interface compliance.
var _ ports.ArchiveStore = (*Archive)(nil)
