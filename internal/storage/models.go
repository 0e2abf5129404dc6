package storage

import (
	"database/sql"
	"time"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// runColumns is the column list shared by run queries, in scanRun order.
const runColumns = `id, started_at, completed_at, endpoint, chain, signer, state,
	start_block, end_block, duration_blocks, bursts, attempts, submitted, failed,
	initial_balance, final_balance, total_spent, error_message`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.RunSummary, error) {
	var run types.RunSummary
	var completedAt sql.NullTime
	var finalBalance, totalSpent, errorMsg sql.NullString

	err := row.Scan(&run.ID, &run.StartedAt, &completedAt, &run.Endpoint, &run.Chain, &run.Signer, &run.State,
		&run.StartBlock, &run.EndBlock, &run.DurationBlocks, &run.Bursts, &run.Attempts, &run.Submitted, &run.Failed,
		&run.InitialBalance, &finalBalance, &totalSpent, &errorMsg)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.FinalBalance = finalBalance.String
	run.TotalSpent = totalSpent.String
	run.Error = errorMsg.String
	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
