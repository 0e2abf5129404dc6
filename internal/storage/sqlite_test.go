package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gateway-fm/dcaload/pkg/types"
)

func TestNullString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{name: "empty string returns invalid", input: "", wantValid: false},
		{name: "non-empty string returns valid", input: "1000", wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nullString(tt.input)
			if got.Valid != tt.wantValid {
				t.Errorf("nullString(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.Valid && got.String != tt.input {
				t.Errorf("nullString(%q).String = %q", tt.input, got.String)
			}
		})
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(nil).Valid {
		t.Error("nil time should be invalid")
	}
	zero := time.Time{}
	if nullTime(&zero).Valid {
		t.Error("zero time should be invalid")
	}
	now := time.Now()
	if got := nullTime(&now); !got.Valid || !got.Time.Equal(now) {
		t.Errorf("nullTime(now) = %+v", got)
	}
}

// createTestStorage creates a new SQLite storage with a temporary database.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "storage_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	storage, err := NewSQLiteStorage(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		storage.Close()
		os.RemoveAll(tmpDir)
	}

	return storage, cleanup
}

func testRun(id string, startedAt time.Time) types.RunSummary {
	return types.RunSummary{
		ID:             id,
		StartedAt:      startedAt,
		Endpoint:       "ws://127.0.0.1:9988",
		Chain:          "Development",
		Signer:         "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY",
		State:          types.StateRunning,
		StartBlock:     100,
		DurationBlocks: 3,
		InitialBalance: "1000000000000000000000",
	}
}

func testBurst(block uint64) types.BurstSummary {
	return types.BurstSummary{
		Block:         block,
		ElapsedBlocks: block - 100,
		Attempts:      5,
		Submitted:     4,
		Failed:        1,
		Outcomes:      map[types.SubmissionOutcome]int{types.OutcomeSubmitted: 4, types.OutcomeNonce: 1},
		FeeSpent:      "12345",
		Balance:       "999999999999999987655",
		RefTime:       123_456_789,
		ProofSize:     4096,
		WeightKnown:   true,
		DurationMs:    42,
		Timestamp:     time.Now(),
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage, cleanup := createTestStorage(t)
	defer cleanup()

	if storage.db == nil {
		t.Fatal("expected db to be non-nil")
	}
	for table, column := range map[string]string{
		"runs":          "error_message",
		"block_samples": "weight_known",
	} {
		var count int
		err := storage.db.QueryRow(
			"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
		).Scan(&count)
		if err != nil {
			t.Fatalf("table info for %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("%s.%s missing from schema", table, column)
		}
	}
}

func TestNewSQLiteStorage_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "runs.db")
	first, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.StartRun(context.Background(), testRun("run-1", time.Now())); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("migrations should be idempotent: %v", err)
	}
	defer second.Close()
	if _, err := second.GetRun(context.Background(), "run-1"); err != nil {
		t.Errorf("run should survive reopen: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	storage, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	run := testRun("run-123", time.Now())
	if err := storage.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	for _, block := range []uint64{101, 102} {
		if err := storage.RecordBurst(ctx, run.ID, testBurst(block)); err != nil {
			t.Fatalf("RecordBurst(%d) failed: %v", block, err)
		}
	}

	// Progress is visible before the run finishes
	got, err := storage.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.State != types.StateRunning || got.CompletedAt != nil {
		t.Errorf("running run: state = %s, completedAt = %v", got.State, got.CompletedAt)
	}
	if got.EndBlock != 102 || got.Bursts != 2 || got.Attempts != 10 || got.Submitted != 8 || got.Failed != 2 {
		t.Errorf("progress = end %d bursts %d attempts %d submitted %d failed %d",
			got.EndBlock, got.Bursts, got.Attempts, got.Submitted, got.Failed)
	}

	completed := time.Now()
	run.CompletedAt = &completed
	run.State = types.StateCompleted
	run.EndBlock = 103
	run.Bursts = 3
	run.Attempts = 15
	run.Submitted = 12
	run.Failed = 3
	run.FinalBalance = "999999999999999950000"
	run.TotalSpent = "50000"
	if err := storage.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err = storage.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.State != types.StateCompleted || got.CompletedAt == nil {
		t.Errorf("finished run: state = %s, completedAt = %v", got.State, got.CompletedAt)
	}
	if got.EndBlock != 103 || got.Bursts != 3 || got.Attempts != 15 {
		t.Errorf("totals = end %d bursts %d attempts %d", got.EndBlock, got.Bursts, got.Attempts)
	}
	if got.InitialBalance != run.InitialBalance || got.TotalSpent != "50000" {
		t.Errorf("balances = %q spent %q", got.InitialBalance, got.TotalSpent)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	storage, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := storage.GetRun(context.Background(), "nonexistent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordAndFinish_UnknownRun(t *testing.T) {
	storage, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := storage.RecordBurst(ctx, "missing", testBurst(101)); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordBurst: expected ErrNotFound, got %v", err)
	}
	if err := storage.FinishRun(ctx, testRun("missing", time.Now())); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun: expected ErrNotFound, got %v", err)
	}
}

func TestGetBlockSamples(t *testing.T) {
	storage, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	run := testRun("run-samples", time.Now())
	if err := storage.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	unknown := testBurst(103)
	unknown.FeeSpent = ""
	unknown.Balance = ""
	unknown.WeightKnown = false
	unknown.RefTime = 0
	unknown.ProofSize = 0
	for _, b := range []types.BurstSummary{testBurst(101), testBurst(102), unknown} {
		if err := storage.RecordBurst(ctx, run.ID, b); err != nil {
			t.Fatalf("RecordBurst failed: %v", err)
		}
	}

	samples, err := storage.GetBlockSamples(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetBlockSamples failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(samples))
	}
	for i, want := range []uint64{101, 102, 103} {
		if samples[i].Block != want {
			t.Errorf("samples[%d].Block = %d, want %d", i, samples[i].Block, want)
		}
	}

	first := samples[0]
	if first.FeeSpent != "12345" || first.Balance != "999999999999999987655" {
		t.Errorf("balances not preserved: fee %q balance %q", first.FeeSpent, first.Balance)
	}
	if !first.WeightKnown || first.RefTime != 123_456_789 || first.ProofSize != 4096 {
		t.Errorf("weight not preserved: %+v", first)
	}
	if first.Outcomes[types.OutcomeSubmitted] != 4 || first.Outcomes[types.OutcomeNonce] != 1 {
		t.Errorf("outcomes = %v", first.Outcomes)
	}
	if first.ElapsedBlocks != 1 || first.DurationMs != 42 {
		t.Errorf("elapsed %d duration %d", first.ElapsedBlocks, first.DurationMs)
	}

	last := samples[2]
	if last.FeeSpent != "" || last.Balance != "" || last.WeightKnown {
		t.Errorf("absent telemetry should stay absent: %+v", last)
	}

	empty, err := storage.GetBlockSamples(ctx, "other")
	if err != nil {
		t.Fatalf("GetBlockSamples failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", empty)
	}
}

func TestListRuns(t *testing.T) {
	storage, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := storage.StartRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("StartRun(%s) failed: %v", id, err)
		}
	}

	page, err := storage.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if page.Total != 3 || len(page.Runs) != 2 {
		t.Fatalf("total = %d, runs = %d; want 3, 2", page.Total, len(page.Runs))
	}
	if page.Runs[0].ID != "run-c" || page.Runs[1].ID != "run-b" {
		t.Errorf("order = %s, %s; want newest first", page.Runs[0].ID, page.Runs[1].ID)
	}

	page, err = storage.ListRuns(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(page.Runs) != 1 || page.Runs[0].ID != "run-a" {
		t.Errorf("second page = %+v", page.Runs)
	}
	if page.Limit != 2 || page.Offset != 2 {
		t.Errorf("limit/offset = %d/%d", page.Limit, page.Offset)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	storage, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	run := testRun("run-del", time.Now())
	if err := storage.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := storage.RecordBurst(ctx, run.ID, testBurst(101)); err != nil {
		t.Fatalf("RecordBurst failed: %v", err)
	}

	if err := storage.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := storage.GetRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	var count int
	if err := storage.db.QueryRow("SELECT COUNT(*) FROM block_samples WHERE run_id = ?", run.ID).Scan(&count); err != nil {
		t.Fatalf("count samples: %v", err)
	}
	if count != 0 {
		t.Errorf("samples left after delete = %d, want 0", count)
	}

	if err := storage.DeleteRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}
