package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"raptor/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"duplicate key error", errors.New("duplicate key value violates unique constraint"), true},
		{"postgres error code 23505", errors.New("ERROR: 23505 duplicate key"), true},
		{"other error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestClaimTradeJobsEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM trade_jobs`).
		WithArgs("solana", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	jobs, err := s.ClaimTradeJobs(context.Background(), "solana", "worker-1", 10, 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimTradeJobsClaimsAndLeases(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM trade_jobs`).
		WithArgs("solana", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	cols := []string{
		"id", "strategy_id", "user_id", "chain", "action", "opportunity_ref", "priority", "payload",
		"idempotency_key", "status", "attempts", "max_attempts", "worker_id", "lease_expires_at", "last_error",
		"created_at", "updated_at",
	}
	mock.ExpectQuery(`UPDATE trade_jobs`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(5), int64(1), int64(1), "solana", "BUY", nil, 0, []byte(`{}`),
			"buy:1:1:mint", "RUNNING", 1, 3, "worker-1", now, "", now, now,
		))
	mock.ExpectCommit()

	jobs, err := s.ClaimTradeJobs(context.Background(), "solana", "worker-1", 10, 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 5 {
		t.Fatalf("expected one claimed job with id 5, got %+v", jobs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFinalizeJobLeaseLost(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE trade_jobs`).
		WithArgs(int64(5), "worker-1", "DONE", "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.FinalizeJob(context.Background(), 5, "worker-1", "DONE", "")
	if !errors.Is(err, ErrLeaseLost) {
		t.Errorf("expected ErrLeaseLost, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTriggerExitAtomicallyConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE positions`).
		WithArgs(int64(9), "TP", 0.005).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.TriggerExitAtomically(context.Background(), 9, "TP", 0.005)
	if !errors.Is(err, ErrTriggerConflict) {
		t.Errorf("expected ErrTriggerConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTriggerExitAtomicallySuccess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE positions`).
		WithArgs(int64(9), "SL", 0.001).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.TriggerExitAtomically(context.Background(), 9, "SL", 0.001); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReserveTradeBudgetRejectsOverPerTradeCap(t *testing.T) {
	s, mock := newMockStore(t)

	st := &models.Strategy{
		UserID:             1,
		MaxPerTradeSOL:     0.5,
		MaxDailySOL:        5,
		MaxOpenExposureSOL: 10,
		MaxPositions:       5,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM executions WHERE idempotency_key = \$1 FOR UPDATE`).
		WithArgs("buy:1:1:mint").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM safety_controls WHERE scope = \$1`).
		WithArgs(models.SafetyScopeGlobal).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM cooldowns WHERE`).
		WithArgs("", models.CooldownMint, "mint").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM cooldowns WHERE`).
		WithArgs("", models.CooldownUserMint, "1:mint").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_sol\), 0\) FROM executions`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(entry_cost_sol\), 0\) FROM positions`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM positions`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err := s.ReserveTradeBudget(context.Background(), st, "buy:1:1:mint", "mint", "", models.ActionBuy, models.ModeAuto, 1.0, false)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReserveTradeBudgetAdmitsWithinCaps(t *testing.T) {
	s, mock := newMockStore(t)

	st := &models.Strategy{
		UserID:             1,
		MaxPerTradeSOL:     0.5,
		MaxDailySOL:        5,
		MaxOpenExposureSOL: 10,
		MaxPositions:       5,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM executions WHERE idempotency_key = \$1 FOR UPDATE`).
		WithArgs("buy:1:1:mint").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM safety_controls WHERE scope = \$1`).
		WithArgs(models.SafetyScopeGlobal).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM cooldowns WHERE`).
		WithArgs("", models.CooldownMint, "mint").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM cooldowns WHERE`).
		WithArgs("", models.CooldownUserMint, "1:mint").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_sol\), 0\) FROM executions`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1.0))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(entry_cost_sol\), 0\) FROM positions`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(2.0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM positions`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{
		"id", "idempotency_key", "user_id", "mint", "action", "mode", "status", "tx_sig", "amount_sol",
		"tokens_out", "price_per_token", "error", "error_code", "result", "created_at", "updated_at",
	}
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO executions`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(1), "buy:1:1:mint", int64(1), "mint", "BUY", "AUTO", "RESERVED", nil, 0.3,
			nil, nil, "", "", []byte(`{}`), now, now,
		))
	mock.ExpectCommit()

	exec, err := s.ReserveTradeBudget(context.Background(), st, "buy:1:1:mint", "mint", "", models.ActionBuy, models.ModeAuto, 0.3, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status != models.ExecutionReserved {
		t.Errorf("expected status RESERVED, got %s", exec.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateExecutionRejectsIllegalTransition(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM executions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.ExecutionConfirmed))
	mock.ExpectRollback()

	err := s.UpdateExecution(context.Background(), 1, models.ExecutionSubmitted, nil, nil, nil, "", "", nil)
	if err == nil {
		t.Fatal("expected error for illegal transition, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetUserByChatIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE chat_id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUserByChatID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
