package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tradeeon/condition-engine/internal/models"
)

func TestConditionRepositoryGetByFingerprintQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT fingerprint`).
		WithArgs("deadbeef").
		WillReturnError(errors.New("connection reset"))

	repo := NewConditionRepository(db)
	rec, err := repo.GetByFingerprint("deadbeef")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if rec != nil {
		t.Fatalf("expected nil record on error, got %+v", rec)
	}
}

func TestConditionRepositoryGetByFingerprintFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"fingerprint", "symbol", "timeframe", "indicator", "settings", "operator", "operand",
		"status", "last_evaluated_at", "last_triggered_at", "evaluation_count", "created_at", "updated_at",
	}).AddRow("fp1", "BTCUSDT", "1h", "rsi", []byte(`{"period":14}`), "lt", []byte(`{"value":30}`),
		models.ConditionStatusActive, now, now, int64(3), now, now)

	mock.ExpectQuery(`SELECT fingerprint`).WithArgs("fp1").WillReturnRows(rows)

	repo := NewConditionRepository(db)
	rec, err := repo.GetByFingerprint("fp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.Symbol != "BTCUSDT" || rec.Indicator != "rsi" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Settings["period"] != float64(14) {
		t.Fatalf("expected settings.period == 14, got %v", rec.Settings["period"])
	}
}

func TestConditionRepositoryGetByFingerprintAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT fingerprint`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	repo := NewConditionRepository(db)
	rec, err := repo.GetByFingerprint("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for missing fingerprint, got %+v", rec)
	}
}

func TestConditionRepositorySetStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE condition_records`).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewConditionRepository(db)
	err = repo.SetStatus("fp1", models.ConditionStatusPaused)
	if !errors.Is(err, ErrConditionNotFound) {
		t.Fatalf("expected ErrConditionNotFound, got %v", err)
	}
}

func TestConditionRepositoryActiveFingerprints(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"fingerprint"}).AddRow("fp1").AddRow("fp2")
	mock.ExpectQuery(`SELECT DISTINCT c.fingerprint`).WillReturnRows(rows)

	repo := NewConditionRepository(db)
	fps, err := repo.ActiveFingerprints()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fps) != 2 {
		t.Fatalf("expected 2 fingerprints, got %d", len(fps))
	}
}
