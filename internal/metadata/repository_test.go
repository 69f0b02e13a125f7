package metadata

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/health"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestMaintenance(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	last := time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC)
	commissioned := now.Add(-250 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT last_maintenance, commissioned_at FROM devices WHERE device_id = ?`)).
		WithArgs("pump_001").
		WillReturnRows(sqlmock.NewRows([]string{"last_maintenance", "commissioned_at"}).AddRow(last, commissioned))

	m, err := repo.Maintenance(context.Background(), "pump_001")
	if err != nil {
		t.Fatalf("Maintenance: %v", err)
	}
	if !m.LastMaintenance.Equal(last) || m.UptimeHours != 250 {
		t.Fatalf("unexpected maintenance: %+v", m)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMaintenanceNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT last_maintenance, commissioned_at FROM devices`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"last_maintenance", "commissioned_at"}))

	_, err := repo.Maintenance(context.Background(), "ghost")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestMaintenanceQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT last_maintenance`)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Maintenance(context.Background(), "pump_001")
	if err == nil || errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestMaintenanceFutureCommissioning(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT last_maintenance`)).
		WithArgs("flow_001").
		WillReturnRows(sqlmock.NewRows([]string{"last_maintenance", "commissioned_at"}).
			AddRow(health.DefaultLastMaintenance, now.Add(time.Hour)))

	m, err := repo.Maintenance(context.Background(), "flow_001")
	if err != nil {
		t.Fatalf("Maintenance: %v", err)
	}
	if m.UptimeHours != 0 {
		t.Fatalf("expected uptime clamped to 0, got %d", m.UptimeHours)
	}
}

func TestEnsureSchemaAndRegister(t *testing.T) {
	repo, mock := newMockRepo(t)
	commissioned := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS devices`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, id := range []string{"pump_001", "vessel_001"} {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO devices`)).
			WithArgs(id, health.DefaultLastMaintenance, commissioned).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := repo.RegisterDevices(ctx, []string{"pump_001", "vessel_001"}, commissioned); err != nil {
		t.Fatalf("RegisterDevices: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterDevicesError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO devices`)).
		WillReturnError(errors.New("read-only"))

	if err := repo.RegisterDevices(context.Background(), []string{"pump_001"}, time.Now()); err == nil {
		t.Fatal("expected insert error")
	}
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewRepository(db)

	mock.ExpectPing()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	down := errors.New("server gone away")
	mock.ExpectPing().WillReturnError(down)
	if err := repo.Ping(context.Background()); !errors.Is(err, down) {
		t.Fatalf("expected ping error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
