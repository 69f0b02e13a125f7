package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/health"
)

// ErrDeviceNotFound is returned when a device has no maintenance row.
var ErrDeviceNotFound = errors.New("device not found")

// Repository reads device maintenance records from MySQL.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository constructs a Repository with the provided sql.DB pool.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// EnsureSchema creates the devices table if it is missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS devices (
		device_id VARCHAR(255) NOT NULL PRIMARY KEY,
		last_maintenance TIMESTAMP NOT NULL,
		commissioned_at TIMESTAMP NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create devices table: %w", err)
	}
	return nil
}

// RegisterDevices inserts a row for every device that does not have one yet, so the
// simulated plant always resolves from the table. Existing rows are left untouched.
func (r *Repository) RegisterDevices(ctx context.Context, deviceIDs []string, commissionedAt time.Time) error {
	const stmt = `INSERT IGNORE INTO devices (device_id, last_maintenance, commissioned_at) VALUES (?, ?, ?)`
	for _, id := range deviceIDs {
		if _, err := r.db.ExecContext(ctx, stmt, id, health.DefaultLastMaintenance, commissionedAt.UTC()); err != nil {
			return fmt.Errorf("register device %s: %w", id, err)
		}
	}
	return nil
}

// Maintenance implements health.MaintenanceSource. Uptime is the whole hours elapsed
// since commissioning.
func (r *Repository) Maintenance(ctx context.Context, deviceID string) (health.Maintenance, error) {
	const query = `SELECT last_maintenance, commissioned_at FROM devices WHERE device_id = ?`

	var last, commissioned time.Time
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&last, &commissioned)
	if errors.Is(err, sql.ErrNoRows) {
		return health.Maintenance{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return health.Maintenance{}, fmt.Errorf("query maintenance for %s: %w", deviceID, err)
	}

	uptime := int(r.now().Sub(commissioned).Hours())
	if uptime < 0 {
		uptime = 0
	}
	return health.Maintenance{LastMaintenance: last.UTC(), UptimeHours: uptime}, nil
}

// Ping checks MySQL connectivity using the provided context.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
