package health

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	minUptimeHours = 100
	maxUptimeHours = 8760
)

// DefaultLastMaintenance is reported for devices without a maintenance record.
var DefaultLastMaintenance = time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)

// Maintenance carries the service metadata attached to a device status report.
type Maintenance struct {
	LastMaintenance time.Time
	UptimeHours     int
}

// MaintenanceSource resolves maintenance metadata for a device.
type MaintenanceSource interface {
	Maintenance(ctx context.Context, deviceID string) (Maintenance, error)
}

// StaticMaintenance reports a fixed last-maintenance date and a random uptime.
type StaticMaintenance struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last time.Time
}

// NewStaticMaintenance builds the fallback source. A nil rng is seeded from the clock.
func NewStaticMaintenance(rng *rand.Rand) *StaticMaintenance {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &StaticMaintenance{rng: rng, last: DefaultLastMaintenance}
}

// Maintenance never fails.
func (s *StaticMaintenance) Maintenance(_ context.Context, _ string) (Maintenance, error) {
	s.mu.Lock()
	uptime := minUptimeHours + s.rng.Intn(maxUptimeHours-minUptimeHours+1)
	s.mu.Unlock()
	return Maintenance{LastMaintenance: s.last, UptimeHours: uptime}, nil
}
