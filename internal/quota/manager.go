package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/pkg/models"
	"github.com/nexassist/a11yscan/pkg/utils"
)

// Reservation is a provisional quota decrement: committed when the scan
// completes, released when a later pipeline stage fails. Exactly one of the
// two settles it; further calls are no-ops.
type Reservation struct {
	identity string
	tier     models.Tier
	window   time.Time
	settled  bool
}

func (r *Reservation) Identity() string  { return r.identity }
func (r *Reservation) Tier() models.Tier { return r.tier }

// Manager enforces per-identity daily scan limits. All record access runs
// under one mutex, which serializes check-and-reserve for the same identity:
// two concurrent Free-tier reservations can never both succeed in the same
// day window.
type Manager struct {
	mu      sync.Mutex
	records map[string]*models.QuotaRecord

	limitFor func(models.Tier) int
	loc      *time.Location
	store    *Store
	metrics  *utils.ScanMetrics
	logger   *logrus.Logger
	now      func() time.Time
}

func NewManager(config *models.Config, metrics *utils.ScanMetrics, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}

	tz := config.Quota.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading quota timezone %q: %w", tz, err)
	}

	m := &Manager{
		records:  make(map[string]*models.QuotaRecord),
		limitFor: config.DailyLimit,
		loc:      loc,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
	if config.Quota.StatePath != "" {
		m.store = NewStore(config.Quota.StatePath, logger)
		m.records = m.store.Load()
	}
	return m, nil
}

// CheckAndReserve reserves one scan slot for identity in the current day
// window. Tiers with a zero limit are unlimited; their usage is still
// counted for observability.
func (m *Manager) CheckAndReserve(identity string, tier models.Tier) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.windowStart()
	rec := m.records[identity]
	if rec == nil || !rec.WindowStart.Equal(window) {
		rec = &models.QuotaRecord{Identity: identity, Tier: tier, WindowStart: window}
		m.records[identity] = rec
	}
	rec.Tier = tier

	if limit := m.limitFor(tier); limit > 0 && rec.Count >= limit {
		if m.metrics != nil {
			m.metrics.QuotaDenials.WithLabelValues(string(tier)).Inc()
		}
		return nil, &models.QuotaExceededError{
			Identity:        identity,
			Tier:            tier,
			NextAvailableAt: window.AddDate(0, 0, 1),
		}
	}

	rec.Count++
	m.persist()

	m.logger.WithFields(logrus.Fields{
		"identity": identity,
		"tier":     tier,
		"count":    rec.Count,
	}).Debug("Quota slot reserved")

	return &Reservation{identity: identity, tier: tier, window: window}, nil
}

// Commit finalizes a reservation. The slot stays consumed.
func (m *Manager) Commit(res *Reservation) {
	if res == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.settled {
		return
	}
	res.settled = true
	m.persist()
}

// Release returns a reserved slot after a failed scan so the failure does
// not consume quota. No-op if the day window has already rolled over.
func (m *Manager) Release(res *Reservation) {
	if res == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.settled {
		return
	}
	res.settled = true

	rec := m.records[res.identity]
	if rec == nil || !rec.WindowStart.Equal(res.window) {
		return
	}
	if rec.Count > 0 {
		rec.Count--
	}
	m.persist()

	m.logger.WithFields(logrus.Fields{
		"identity": res.identity,
		"count":    rec.Count,
	}).Debug("Quota slot released")
}

// Usage reports the identity's consumed count and effective limit for the
// current window. A zero limit means unlimited.
func (m *Manager) Usage(identity string, tier models.Tier) (count, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit = m.limitFor(tier)
	rec := m.records[identity]
	if rec == nil || !rec.WindowStart.Equal(m.windowStart()) {
		return 0, limit
	}
	return rec.Count, limit
}

func (m *Manager) GetStats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	window := m.windowStart()
	for _, rec := range m.records {
		if rec.WindowStart.Equal(window) && rec.Count > 0 {
			active++
		}
	}
	return map[string]interface{}{
		"tracked_identities": len(m.records),
		"active_today":       active,
		"window_start":       window,
		"timezone":           m.loc.String(),
	}
}

func (m *Manager) windowStart() time.Time {
	now := m.now().In(m.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.loc)
}

// persist is called with the mutex held.
func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.records); err != nil {
		m.logger.WithError(err).Warn("Failed to persist quota state")
	}
}
