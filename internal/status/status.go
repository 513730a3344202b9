// Package status provides a thread-safe status tracker for the review service.
// It is read by HTTP handlers and by heartbeat publishing.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/asthma-review/internal/triage"
)

// Config contains service configuration for display.
type Config struct {
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	BufferSize  int
}

// Counts tracks reviews per final escalation since startup.
type Counts struct {
	Green int
	Amber int
	Red   int
}

// Total returns the number of reviews counted.
func (c Counts) Total() int {
	return c.Green + c.Amber + c.Red
}

// LastReview summarises the most recent review. Trigger text is kept;
// patient free text is not.
type LastReview struct {
	ID         string
	ReceivedAt time.Time
	Escalation triage.Escalation
	Triggers   int
}

// Snapshot is a point-in-time view of service state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Counts        Counts
	Last          *LastReview
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the service started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable service state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Record counts one review and makes it the last review.
// Escalations outside the known levels are not counted.
func (t *Tracker) Record(id string, at time.Time, res triage.TriageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch res.Escalation {
	case triage.EscalationGreen:
		t.snap.Counts.Green++
	case triage.EscalationAmber:
		t.snap.Counts.Amber++
	case triage.EscalationRed:
		t.snap.Counts.Red++
	default:
		return
	}
	t.snap.Last = &LastReview{
		ID:         id,
		ReceivedAt: at,
		Escalation: res.Escalation,
		Triggers:   len(res.AmberTriggers) + len(res.RedTriggers),
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the service state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
