package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Counts        CountsJSON      `json:"review_counts"`
	Last          *LastReviewJSON `json:"last_review,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of review counts.
type CountsJSON struct {
	Green int `json:"green"`
	Amber int `json:"amber"`
	Red   int `json:"red"`
	Total int `json:"total"`
}

// LastReviewJSON is the JSON representation of the last review.
type LastReviewJSON struct {
	ID         string `json:"id"`
	ReceivedAt string `json:"received_at"`
	Escalation string `json:"escalation"`
	Triggers   int    `json:"triggers"`
}

// ConfigJSON is the JSON representation of service config.
type ConfigJSON struct {
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	BufferSize  int    `json:"buffer_size"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Green: snap.Counts.Green,
			Amber: snap.Counts.Amber,
			Red:   snap.Counts.Red,
			Total: snap.Counts.Total(),
		},
		Config: ConfigJSON{
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			BufferSize:  snap.Config.BufferSize,
		},
	}
	if snap.Last != nil {
		inner.Last = &LastReviewJSON{
			ID:         snap.Last.ID,
			ReceivedAt: snap.Last.ReceivedAt.UTC().Format(time.RFC3339),
			Escalation: string(snap.Last.Escalation),
			Triggers:   snap.Last.Triggers,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
