// Package mqtt provides MQTT publishing of triage results with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/asthma-review/internal/triage"
)

// Topic is the MQTT topic for triage results.
const Topic = "clinical/asthma/review/results"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "clinical/asthma/review/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a triage result to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event ResultEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ResultEvent is one triaged review ready for publishing.
type ResultEvent struct {
	ID        string
	Timestamp time.Time
	Result    triage.TriageResult
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Review ReviewPayload `json:"review"`
}

// ReviewPayload contains the triage result details. Patient free text is
// never included.
type ReviewPayload struct {
	ID            string   `json:"id"`
	Timestamp     string   `json:"timestamp"`
	Escalation    string   `json:"escalation"`
	AmberTriggers []string `json:"amber_triggers"`
	RedTriggers   []string `json:"red_triggers"`
	Notes         []string `json:"notes"`
}

// FormatPayload creates the JSON payload for a triage result.
// Nil trigger and note lists are written as empty arrays.
func FormatPayload(event ResultEvent) ([]byte, error) {
	payload := Payload{
		Review: ReviewPayload{
			ID:            event.ID,
			Timestamp:     event.Timestamp.UTC().Format(time.RFC3339),
			Escalation:    string(event.Result.Escalation),
			AmberTriggers: nonNil(event.Result.AmberTriggers),
			RedTriggers:   nonNil(event.Result.RedTriggers),
			Notes:         nonNil(event.Result.Notes),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes if the service
// drops off without a clean shutdown. It has no timestamp because it is
// registered at connect time.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{Event: "OFFLINE", Reason: "LWT"},
	})
	return data
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
