// Package review turns submitted questionnaires into triaged, identified
// reviews and fans each result out to its collaborators.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/asthma-review/internal/metrics"
	"github.com/sweeney/asthma-review/internal/mqtt"
	"github.com/sweeney/asthma-review/internal/status"
	"github.com/sweeney/asthma-review/internal/triage"
)

// ErrMissingField is returned when a request omits a field the rules read.
var ErrMissingField = errors.New("missing field")

// Request is the wire form of a submitted questionnaire. When ActItems is
// present the ACT total is computed from it and ActTotal is ignored.
type Request struct {
	triage.ReviewInput
	// ActTotal shadows the embedded field so an absent total is not read as 0.
	ActTotal *int  `json:"act_total"`
	ActItems []int `json:"act_items,omitempty"`
}

// Input returns the review input the rule engine sees.
func (r Request) Input() triage.ReviewInput {
	in := r.ReviewInput
	switch {
	case len(r.ActItems) > 0:
		in.ActTotal = triage.ComputeActTotal(r.ActItems)
	case r.ActTotal != nil:
		in.ActTotal = *r.ActTotal
	}
	return in
}

// Validate reports every required field left out of the request. Booleans
// and the trigger count default to false and 0.
func (r Request) Validate() error {
	var missing []string
	if r.ActTotal == nil && len(r.ActItems) == 0 {
		missing = append(missing, "act_total")
	}
	in := r.ReviewInput
	for _, f := range []struct {
		name  string
		value string
	}{
		{"tiers.daytime", string(in.Tiers.Daytime)},
		{"tiers.night", string(in.Tiers.Night)},
		{"tiers.saba", string(in.Tiers.Saba)},
		{"preventer.prescribed", string(in.Preventer.Prescribed)},
		{"preventer.misses", string(in.Preventer.Misses)},
		{"preventer.technique", string(in.Preventer.Technique)},
		{"lifestyle.smoking", string(in.Lifestyle.Smoking)},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// DecodeRequest reads exactly one JSON request. Unknown fields, unknown enum
// values, missing required fields and trailing data are rejected.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode review: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Request{}, errors.New("decode review: unexpected data after request")
	}
	if err := req.Validate(); err != nil {
		return Request{}, fmt.Errorf("decode review: %w", err)
	}
	return req, nil
}

// Review is a triaged questionnaire.
type Review struct {
	ID         uuid.UUID
	ReceivedAt time.Time
	Input      triage.ReviewInput
	Result     triage.TriageResult
}

// Processor triages reviews and records the outcome. All collaborators are
// optional; a nil collaborator is skipped.
type Processor struct {
	tracker   *status.Tracker
	metrics   *metrics.Recorder
	publisher mqtt.Publisher
	log       *slog.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

// Option configures a Processor.
type Option func(*Processor)

// WithTracker records every review in t.
func WithTracker(t *status.Tracker) Option {
	return func(p *Processor) { p.tracker = t }
}

// WithMetrics counts every review in m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithPublisher publishes every result through pub.
func WithPublisher(pub mqtt.Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithIDGenerator overrides review ID generation.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(p *Processor) { p.newID = gen }
}

// NewProcessor creates a Processor.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		log:   slog.Default(),
		now:   time.Now,
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process triages input and records the result. A publish failure is logged
// and counted but does not fail the review; the only error is a cancelled ctx.
func (p *Processor) Process(ctx context.Context, input triage.ReviewInput) (Review, error) {
	if err := ctx.Err(); err != nil {
		return Review{}, err
	}

	rev := Review{
		ID:         p.newID(),
		ReceivedAt: p.now(),
		Input:      input,
		Result:     triage.Triage(input),
	}

	p.log.Info("review triaged",
		"id", rev.ID,
		"escalation", rev.Result.Escalation,
		"amber", len(rev.Result.AmberTriggers),
		"red", len(rev.Result.RedTriggers),
		"notes", rev.Result.Notes,
	)

	if p.tracker != nil {
		p.tracker.Record(rev.ID.String(), rev.ReceivedAt, rev.Result)
	}
	if p.metrics != nil {
		p.metrics.Observe(rev.Result)
	}
	if p.publisher != nil {
		event := mqtt.ResultEvent{ID: rev.ID.String(), Timestamp: rev.ReceivedAt, Result: rev.Result}
		if err := p.publisher.Publish(event); err != nil {
			p.log.Warn("publish error", "id", rev.ID, "error", err)
			if p.metrics != nil {
				p.metrics.PublishFailed()
			}
		}
	}

	return rev, nil
}

// Response is the wire form of a processed review.
type Response struct {
	Review ResponseReview `json:"review"`
}

// ResponseReview carries the identity and verdict of one review.
type ResponseReview struct {
	ID         string `json:"id"`
	ReceivedAt string `json:"received_at"`
	ActTotal   int    `json:"act_total"`
	triage.TriageResult
}

// NewResponse builds the wire response for rev.
func NewResponse(rev Review) Response {
	return Response{
		Review: ResponseReview{
			ID:           rev.ID.String(),
			ReceivedAt:   rev.ReceivedAt.UTC().Format(time.RFC3339),
			ActTotal:     rev.Input.ActTotal,
			TriageResult: rev.Result,
		},
	}
}
