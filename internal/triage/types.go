// Package triage contains the pure rule engine for asthma control reviews.
// This package has NO external dependencies (no MQTT, HTTP, OS, or clock).
// Every call to Triage is independent and safe for concurrent use.
package triage

import (
	"errors"
	"fmt"
)

// ErrUnknownValue is returned when decoding an enum value outside its domain.
var ErrUnknownValue = errors.New("unknown value")

// Escalation is the triage verdict.
type Escalation string

const (
	EscalationGreen Escalation = "GREEN"
	EscalationAmber Escalation = "AMBER"
	EscalationRed   Escalation = "RED"
)

// Escalations lists every level from lowest to highest.
var Escalations = []Escalation{EscalationGreen, EscalationAmber, EscalationRed}

// Rank orders escalation levels: GREEN=0, AMBER=1, RED=2.
// Unknown values rank below GREEN.
func (e Escalation) Rank() int {
	switch e {
	case EscalationGreen:
		return 0
	case EscalationAmber:
		return 1
	case EscalationRed:
		return 2
	default:
		return -1
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Escalation) UnmarshalText(b []byte) error {
	return decode(b, e, EscalationGreen, EscalationAmber, EscalationRed)
}

// DaytimeTier is how often daytime symptoms occur.
type DaytimeTier string

const (
	DaytimeLEQ2  DaytimeTier = "LEQ2"
	DaytimeD3to6 DaytimeTier = "D3_6"
	DaytimeDaily DaytimeTier = "DAILY"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DaytimeTier) UnmarshalText(b []byte) error {
	return decode(b, t, DaytimeLEQ2, DaytimeD3to6, DaytimeDaily)
}

// NightTier is how often the patient wakes at night with symptoms.
type NightTier string

const (
	NightNone NightTier = "NONE"
	NightLEQ1 NightTier = "LEQ1"
	NightMost NightTier = "MOST"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NightTier) UnmarshalText(b []byte) error {
	return decode(b, t, NightNone, NightLEQ1, NightMost)
}

// SabaTier is how often the reliever inhaler is used.
type SabaTier string

const (
	SabaLEQ2       SabaTier = "LEQ2"
	SabaD3to6      SabaTier = "D3_6"
	SabaDailyMulti SabaTier = "DAILY_MULTI"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SabaTier) UnmarshalText(b []byte) error {
	return decode(b, t, SabaLEQ2, SabaD3to6, SabaDailyMulti)
}

// Prescribed records whether a preventer inhaler is prescribed.
type Prescribed string

const (
	PrescribedYes    Prescribed = "YES"
	PrescribedNo     Prescribed = "NO"
	PrescribedUnsure Prescribed = "UNSURE"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Prescribed) UnmarshalText(b []byte) error {
	return decode(b, p, PrescribedYes, PrescribedNo, PrescribedUnsure)
}

// Misses records how often preventer doses are missed.
type Misses string

const (
	MissesNeverOccasionally Misses = "NEVER_OCC"
	MissesOften             Misses = "OFTEN"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Misses) UnmarshalText(b []byte) error {
	return decode(b, m, MissesNeverOccasionally, MissesOften)
}

// Technique records whether inhaler technique has been checked and is good.
type Technique string

const (
	TechniqueYes     Technique = "YES"
	TechniqueNotSure Technique = "NOT_SURE"
	TechniqueNo      Technique = "NO"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Technique) UnmarshalText(b []byte) error {
	return decode(b, t, TechniqueYes, TechniqueNotSure, TechniqueNo)
}

// Smoking is the patient's smoking or vaping status.
type Smoking string

const (
	SmokingNo  Smoking = "NO"
	SmokingYes Smoking = "YES"
	SmokingEx  Smoking = "EX"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Smoking) UnmarshalText(b []byte) error {
	return decode(b, s, SmokingNo, SmokingYes, SmokingEx)
}

// Tiers holds the three symptom frequency classifications.
type Tiers struct {
	Daytime DaytimeTier `json:"daytime"`
	Night   NightTier   `json:"night"`
	Saba    SabaTier    `json:"saba"`
}

// Exacerbations records events in the last 12 months.
type Exacerbations struct {
	OCS12m        bool `json:"ocs_12m"`
	AE12m         bool `json:"ae_12m"` // A&E attendance or admission
	UrgentCare12m bool `json:"urgent_care_12m"`
	// UrgentCareCount12m is only meaningful when UrgentCare12m is set.
	// nil means at least one episode, count unknown.
	UrgentCareCount12m *int `json:"urgent_care_count_12m,omitempty"`
}

// Preventer describes maintenance inhaler use.
type Preventer struct {
	Prescribed Prescribed `json:"prescribed"`
	Misses     Misses     `json:"misses"`
	Technique  Technique  `json:"technique"`
}

// Lifestyle holds smoking status and trigger exposure.
type Lifestyle struct {
	Smoking       Smoking `json:"smoking"`
	TriggersCount int     `json:"triggers_count"`
	FreeText      string  `json:"free_text,omitempty"` // not used by any rule
}

// ReviewInput is a fully populated questionnaire.
type ReviewInput struct {
	ActTotal      int           `json:"act_total"` // 5–25
	Tiers         Tiers         `json:"tiers"`
	Exacerbations Exacerbations `json:"exacerbations"`
	Preventer     Preventer     `json:"preventer"`
	Lifestyle     Lifestyle     `json:"lifestyle"`
}

// TriageResult is the verdict for one review.
type TriageResult struct {
	Escalation    Escalation `json:"escalation"`
	AmberTriggers []string   `json:"amber_triggers"`
	RedTriggers   []string   `json:"red_triggers"`
	Notes         []string   `json:"notes"`
}

func decode[T ~string](b []byte, dst *T, allowed ...T) error {
	v := T(b)
	for _, a := range allowed {
		if v == a {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrUnknownValue, string(b))
}
