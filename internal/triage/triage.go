package triage

import "strings"

// Findings emitted by the rule table. Downstream consumers match on these
// exact strings.
const (
	FindingACTVeryPoor      = "ACT ≤15 (very poor control)"
	FindingACTSuboptimal    = "ACT 16–19 (suboptimal control)"
	FindingDaytime3to6      = "Daytime symptoms 3–6 days/week"
	FindingDaytimeDaily     = "Daytime symptoms every day"
	FindingNightLEQ1        = "Night waking ≤1/week"
	FindingNightMost        = "Night waking most nights/frequent"
	FindingReliever3to6     = "Reliever use 3–6 days/week"
	FindingRelieverDaily    = "Reliever use daily / multiple times/day"
	FindingSteroidTablets   = "Steroid tablets in last 12 months"
	FindingAEAdmission      = "A&E attendance or hospital admission in last 12 months"
	FindingUrgentCareRepeat = "Urgent GP/OOH care ≥2 episodes"
	FindingUrgentCare       = "Urgent GP/OOH care in last 12 months"
	FindingPreventerMissing = "Preventer inhaler: No/Not sure"
	FindingMissesDoses      = "Often misses preventer doses"
	FindingTechniqueReview  = "Needs inhaler technique review"
	FindingSmoker           = "Current smoker/vaper"
	FindingMultipleTriggers = "Multiple triggers reported (≥3)"
	PreventerFindingPrefix  = "Preventer inhaler"
	NoteICSSafety           = "ICS safety rule applied"
	NoteOverReliance        = "Over-reliance rule applied"
)

const defaultUrgentCareEpisodes = 1

// Severity is the list a rule's finding is appended to.
type Severity string

const (
	SeverityAmber Severity = "AMBER"
	SeverityRed   Severity = "RED"
)

// Rule is one row of the atomic rule table.
type Rule struct {
	Severity Severity
	Finding  string
	Applies  func(ReviewInput) bool
}

// rules is evaluated top to bottom; list order feeds the overrides.
var rules = []Rule{
	{SeverityRed, FindingACTVeryPoor, func(in ReviewInput) bool { return in.ActTotal <= 15 }},
	{SeverityAmber, FindingACTSuboptimal, func(in ReviewInput) bool { return in.ActTotal > 15 && in.ActTotal <= 19 }},

	{SeverityAmber, FindingDaytime3to6, func(in ReviewInput) bool { return in.Tiers.Daytime == DaytimeD3to6 }},
	{SeverityRed, FindingDaytimeDaily, func(in ReviewInput) bool { return in.Tiers.Daytime == DaytimeDaily }},
	{SeverityAmber, FindingNightLEQ1, func(in ReviewInput) bool { return in.Tiers.Night == NightLEQ1 }},
	{SeverityRed, FindingNightMost, func(in ReviewInput) bool { return in.Tiers.Night == NightMost }},
	{SeverityAmber, FindingReliever3to6, func(in ReviewInput) bool { return in.Tiers.Saba == SabaD3to6 }},
	{SeverityRed, FindingRelieverDaily, func(in ReviewInput) bool { return in.Tiers.Saba == SabaDailyMulti }},

	{SeverityAmber, FindingSteroidTablets, func(in ReviewInput) bool { return in.Exacerbations.OCS12m }},
	{SeverityRed, FindingAEAdmission, func(in ReviewInput) bool { return in.Exacerbations.AE12m }},
	{SeverityRed, FindingUrgentCareRepeat, func(in ReviewInput) bool {
		return in.Exacerbations.UrgentCare12m && urgentCareEpisodes(in.Exacerbations) >= 2
	}},
	{SeverityAmber, FindingUrgentCare, func(in ReviewInput) bool {
		return in.Exacerbations.UrgentCare12m && urgentCareEpisodes(in.Exacerbations) < 2
	}},

	{SeverityAmber, FindingPreventerMissing, func(in ReviewInput) bool {
		return in.Preventer.Prescribed == PrescribedNo || in.Preventer.Prescribed == PrescribedUnsure
	}},
	{SeverityAmber, FindingMissesDoses, func(in ReviewInput) bool { return in.Preventer.Misses == MissesOften }},
	{SeverityAmber, FindingTechniqueReview, func(in ReviewInput) bool { return in.Preventer.Technique != TechniqueYes }},

	{SeverityAmber, FindingSmoker, func(in ReviewInput) bool { return in.Lifestyle.Smoking == SmokingYes }},
	{SeverityAmber, FindingMultipleTriggers, func(in ReviewInput) bool { return in.Lifestyle.TriggersCount >= 3 }},
}

// Rules returns a copy of the rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// ComputeActTotal sums the individual ACT item scores. Item count and
// per-item range are the caller's concern.
func ComputeActTotal(items []int) int {
	total := 0
	for _, v := range items {
		total += v
	}
	return total
}

// Triage evaluates every rule against the input and derives the escalation.
func Triage(input ReviewInput) TriageResult {
	amber := []string{}
	red := []string{}
	notes := []string{}

	for _, r := range rules {
		if !r.Applies(input) {
			continue
		}
		if r.Severity == SeverityRed {
			red = append(red, r.Finding)
		} else {
			amber = append(amber, r.Finding)
		}
	}

	escalation := baseline(amber, red)

	// Two or more amber findings without any red finding count as red.
	if len(red) == 0 && len(amber) >= 2 {
		escalation = EscalationRed
	}

	if hasPreventerFinding(amber) && len(amber) >= 1 {
		escalation = EscalationRed
		notes = append(notes, NoteICSSafety)
	}

	if HasOverReliance(input.ActTotal, input.Tiers.Saba) {
		escalation = EscalateOneLevel(escalation)
		notes = append(notes, NoteOverReliance)
	}

	return TriageResult{
		Escalation:    escalation,
		AmberTriggers: amber,
		RedTriggers:   red,
		Notes:         notes,
	}
}

// HasOverReliance reports poor control (ACT ≤19) combined with reliever use
// on three or more days a week.
func HasOverReliance(actTotal int, saba SabaTier) bool {
	return actTotal <= 19 && (saba == SabaD3to6 || saba == SabaDailyMulti)
}

// EscalateOneLevel moves GREEN→AMBER→RED. RED is absorbing.
func EscalateOneLevel(current Escalation) Escalation {
	if current == EscalationGreen {
		return EscalationAmber
	}
	return EscalationRed
}

func baseline(amber, red []string) Escalation {
	switch {
	case len(red) > 0:
		return EscalationRed
	case len(amber) > 0:
		return EscalationAmber
	default:
		return EscalationGreen
	}
}

func hasPreventerFinding(amber []string) bool {
	for _, f := range amber {
		if strings.HasPrefix(f, PreventerFindingPrefix) {
			return true
		}
	}
	return false
}

func urgentCareEpisodes(e Exacerbations) int {
	if e.UrgentCareCount12m == nil {
		return defaultUrgentCareEpisodes
	}
	return *e.UrgentCareCount12m
}
