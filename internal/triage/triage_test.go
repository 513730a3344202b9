package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bestCase returns a review that fires no rule.
func bestCase() ReviewInput {
	return ReviewInput{
		ActTotal: 22,
		Tiers:    Tiers{Daytime: DaytimeLEQ2, Night: NightNone, Saba: SabaLEQ2},
		Preventer: Preventer{
			Prescribed: PrescribedYes,
			Misses:     MissesNeverOccasionally,
			Technique:  TechniqueYes,
		},
		Lifestyle: Lifestyle{Smoking: SmokingNo},
	}
}

func intPtr(n int) *int { return &n }

func TestComputeActTotal(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		want  int
	}{
		{"empty", nil, 0},
		{"five items", []int{4, 4, 3, 5, 2}, 18},
		{"all max", []int{5, 5, 5, 5, 5}, 25},
		{"all min", []int{1, 1, 1, 1, 1}, 5},
		{"not range checked", []int{9, -2}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeActTotal(tt.items))
		})
	}
}

func TestScenarioAllBestCaseIsGreen(t *testing.T) {
	in := bestCase()
	in.ActTotal = 20

	got := Triage(in)

	assert.Equal(t, EscalationGreen, got.Escalation)
	assert.Empty(t, got.AmberTriggers)
	assert.Empty(t, got.RedTriggers)
	assert.Empty(t, got.Notes)
}

func TestScenarioTwoAmberWithOverReliance(t *testing.T) {
	in := bestCase()
	in.ActTotal = 18
	in.Tiers.Saba = SabaD3to6

	got := Triage(in)

	assert.Equal(t, []string{FindingACTSuboptimal, FindingReliever3to6}, got.AmberTriggers)
	assert.Empty(t, got.RedTriggers)
	assert.Equal(t, EscalationRed, got.Escalation)
	assert.Equal(t, []string{NoteOverReliance}, got.Notes)
	assert.NotContains(t, got.Notes, NoteICSSafety)
}

func TestScenarioPreventerNotPrescribed(t *testing.T) {
	in := bestCase()
	in.Preventer.Prescribed = PrescribedNo

	got := Triage(in)

	assert.Equal(t, []string{FindingPreventerMissing}, got.AmberTriggers)
	assert.Empty(t, got.RedTriggers)
	assert.Equal(t, EscalationRed, got.Escalation)
	assert.Equal(t, []string{NoteICSSafety}, got.Notes)
}

func TestScenarioUrgentCareCountDefaultsToOne(t *testing.T) {
	in := bestCase()
	in.Exacerbations.UrgentCare12m = true

	got := Triage(in)

	assert.Equal(t, []string{FindingUrgentCare}, got.AmberTriggers)
	assert.Empty(t, got.RedTriggers)
	assert.Equal(t, EscalationAmber, got.Escalation)
}

func TestScenarioAEAloneIsRed(t *testing.T) {
	in := bestCase()
	in.Exacerbations.AE12m = true

	got := Triage(in)

	assert.Empty(t, got.AmberTriggers)
	assert.Equal(t, []string{FindingAEAdmission}, got.RedTriggers)
	assert.Equal(t, EscalationRed, got.Escalation)
	assert.Empty(t, got.Notes)
}

func TestEachRuleInIsolation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ReviewInput)
		severity Severity
		finding  string
	}{
		{"act 15", func(in *ReviewInput) { in.ActTotal = 15 }, SeverityRed, FindingACTVeryPoor},
		{"act 5", func(in *ReviewInput) { in.ActTotal = 5 }, SeverityRed, FindingACTVeryPoor},
		{"act 16", func(in *ReviewInput) { in.ActTotal = 16 }, SeverityAmber, FindingACTSuboptimal},
		{"act 19", func(in *ReviewInput) { in.ActTotal = 19 }, SeverityAmber, FindingACTSuboptimal},
		{"daytime 3-6", func(in *ReviewInput) { in.Tiers.Daytime = DaytimeD3to6 }, SeverityAmber, FindingDaytime3to6},
		{"daytime daily", func(in *ReviewInput) { in.Tiers.Daytime = DaytimeDaily }, SeverityRed, FindingDaytimeDaily},
		{"night leq1", func(in *ReviewInput) { in.Tiers.Night = NightLEQ1 }, SeverityAmber, FindingNightLEQ1},
		{"night most", func(in *ReviewInput) { in.Tiers.Night = NightMost }, SeverityRed, FindingNightMost},
		{"saba 3-6", func(in *ReviewInput) { in.Tiers.Saba = SabaD3to6 }, SeverityAmber, FindingReliever3to6},
		{"saba daily", func(in *ReviewInput) { in.Tiers.Saba = SabaDailyMulti }, SeverityRed, FindingRelieverDaily},
		{"ocs", func(in *ReviewInput) { in.Exacerbations.OCS12m = true }, SeverityAmber, FindingSteroidTablets},
		{"a&e", func(in *ReviewInput) { in.Exacerbations.AE12m = true }, SeverityRed, FindingAEAdmission},
		{"urgent care x2", func(in *ReviewInput) {
			in.Exacerbations.UrgentCare12m = true
			in.Exacerbations.UrgentCareCount12m = intPtr(2)
		}, SeverityRed, FindingUrgentCareRepeat},
		{"urgent care x1", func(in *ReviewInput) {
			in.Exacerbations.UrgentCare12m = true
			in.Exacerbations.UrgentCareCount12m = intPtr(1)
		}, SeverityAmber, FindingUrgentCare},
		{"urgent care x0", func(in *ReviewInput) {
			in.Exacerbations.UrgentCare12m = true
			in.Exacerbations.UrgentCareCount12m = intPtr(0)
		}, SeverityAmber, FindingUrgentCare},
		{"preventer no", func(in *ReviewInput) { in.Preventer.Prescribed = PrescribedNo }, SeverityAmber, FindingPreventerMissing},
		{"preventer unsure", func(in *ReviewInput) { in.Preventer.Prescribed = PrescribedUnsure }, SeverityAmber, FindingPreventerMissing},
		{"misses often", func(in *ReviewInput) { in.Preventer.Misses = MissesOften }, SeverityAmber, FindingMissesDoses},
		{"technique not sure", func(in *ReviewInput) { in.Preventer.Technique = TechniqueNotSure }, SeverityAmber, FindingTechniqueReview},
		{"technique no", func(in *ReviewInput) { in.Preventer.Technique = TechniqueNo }, SeverityAmber, FindingTechniqueReview},
		{"smoker", func(in *ReviewInput) { in.Lifestyle.Smoking = SmokingYes }, SeverityAmber, FindingSmoker},
		{"triggers 3", func(in *ReviewInput) { in.Lifestyle.TriggersCount = 3 }, SeverityAmber, FindingMultipleTriggers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bestCase()
			tt.mutate(&in)
			got := Triage(in)

			if tt.severity == SeverityRed {
				assert.Equal(t, []string{tt.finding}, got.RedTriggers)
				assert.Empty(t, got.AmberTriggers)
			} else {
				assert.Equal(t, []string{tt.finding}, got.AmberTriggers)
				assert.Empty(t, got.RedTriggers)
			}
		})
	}
}

func TestNonFiringValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReviewInput)
	}{
		{"act 20", func(in *ReviewInput) { in.ActTotal = 20 }},
		{"act 25", func(in *ReviewInput) { in.ActTotal = 25 }},
		{"ex smoker", func(in *ReviewInput) { in.Lifestyle.Smoking = SmokingEx }},
		{"two triggers", func(in *ReviewInput) { in.Lifestyle.TriggersCount = 2 }},
		{"count without flag", func(in *ReviewInput) { in.Exacerbations.UrgentCareCount12m = intPtr(4) }},
		{"free text", func(in *ReviewInput) { in.Lifestyle.FreeText = "cold air, pollen" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bestCase()
			tt.mutate(&in)
			got := Triage(in)
			assert.Equal(t, EscalationGreen, got.Escalation)
			assert.Empty(t, got.AmberTriggers)
			assert.Empty(t, got.RedTriggers)
		})
	}
}

func TestOutOfDomainValuesEvaluateNaturally(t *testing.T) {
	in := bestCase()
	in.ActTotal = 3
	in.Preventer.Technique = Technique("MAYBE")
	in.Lifestyle.TriggersCount = -1

	got := Triage(in)

	assert.Equal(t, []string{FindingACTVeryPoor}, got.RedTriggers)
	assert.Equal(t, []string{FindingTechniqueReview}, got.AmberTriggers)
	assert.Equal(t, EscalationRed, got.Escalation)
}

func TestFindingOrderFollowsRuleTable(t *testing.T) {
	in := ReviewInput{
		ActTotal: 17,
		Tiers:    Tiers{Daytime: DaytimeD3to6, Night: NightMost, Saba: SabaDailyMulti},
		Exacerbations: Exacerbations{
			OCS12m:             true,
			AE12m:              true,
			UrgentCare12m:      true,
			UrgentCareCount12m: intPtr(3),
		},
		Preventer: Preventer{Prescribed: PrescribedUnsure, Misses: MissesOften, Technique: TechniqueNo},
		Lifestyle: Lifestyle{Smoking: SmokingYes, TriggersCount: 5},
	}

	got := Triage(in)

	assert.Equal(t, []string{
		FindingACTSuboptimal,
		FindingDaytime3to6,
		FindingSteroidTablets,
		FindingPreventerMissing,
		FindingMissesDoses,
		FindingTechniqueReview,
		FindingSmoker,
		FindingMultipleTriggers,
	}, got.AmberTriggers)
	assert.Equal(t, []string{
		FindingNightMost,
		FindingRelieverDaily,
		FindingAEAdmission,
		FindingUrgentCareRepeat,
	}, got.RedTriggers)
	assert.Equal(t, EscalationRed, got.Escalation)
	assert.Equal(t, []string{NoteICSSafety, NoteOverReliance}, got.Notes)
}

func TestICSNoteAppendedEvenWhenAlreadyRed(t *testing.T) {
	in := bestCase()
	in.Exacerbations.AE12m = true
	in.Preventer.Prescribed = PrescribedUnsure

	got := Triage(in)

	assert.Equal(t, EscalationRed, got.Escalation)
	assert.Equal(t, []string{NoteICSSafety}, got.Notes)
}

func TestOverRelianceOnlySeesRed(t *testing.T) {
	// ACT ≤19 and reliever use ≥3 days both fire findings, so by the time the
	// over-reliance step runs the level is already RED.
	in := bestCase()
	in.ActTotal = 19
	got := Triage(in)
	require.Equal(t, EscalationAmber, got.Escalation)
	assert.Empty(t, got.Notes)

	in.Tiers.Saba = SabaD3to6
	got = Triage(in)
	assert.Equal(t, EscalationRed, got.Escalation)
	assert.Equal(t, []string{NoteOverReliance}, got.Notes)

	in.ActTotal = 10
	in.Tiers.Saba = SabaDailyMulti
	got = Triage(in)
	assert.Equal(t, EscalationRed, got.Escalation)
	assert.Equal(t, []string{NoteOverReliance}, got.Notes)
}

func TestHasOverReliance(t *testing.T) {
	tests := []struct {
		act  int
		saba SabaTier
		want bool
	}{
		{19, SabaD3to6, true},
		{19, SabaDailyMulti, true},
		{5, SabaD3to6, true},
		{20, SabaD3to6, false},
		{20, SabaDailyMulti, false},
		{10, SabaLEQ2, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasOverReliance(tt.act, tt.saba), "act=%d saba=%s", tt.act, tt.saba)
	}
}

func TestEscalateOneLevel(t *testing.T) {
	assert.Equal(t, EscalationAmber, EscalateOneLevel(EscalationGreen))
	assert.Equal(t, EscalationRed, EscalateOneLevel(EscalationAmber))
	assert.Equal(t, EscalationRed, EscalateOneLevel(EscalationRed))

	for _, e := range Escalations {
		assert.GreaterOrEqual(t, EscalateOneLevel(e).Rank(), e.Rank(), "escalating %s", e)
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	table := Rules()
	require.Len(t, table, 17)
	table[0].Finding = "changed"

	assert.Equal(t, FindingACTVeryPoor, Rules()[0].Finding)
}

func TestRuleFindingsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Rules() {
		assert.False(t, seen[r.Finding], "duplicate finding %q", r.Finding)
		seen[r.Finding] = true
	}
}

// forEachInput walks a grid covering every enum value and every threshold edge.
func forEachInput(fn func(ReviewInput)) {
	acts := []int{5, 15, 16, 19, 20, 25}
	counts := []*int{nil, intPtr(0), intPtr(2)}
	bools := []bool{false, true}

	for _, act := range acts {
		for _, day := range []DaytimeTier{DaytimeLEQ2, DaytimeD3to6, DaytimeDaily} {
			for _, night := range []NightTier{NightNone, NightLEQ1, NightMost} {
				for _, saba := range []SabaTier{SabaLEQ2, SabaD3to6, SabaDailyMulti} {
					for _, ocs := range bools {
						for _, ae := range bools {
							for _, urgent := range bools {
								for _, count := range counts {
									for _, pres := range []Prescribed{PrescribedYes, PrescribedNo, PrescribedUnsure} {
										for _, misses := range []Misses{MissesNeverOccasionally, MissesOften} {
											for _, tech := range []Technique{TechniqueYes, TechniqueNotSure, TechniqueNo} {
												for _, smoke := range []Smoking{SmokingNo, SmokingYes, SmokingEx} {
													for _, triggers := range []int{0, 3} {
														fn(ReviewInput{
															ActTotal: act,
															Tiers:    Tiers{Daytime: day, Night: night, Saba: saba},
															Exacerbations: Exacerbations{
																OCS12m:             ocs,
																AE12m:              ae,
																UrgentCare12m:      urgent,
																UrgentCareCount12m: count,
															},
															Preventer: Preventer{Prescribed: pres, Misses: misses, Technique: tech},
															Lifestyle: Lifestyle{Smoking: smoke, TriggersCount: triggers},
														})
													}
												}
											}
										}
									}
								}
							}
						}
					}
				}
			}
		}
	}
}

func TestPropertiesOverInputGrid(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping exhaustive grid in short mode")
	}

	forEachInput(func(in ReviewInput) {
		got := Triage(in)

		if len(got.RedTriggers) > 0 && got.Escalation == EscalationGreen {
			t.Fatalf("GREEN with red triggers: %+v", in)
		}
		if len(got.AmberTriggers) >= 2 && got.Escalation != EscalationRed {
			t.Fatalf("%s with %d amber triggers: %+v", got.Escalation, len(got.AmberTriggers), in)
		}

		b := baseline(got.AmberTriggers, got.RedTriggers)
		if got.Escalation.Rank() < b.Rank() {
			t.Fatalf("escalation %s below baseline %s: %+v", got.Escalation, b, in)
		}

		red := map[string]bool{}
		for _, f := range got.RedTriggers {
			red[f] = true
		}
		for _, f := range got.AmberTriggers {
			if red[f] {
				t.Fatalf("finding %q in both lists: %+v", f, in)
			}
		}

		if hasPreventerFinding(got.AmberTriggers) && got.Escalation != EscalationRed {
			t.Fatalf("preventer finding without RED: %+v", in)
		}
	})
}

func TestTriageIsDeterministic(t *testing.T) {
	in := bestCase()
	in.ActTotal = 17
	in.Tiers.Night = NightLEQ1
	in.Exacerbations.UrgentCare12m = true

	first := Triage(in)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Triage(in))
	}
}

func TestResultDoesNotAliasAcrossCalls(t *testing.T) {
	in := bestCase()
	in.Lifestyle.Smoking = SmokingYes

	a := Triage(in)
	a.AmberTriggers[0] = "mutated"

	b := Triage(in)
	assert.Equal(t, []string{FindingSmoker}, b.AmberTriggers)
}
