package engine

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// Fee Split Tests
// ----------------------------------------------------------------------------

func TestSplitFee(t *testing.T) {
	cfg := DefaultDeriveConfig()

	tests := []struct {
		name        string
		total       string
		tuition     string
		development string
		other       string
	}{
		{
			name:        "round total",
			total:       "12000",
			tuition:     "8400",
			development: "2400",
			other:       "1200",
		},
		{
			name:        "fractional components round to two places",
			total:       "10001",
			tuition:     "7000.7",
			development: "2000.2",
			other:       "1000.1",
		},
		{
			name:        "zero total",
			total:       "0",
			tuition:     "0",
			development: "0",
			other:       "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, err := ParseFee("total_annual_fee", tt.total)
			if err != nil {
				t.Fatalf("ParseFee(%q): %v", tt.total, err)
			}
			got := cfg.SplitFee(total)
			if got.Tuition.String() != tt.tuition {
				t.Errorf("tuition = %s, want %s", got.Tuition, tt.tuition)
			}
			if got.Development.String() != tt.development {
				t.Errorf("development = %s, want %s", got.Development, tt.development)
			}
			if got.Other.String() != tt.other {
				t.Errorf("other = %s, want %s", got.Other, tt.other)
			}
		})
	}
}

func TestParseFeeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"non-numeric", "twelve thousand"},
		{"negative", "-500"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFee("total_annual_fee", tt.input)
			if err == nil {
				t.Fatalf("ParseFee(%q) succeeded, want error", tt.input)
			}
			if !IsKind(err, KindInvalidInput) {
				t.Errorf("kind = %s, want %s", KindOf(err), KindInvalidInput)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Installment Plan Tests
// ----------------------------------------------------------------------------

func TestInstallmentPlan(t *testing.T) {
	cfg := DefaultDeriveConfig()
	yearStart := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	total, _ := ParseFee("total_annual_fee", "12000")
	plan := cfg.InstallmentPlan(total, yearStart, nil)

	if len(plan) != 4 {
		t.Fatalf("len(plan) = %d, want 4", len(plan))
	}
	// An April-start year collects May 15, Aug 15, Nov 15 and Feb 15.
	wantDue := []string{"2024-05-15", "2024-08-15", "2024-11-15", "2025-02-15"}
	for i, inst := range plan {
		if inst.Number != i+1 {
			t.Errorf("plan[%d].Number = %d, want %d", i, inst.Number, i+1)
		}
		if inst.Amount.String() != "3000" {
			t.Errorf("plan[%d].Amount = %s, want 3000", i, inst.Amount)
		}
		if inst.DueDate != wantDue[i] {
			t.Errorf("plan[%d].DueDate = %s, want %s", i, inst.DueDate, wantDue[i])
		}
	}
}

func TestInstallmentPlanExplicitDueDates(t *testing.T) {
	cfg := DefaultDeriveConfig()
	yearStart := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	total, _ := ParseFee("total_annual_fee", "8000")

	// Override only the second installment; the rest keep the schedule.
	explicit := []time.Time{
		{},
		time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		{},
		{},
	}
	plan := cfg.InstallmentPlan(total, yearStart, explicit)

	if plan[0].DueDate != "2024-05-15" {
		t.Errorf("plan[0].DueDate = %s, want 2024-05-15", plan[0].DueDate)
	}
	if plan[1].DueDate != "2024-08-01" {
		t.Errorf("plan[1].DueDate = %s, want 2024-08-01", plan[1].DueDate)
	}
	if plan[2].DueDate != "2024-11-15" {
		t.Errorf("plan[2].DueDate = %s, want 2024-11-15", plan[2].DueDate)
	}
}

func TestInstallmentPlanMidMonthYearStart(t *testing.T) {
	cfg := DefaultDeriveConfig()
	// A year starting June 20 still collects on the 15th of the offset months.
	yearStart := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	total, _ := ParseFee("total_annual_fee", "1000")

	plan := cfg.InstallmentPlan(total, yearStart, nil)
	if plan[0].DueDate != "2024-07-15" {
		t.Errorf("plan[0].DueDate = %s, want 2024-07-15", plan[0].DueDate)
	}
	if plan[3].DueDate != "2025-04-15" {
		t.Errorf("plan[3].DueDate = %s, want 2025-04-15", plan[3].DueDate)
	}
}

func TestInstallmentPlanExtendsPastConfiguredOffsets(t *testing.T) {
	// Six installments with only four offsets configured: the tail keeps
	// the quarterly cadence, one month after the year start.
	cfg := DefaultDeriveConfig()
	cfg.InstallmentCount = 6
	yearStart := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	total, _ := ParseFee("total_annual_fee", "6000")

	plan := cfg.InstallmentPlan(total, yearStart, nil)
	if len(plan) != 6 {
		t.Fatalf("len(plan) = %d, want 6", len(plan))
	}
	if plan[4].DueDate != "2025-05-15" {
		t.Errorf("plan[4].DueDate = %s, want 2025-05-15", plan[4].DueDate)
	}
	if plan[5].DueDate != "2025-08-15" {
		t.Errorf("plan[5].DueDate = %s, want 2025-08-15", plan[5].DueDate)
	}
}

// ----------------------------------------------------------------------------
// Category Normalization Tests
// ----------------------------------------------------------------------------

func TestNormalizeCategory(t *testing.T) {
	cfg := DefaultDeriveConfig()

	tests := []struct {
		name          string
		input         string
		want          string
		wantDefaulted bool
	}{
		{"canonical passes through", "PRIMARY", "PRIMARY", false},
		{"lower case", "secondary", "SECONDARY", false},
		{"spaces collapse", "pre primary", "PRE_PRIMARY", false},
		{"dashes collapse", "Pre-Primary", "PRE_PRIMARY", false},
		{"alias without separator", "PREPRIMARY", "PRE_PRIMARY", false},
		{"senior secondary alias", "SENIORSECONDARY", "SENIOR_SECONDARY", false},
		{"unknown defaults", "KINDERGARTEN", "PRIMARY", true},
		{"empty defaults silently", "", "PRIMARY", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, defaulted := cfg.NormalizeCategory(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if defaulted != tt.wantDefaulted {
				t.Errorf("NormalizeCategory(%q) defaulted = %v, want %v", tt.input, defaulted, tt.wantDefaulted)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Percentage and Grade Tests
// ----------------------------------------------------------------------------

func TestPercentage(t *testing.T) {
	cfg := DefaultDeriveConfig()

	got, err := cfg.Percentage(47.5, 60)
	if err != nil {
		t.Fatalf("Percentage: %v", err)
	}
	if got != 79.17 {
		t.Errorf("Percentage(47.5, 60) = %v, want 79.17", got)
	}

	if _, err := cfg.Percentage(10, 0); !IsKind(err, KindInvalidInput) {
		t.Errorf("zero max: kind = %s, want %s", KindOf(err), KindInvalidInput)
	}
	if _, err := cfg.Percentage(-1, 100); !IsKind(err, KindInvalidInput) {
		t.Errorf("negative obtained: kind = %s, want %s", KindOf(err), KindInvalidInput)
	}
}

func TestGrade(t *testing.T) {
	cfg := DefaultDeriveConfig()

	tests := []struct {
		pct  float64
		want string
	}{
		{95, "A+"},
		{90, "A+"},
		{89.99, "A"},
		{75, "B+"},
		{60, "B"},
		{50, "C"},
		{40, "D"},
		{39.99, "F"},
		{0, "F"},
	}

	for _, tt := range tests {
		if got := cfg.Grade(tt.pct); got != tt.want {
			t.Errorf("Grade(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}
