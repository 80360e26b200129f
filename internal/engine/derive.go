package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FeeComponents is the derived breakdown of a total annual fee. Stored as a
// JSON object on the fee structure row.
type FeeComponents struct {
	Tuition     decimal.Decimal `json:"tuition_fee"`
	Development decimal.Decimal `json:"development_fee"`
	Other       decimal.Decimal `json:"other_fees"`
}

// Installment is one entry of the derived installment plan. Stored as a
// JSON array on the fee structure row.
type Installment struct {
	Number  int             `json:"installment"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate string          `json:"due_date"`
}

// GradeBand maps a minimum percentage to a letter grade.
type GradeBand struct {
	Min   float64
	Grade string
}

// DeriveConfig holds every constant the derived-data calculator needs. The
// defaults match the production fee policy; tests override individual
// fields. All methods are pure: no I/O, no store access.
type DeriveConfig struct {
	// Fee component split ratios. Must sum to 1.
	TuitionRatio     decimal.Decimal
	DevelopmentRatio decimal.Decimal
	OtherRatio       decimal.Decimal

	// Installment plan shape: count, month offsets from the academic year
	// start, and the day of month each installment falls due.
	InstallmentCount        int
	InstallmentMonthOffsets []int
	InstallmentDueDay       int

	// Class category normalization.
	Categories      []string          // canonical enumeration
	CategoryAliases map[string]string // normalized alias -> canonical
	DefaultCategory string            // fallback for unknown values

	// Letter grade thresholds, highest first.
	GradeBands []GradeBand
}

// DefaultDeriveConfig returns the production defaults: 70/20/10 fee split,
// four quarterly installments due on the 15th of months 1, 4, 7 and 10
// after the year start, CBSE-style class categories and the fixed grade
// scale.
func DefaultDeriveConfig() DeriveConfig {
	return DeriveConfig{
		TuitionRatio:     decimal.NewFromFloat(0.70),
		DevelopmentRatio: decimal.NewFromFloat(0.20),
		OtherRatio:       decimal.NewFromFloat(0.10),

		InstallmentCount:        4,
		InstallmentMonthOffsets: []int{1, 4, 7, 10},
		InstallmentDueDay:       15,

		Categories: []string{"PRE_PRIMARY", "PRIMARY", "MIDDLE", "SECONDARY", "SENIOR_SECONDARY"},
		CategoryAliases: map[string]string{
			"PREPRIMARY":      "PRE_PRIMARY",
			"SENIORSECONDARY": "SENIOR_SECONDARY",
		},
		DefaultCategory: "PRIMARY",

		GradeBands: []GradeBand{
			{90, "A+"},
			{80, "A"},
			{70, "B+"},
			{60, "B"},
			{50, "C"},
			{40, "D"},
			{0, "F"},
		},
	}
}

// ParseFee parses a fee amount string. Rejects non-numeric and negative
// values with KindInvalidInput.
func ParseFee(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, invalidInput(field, "not a number: "+raw)
	}
	if d.IsNegative() {
		return decimal.Zero, invalidInput(field, "negative amount: "+raw)
	}
	return d, nil
}

// SplitFee derives the component breakdown from a total annual fee.
// Amounts are rounded to two decimal places.
func (c DeriveConfig) SplitFee(total decimal.Decimal) FeeComponents {
	return FeeComponents{
		Tuition:     total.Mul(c.TuitionRatio).Round(2),
		Development: total.Mul(c.DevelopmentRatio).Round(2),
		Other:       total.Mul(c.OtherRatio).Round(2),
	}
}

// InstallmentPlan derives the installment schedule for a total annual fee.
// The total splits into equal parts, each due on InstallmentDueDay of the
// months offset from yearStart. Explicit due dates from the source override
// the computed ones positionally when provided.
func (c DeriveConfig) InstallmentPlan(total decimal.Decimal, yearStart time.Time, explicitDue []time.Time) []Installment {
	n := c.InstallmentCount
	if n <= 0 {
		return nil
	}
	amount := total.DivRound(decimal.NewFromInt(int64(n)), 2)
	plan := make([]Installment, n)
	for i := 0; i < n; i++ {
		due := dueDate(yearStart, c.offsetAt(i), c.InstallmentDueDay)
		if i < len(explicitDue) && !explicitDue[i].IsZero() {
			due = explicitDue[i]
		}
		plan[i] = Installment{
			Number:  i + 1,
			Amount:  amount,
			DueDate: due.Format("2006-01-02"),
		}
	}
	return plan
}

func (c DeriveConfig) offsetAt(i int) int {
	if i < len(c.InstallmentMonthOffsets) {
		return c.InstallmentMonthOffsets[i]
	}
	// Past the configured offsets, continue the quarterly cadence
	// starting one month after the year start.
	return i*3 + 1
}

func dueDate(yearStart time.Time, monthOffset, day int) time.Time {
	base := time.Date(yearStart.Year(), yearStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	base = base.AddDate(0, monthOffset, 0)
	return time.Date(base.Year(), base.Month(), day, 0, 0, 0, 0, time.UTC)
}

// NormalizeCategory maps a raw class category onto the canonical
// enumeration. Trim, upper-case and separator collapsing happen first, then
// the alias table. A value still outside the enumeration falls back to
// DefaultCategory; defaulted reports that so the caller can record the
// warning without aborting the row.
func (c DeriveConfig) NormalizeCategory(raw string) (category string, defaulted bool) {
	norm := normalizeCategoryKey(raw)
	if norm == "" {
		return c.DefaultCategory, false
	}
	if alias, ok := c.CategoryAliases[norm]; ok {
		norm = alias
	}
	for _, valid := range c.Categories {
		if norm == valid {
			return norm, false
		}
	}
	return c.DefaultCategory, true
}

// normalizeCategoryKey upper-cases and collapses runs of spaces, dashes and
// underscores. "pre primary", "PRE_PRIMARY" and "Pre-Primary" all map to
// "PRE_PRIMARY"; "PREPRIMARY" stays as-is for the alias table.
func normalizeCategoryKey(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '-' || r == '_' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// Percentage computes round(obtained/max*100, 2). Used by the marks-upload
// paths that share this engine's upsert pattern.
func (c DeriveConfig) Percentage(obtained, max float64) (float64, error) {
	if max <= 0 {
		return 0, invalidInput("max_marks", "must be positive")
	}
	if obtained < 0 {
		return 0, invalidInput("obtained_marks", "must not be negative")
	}
	pct := decimal.NewFromFloat(obtained).
		Div(decimal.NewFromFloat(max)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	f, _ := pct.Float64()
	return f, nil
}

// Grade returns the letter grade for a percentage. Like Percentage it
// exists for the marks-upload paths built on this calculator; no import
// path in this service computes grades itself.
func (c DeriveConfig) Grade(percentage float64) string {
	for _, band := range c.GradeBands {
		if percentage >= band.Min {
			return band.Grade
		}
	}
	if len(c.GradeBands) == 0 {
		return ""
	}
	return c.GradeBands[len(c.GradeBands)-1].Grade
}
