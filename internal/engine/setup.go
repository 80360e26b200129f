package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// feeSavepoint guards the optional fee-structure stage inside the group
// transaction: a failed statement there must not poison the mandatory
// stages already executed.
const feeSavepoint = "optional_fees"

// SetupEngine runs unified setup uploads: one file where a single row may
// carry school, branch, class, academic year, section and fee structure
// columns at once. Rows are grouped by school code; each group is one
// transaction walking the PENDING -> IN_PROGRESS -> {COMMITTED |
// ROLLED_BACK} state machine. A failure in a mandatory stage rolls back
// the group and the run moves on to the next one.
type SetupEngine struct {
	db  DB
	cfg DeriveConfig
	log *slog.Logger
}

// NewSetupEngine wires a setup engine over the store.
func NewSetupEngine(db DB, cfg DeriveConfig, log *slog.Logger) *SetupEngine {
	if log == nil {
		log = slog.Default()
	}
	return &SetupEngine{db: db, cfg: cfg, log: log}
}

// Run reconciles the full row set of one upload and returns the summary.
// Only an empty upload is an outright error; everything else is reported
// through the summary's counts, errors and warnings.
func (e *SetupEngine) Run(ctx context.Context, rows []Row) (*SetupReport, error) {
	if len(rows) == 0 {
		return nil, validationErr("upload", "no records found")
	}

	report := NewSetupReport(len(rows))
	groups, skipped := GroupBySchool(rows)
	if skipped > 0 {
		report.AddError("", fmt.Errorf("%d row(s) without school_code were not processed", skipped))
	}

	for _, g := range groups {
		e.processGroup(ctx, g, report)
	}

	report.Success = len(report.Errors) == 0
	return report, nil
}

func (e *SetupEngine) processGroup(ctx context.Context, g Group, report *SetupReport) {
	state := GroupPending
	log := e.log.With("school", g.Code)

	tx, err := e.db.Begin(ctx)
	if err != nil {
		report.AddError(g.Code, err)
		log.Error("group failed before start", "state", state, "error", err)
		return
	}
	state = GroupInProgress

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	fail := func(stage string, err error) {
		state = GroupRolledBack
		report.AddError(g.Code, fmt.Errorf("%s: %w", stage, err))
		log.Error("group rolled back", "state", state, "stage", stage, "error", err)
	}

	// Mandatory stages, in dependency order. Any error aborts the group.
	schoolID, err := e.schoolStage(ctx, tx, g.Rows[0])
	if err != nil {
		fail("school", err)
		return
	}
	report.Schools++

	branchMap, err := e.branchStage(ctx, tx, schoolID, g.Rows)
	if err != nil {
		fail("branches", err)
		return
	}
	report.Branches += len(branchMap)

	classMap, err := e.classStage(ctx, tx, schoolID, g.Code, g.Rows, report)
	if err != nil {
		fail("classes", err)
		return
	}
	report.Classes += len(classMap)

	yearMap, yearStarts, err := e.yearStage(ctx, tx, schoolID, g.Rows)
	if err != nil {
		fail("academic years", err)
		return
	}
	report.AcademicYears += len(yearMap)

	sections, err := e.sectionStage(ctx, tx, schoolID, branchMap, classMap, yearMap, g.Rows)
	if err != nil {
		fail("sections", err)
		return
	}
	report.Sections += sections

	// Optional stage: fee structures are best-effort. A failure rolls back
	// to the savepoint and downgrades to a warning; the group still commits.
	if err := tx.Savepoint(ctx, feeSavepoint); err != nil {
		fail("fee structures", err)
		return
	}
	fees, feeErr := e.feeStage(ctx, tx, schoolID, g.Code, classMap, yearMap, yearStarts, g.Rows, report)
	if feeErr != nil {
		if err := tx.RollbackTo(ctx, feeSavepoint); err != nil {
			fail("fee structures", err)
			return
		}
		report.AddWarning(fmt.Sprintf("school %s: fee structures skipped: %v", g.Code, feeErr))
		log.Warn("optional fee stage failed", "error", feeErr)
	} else {
		report.FeeStructures += fees
	}

	if err := tx.Commit(ctx); err != nil {
		fail("commit", err)
		return
	}
	committed = true
	state = GroupCommitted
	log.Info("group committed",
		"state", state,
		"branches", len(branchMap),
		"classes", len(classMap),
		"years", len(yearMap),
		"sections", sections,
	)
}

// schoolStage upserts the school from the group's first row.
func (e *SetupEngine) schoolStage(ctx context.Context, st Store, row Row) (int64, error) {
	rec := SchoolRecord{
		Code:              row.Get("school_code"),
		Name:              row.Get("school_name"),
		AddressLine1:      row.Get("school_address_line1", "address_line1"),
		AddressLine2:      row.Get("school_address_line2", "address_line2"),
		City:              row.Get("city"),
		State:             row.Get("state"),
		Pincode:           row.Get("school_pincode", "pincode"),
		Phone:             row.Get("school_phone", "phone"),
		Email:             row.Get("school_email", "email"),
		Website:           row.Get("school_website", "website"),
		BoardType:         normalizeUpper(row.Get("board_type"), "CBSE"),
		SessionStartMonth: row.Int(4, "academic_session_start_month"),
		GradingSystem:     normalizeUpper(row.Get("grading_system"), "PERCENTAGE"),
		AffiliationNumber: row.Get("affiliation_number"),
		RecognitionStatus: row.Get("recognition_status"),
		RTECompliance:     row.BoolDefaultTrue("rte_compliance"),
		Active:            row.BoolDefaultTrue("school_is_active"),
	}
	if rec.RecognitionStatus == "" {
		rec.RecognitionStatus = "RECOGNIZED"
	}
	if rec.Name == "" {
		return 0, validationErr("school", "school_name is required")
	}
	if rec.City == "" || rec.State == "" {
		return 0, validationErr("school", "city and state are required")
	}
	return st.UpsertSchool(ctx, rec)
}

// branchStage upserts every distinct branch code in the group. Rows
// without a branch code simply do not describe a branch.
func (e *SetupEngine) branchStage(ctx context.Context, st Store, schoolID int64, rows []Row) (map[string]int64, error) {
	branchMap := make(map[string]int64)
	for _, row := range rows {
		code := row.Get("branch_code")
		if code == "" {
			continue
		}
		if _, done := branchMap[code]; done {
			continue
		}
		rec := BranchRecord{
			SchoolID:        schoolID,
			Code:            code,
			Name:            row.Get("branch_name"),
			AddressLine1:    row.Get("branch_address_line1"),
			City:            row.Get("branch_city", "city"),
			State:           row.Get("branch_state", "state"),
			Pincode:         row.Get("branch_pincode", "school_pincode", "pincode"),
			Phone:           row.Get("branch_phone"),
			IsMain:          row.Bool("is_main_branch"),
			MaxStudents:     row.Int(1000, "branch_max_students"),
			CurrentStudents: row.Int(0, "branch_current_students"),
			Active:          row.BoolDefaultTrue("branch_is_active"),
		}
		if rec.Name == "" {
			rec.Name = "Branch " + code
		}
		id, err := st.UpsertBranch(ctx, rec)
		if err != nil {
			return nil, err
		}
		branchMap[code] = id
	}
	return branchMap, nil
}

// classStage upserts every distinct class name in the group. Unknown
// categories default to the configured fallback with a warning; that never
// aborts the row.
func (e *SetupEngine) classStage(ctx context.Context, st Store, schoolID int64, schoolCode string, rows []Row, report *SetupReport) (map[string]int64, error) {
	classMap := make(map[string]int64)
	for _, row := range rows {
		name := row.Get("class_name")
		if name == "" {
			continue
		}
		if _, done := classMap[name]; done {
			continue
		}

		rawCategory := row.Get("class_category")
		category, defaulted := e.cfg.NormalizeCategory(rawCategory)
		if defaulted {
			report.AddWarning(fmt.Sprintf(
				"school %s class %s: unknown category %q defaulted to %s",
				schoolCode, name, rawCategory, category))
		}

		rec := ClassRecord{
			SchoolID:              schoolID,
			Name:                  name,
			Order:                 row.Int(0, "class_order"),
			Category:              category,
			Subjects:              SplitList(row.Get("subjects")),
			PassingPercentage:     row.Float(35.0, "passing_percentage"),
			MaxStudentsPerSection: row.Int(40, "max_students_per_section"),
			Active:                row.BoolDefaultTrue("class_is_active"),
		}
		id, err := st.UpsertClass(ctx, rec)
		if err != nil {
			return nil, err
		}
		classMap[name] = id
	}
	return classMap, nil
}

// yearStage upserts every distinct academic year. A group that describes
// no academic year at all cannot anchor sections or fees and is an error.
func (e *SetupEngine) yearStage(ctx context.Context, st Store, schoolID int64, rows []Row) (map[string]int64, map[string]time.Time, error) {
	yearMap := make(map[string]int64)
	yearStarts := make(map[string]time.Time)
	for _, row := range rows {
		name := row.Get("year_name")
		if name == "" {
			continue
		}
		if _, done := yearMap[name]; done {
			continue
		}
		rec := AcademicYearRecord{
			SchoolID:  schoolID,
			Name:      name,
			StartDate: row.DateOr(defaultYearStart, "year_start_date", "start_date"),
			EndDate:   row.DateOr(defaultYearEnd, "year_end_date", "end_date"),
			IsCurrent: row.Bool("is_current_year", "is_current"),
		}
		id, err := st.UpsertAcademicYear(ctx, rec)
		if err != nil {
			return nil, nil, err
		}
		yearMap[name] = id
		yearStarts[name] = rec.StartDate
	}
	if len(yearMap) == 0 {
		return nil, nil, validationErr("academic_year", "no academic years in group")
	}
	return yearMap, yearStarts, nil
}

// sectionStage upserts sections for rows that name a class, year and
// section. Rows referencing a class or year absent from this group do not
// describe a resolvable section and are skipped.
func (e *SetupEngine) sectionStage(ctx context.Context, st Store, schoolID int64, branchMap, classMap, yearMap map[string]int64, rows []Row) (int, error) {
	count := 0
	done := make(map[string]bool)
	for _, row := range rows {
		className := row.Get("class_name")
		yearName := row.Get("year_name")
		sectionName := row.Get("section_name")
		if className == "" || yearName == "" || sectionName == "" {
			continue
		}
		classID, okC := classMap[className]
		yearID, okY := yearMap[yearName]
		if !okC || !okY {
			continue
		}
		key := fmt.Sprintf("%d/%d/%s", classID, yearID, sectionName)
		if done[key] {
			continue
		}

		var branchID *int64
		if code := row.Get("branch_code"); code != "" {
			if id, ok := branchMap[code]; ok {
				branchID = &id
			}
		}

		rec := SectionRecord{
			SchoolID:        schoolID,
			BranchID:        branchID,
			ClassID:         classID,
			YearID:          yearID,
			Name:            sectionName,
			MaxStudents:     row.Int(row.Int(40, "max_students_per_section"), "section_max_students"),
			CurrentStudents: row.Int(0, "section_current_students"),
			Active:          row.BoolDefaultTrue("section_is_active"),
		}
		if _, err := st.UpsertSection(ctx, rec); err != nil {
			return count, err
		}
		done[key] = true
		count++
	}
	return count, nil
}

// feeStage upserts fee structures with derived component splits and
// installment plans. Rows with a missing or invalid total fee get a
// warning and are skipped; only store failures abort the stage (and the
// caller downgrades even those to a group warning).
func (e *SetupEngine) feeStage(ctx context.Context, st Store, schoolID int64, schoolCode string, classMap, yearMap map[string]int64, yearStarts map[string]time.Time, rows []Row, report *SetupReport) (int, error) {
	count := 0
	done := make(map[string]bool)
	for _, row := range rows {
		className := row.Get("class_name")
		yearName := row.Get("year_name")
		if className == "" || yearName == "" || !row.Has("total_annual_fee") {
			continue
		}
		classID, okC := classMap[className]
		yearID, okY := yearMap[yearName]
		if !okC || !okY {
			continue
		}

		name := row.Get("fee_structure_name")
		if name == "" {
			name = fmt.Sprintf("%s-%s-Fee", className, yearName)
		}
		key := fmt.Sprintf("%d/%d/%s", classID, yearID, name)
		if done[key] {
			continue
		}

		total, err := ParseFee("total_annual_fee", row.Get("total_annual_fee"))
		if err != nil {
			report.AddWarning(fmt.Sprintf("school %s fee structure %s: %v", schoolCode, name, err))
			continue
		}

		yearStart := yearStarts[yearName]
		rec := FeeStructureRecord{
			SchoolID:       schoolID,
			ClassID:        classID,
			YearID:         yearID,
			Name:           name,
			TotalAnnualFee: total,
			Components:     e.cfg.SplitFee(total),
			Installments:   e.cfg.InstallmentPlan(total, yearStart, explicitDueDates(row, e.cfg.InstallmentCount)),
			EffectiveFrom:  row.DateOr(yearStart, "fee_effective_from"),
			EffectiveTo:    row.Date("fee_effective_to", "year_end_date", "end_date"),
			Active:         row.BoolDefaultTrue("fee_is_active"),
		}
		if _, err := st.UpsertFeeStructure(ctx, rec); err != nil {
			return count, err
		}
		done[key] = true
		count++
	}
	return count, nil
}

// explicitDueDates collects installment_N_due_date overrides from a row.
// Positions without an override stay zero and fall back to the computed
// schedule.
func explicitDueDates(row Row, n int) []time.Time {
	var dates []time.Time
	for i := 1; i <= n; i++ {
		col := fmt.Sprintf("installment_%d_due_date", i)
		if !row.Has(col) {
			dates = append(dates, time.Time{})
			continue
		}
		t, ok := ParseDate(row.Get(col))
		if !ok {
			t = time.Time{}
		}
		dates = append(dates, t)
	}
	// All zero means no overrides at all.
	for _, d := range dates {
		if !d.IsZero() {
			return dates
		}
	}
	return nil
}

// Academic year bounds used when the upload omits dates, matching the
// session the templates ship with.
var (
	defaultYearStart = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	defaultYearEnd   = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
)

func normalizeUpper(s, def string) string {
	if s == "" {
		return def
	}
	return strings.ToUpper(s)
}
