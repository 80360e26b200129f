package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// importEnv is what one table importer runs against: the open transaction,
// a resolver scoped to it, and the derived-data configuration.
type importEnv struct {
	store Store
	res   *Resolver
	cfg   DeriveConfig
	log   *slog.Logger
}

// importFunc imports rows of one source table and returns how many it
// processed. Rows missing their natural key are skipped; an unresolvable
// required ancestor is an error and rolls back the whole migration.
type importFunc func(ctx context.Context, env importEnv, rows []Row) (int, error)

var (
	importers   = make(map[string]importFunc)
	importOrder []string
)

// registerImporter adds a table importer. Registration order is the
// dependency order used for workbook runs. Panics on a duplicate name.
func registerImporter(table string, fn importFunc) {
	if _, exists := importers[table]; exists {
		panic(fmt.Sprintf("importer already registered: %s", table))
	}
	importers[table] = fn
	importOrder = append(importOrder, table)
}

func init() {
	registerImporter("schools", importSchools)
	registerImporter("branches", importBranches)
	registerImporter("academic_years", importAcademicYears)
	registerImporter("classes", importClasses)
	registerImporter("sections", importSections)
	registerImporter("parents", importParents)
	registerImporter("students", importStudents)
	registerImporter("parent_student_relationships", importRelationships)
	registerImporter("student_enrollments", importEnrollments)
	registerImporter("fee_structures", importFeeStructures)
	registerImporter("student_fee_assignments", importFeeAssignments)
	registerImporter("fee_payments", importFeePayments)
	registerImporter("users", importUsers)
	registerImporter("teacher_assignments", importTeacherAssignments)
}

// Tables returns the supported table names in dependency order.
func Tables() []string {
	out := make([]string, len(importOrder))
	copy(out, importOrder)
	return out
}

// NormalizeTableName canonicalizes a caller-supplied table or sheet name so
// "Academic Years", "ACADEMIC_YEARS" and "academic-years" all address the
// same importer.
func NormalizeTableName(s string) string {
	return NormalizeHeader(s)
}

// MigrationEngine runs per-table imports: a whole workbook (one sheet per
// table) or a single CSV against a named table. Either way the run is one
// transaction; any importer error rolls everything back.
type MigrationEngine struct {
	db  DB
	cfg DeriveConfig
	log *slog.Logger
}

// NewMigrationEngine wires a migration engine over the store.
func NewMigrationEngine(db DB, cfg DeriveConfig, log *slog.Logger) *MigrationEngine {
	if log == nil {
		log = slog.Default()
	}
	return &MigrationEngine{db: db, cfg: cfg, log: log}
}

// RunWorkbook imports every recognized sheet of a workbook in dependency
// order, regardless of sheet order in the file. Unknown sheets are logged
// and skipped; empty sheets are skipped silently.
func (e *MigrationEngine) RunWorkbook(ctx context.Context, sheets []Sheet) (MigrationSummary, error) {
	byTable := make(map[string][]Row, len(sheets))
	for _, sh := range sheets {
		norm := NormalizeTableName(sh.Name)
		if _, known := importers[norm]; !known {
			e.log.Info("skipping unknown sheet", "sheet", sh.Name)
			continue
		}
		byTable[norm] = append(byTable[norm], sh.Rows...)
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	env := importEnv{store: tx, res: NewResolver(tx), cfg: e.cfg, log: e.log}
	summary := make(MigrationSummary)
	for _, table := range importOrder {
		rows, ok := byTable[table]
		if !ok || len(rows) == 0 {
			continue
		}
		e.log.Info("importing sheet", "table", table, "rows", len(rows))
		n, err := importers[table](ctx, env, rows)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", table, err)
		}
		summary[table] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true
	return summary, nil
}

// RunTable imports rows into one named table inside a single transaction.
func (e *MigrationEngine) RunTable(ctx context.Context, table string, rows []Row) (MigrationSummary, error) {
	norm := NormalizeTableName(table)
	fn, ok := importers[norm]
	if !ok {
		return nil, validationErr("table", fmt.Sprintf("unsupported table %q; supported: %s", table, strings.Join(Tables(), ", ")))
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	env := importEnv{store: tx, res: NewResolver(tx), cfg: e.cfg, log: e.log}
	n, err := fn(ctx, env, rows)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", norm, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true
	return MigrationSummary{norm: n}, nil
}

// ---- per-table importers ----

func importSchools(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		code := row.Get("school_code")
		name := row.Get("school_name")
		if code == "" || name == "" {
			continue
		}
		rec := SchoolRecord{
			Code:              code,
			Name:              name,
			AddressLine1:      row.Get("address_line1", "school_address_line1"),
			AddressLine2:      row.Get("address_line2", "school_address_line2"),
			City:              row.Get("city", "school_city"),
			State:             row.Get("state", "school_state"),
			Pincode:           row.Get("pincode", "school_pincode"),
			Phone:             row.Get("phone", "school_phone"),
			Email:             row.Get("email", "school_email"),
			Website:           row.Get("website", "school_website"),
			BoardType:         normalizeUpper(row.Get("board_type"), "CBSE"),
			SessionStartMonth: row.Int(4, "academic_session_start_month"),
			GradingSystem:     normalizeUpper(row.Get("grading_system"), "PERCENTAGE"),
			AffiliationNumber: row.Get("affiliation_number"),
			RecognitionStatus: normalizeUpper(row.Get("recognition_status"), "RECOGNIZED"),
			RTECompliance:     row.BoolDefaultTrue("rte_compliance"),
			Active:            row.BoolDefaultTrue("is_active"),
		}
		if _, err := env.store.UpsertSchool(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importBranches(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		code := row.Get("branch_code")
		name := row.Get("branch_name")
		if schoolCode == "" || code == "" || name == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		rec := BranchRecord{
			SchoolID:        schoolID,
			Code:            code,
			Name:            name,
			AddressLine1:    row.Get("address_line1", "branch_address_line1"),
			City:            row.Get("city", "branch_city"),
			State:           row.Get("state", "branch_state"),
			Pincode:         row.Get("pincode", "branch_pincode"),
			Phone:           row.Get("phone", "branch_phone"),
			IsMain:          row.Bool("is_main_branch"),
			MaxStudents:     row.Int(1000, "max_students"),
			CurrentStudents: row.Int(0, "current_students"),
			Active:          row.BoolDefaultTrue("is_active"),
		}
		if _, err := env.store.UpsertBranch(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importAcademicYears(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		name := row.Get("year_name", "academic_year")
		if schoolCode == "" || name == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		rec := AcademicYearRecord{
			SchoolID:  schoolID,
			Name:      name,
			StartDate: row.DateOr(defaultYearStart, "start_date", "year_start_date"),
			EndDate:   row.DateOr(defaultYearEnd, "end_date", "year_end_date"),
			IsCurrent: row.Bool("is_current", "is_current_year"),
		}
		if _, err := env.store.UpsertAcademicYear(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importClasses(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		name := row.Get("class_name")
		if schoolCode == "" || name == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		rawCategory := row.Get("class_category")
		category, defaulted := env.cfg.NormalizeCategory(rawCategory)
		if defaulted {
			env.log.Warn("unknown class category defaulted",
				"school", schoolCode, "class", name,
				"raw", rawCategory, "category", category)
		}
		rec := ClassRecord{
			SchoolID:              schoolID,
			Name:                  name,
			Order:                 row.Int(1, "class_order"),
			Category:              category,
			Subjects:              SplitList(row.Get("subjects")),
			PassingPercentage:     row.Float(35.0, "passing_percentage"),
			MaxStudentsPerSection: row.Int(40, "max_students_per_section"),
			Active:                row.BoolDefaultTrue("is_active"),
		}
		if _, err := env.store.UpsertClass(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importSections(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		className := row.Get("class_name")
		yearName := row.Get("year_name", "academic_year")
		sectionName := row.Get("section_name")
		if schoolCode == "" || className == "" || yearName == "" || sectionName == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		classID, err := env.res.ClassID(ctx, schoolID, className)
		if err != nil {
			return count, err
		}
		yearID, err := env.res.YearID(ctx, schoolID, yearName)
		if err != nil {
			return count, err
		}
		branchID, err := env.res.OptionalBranchID(ctx, schoolID, row.Get("branch_code"))
		if err != nil {
			return count, err
		}
		rec := SectionRecord{
			SchoolID:        schoolID,
			BranchID:        branchID,
			ClassID:         classID,
			YearID:          yearID,
			Name:            sectionName,
			MaxStudents:     row.Int(40, "max_students"),
			CurrentStudents: row.Int(0, "current_students"),
			Active:          row.BoolDefaultTrue("is_active"),
		}
		if _, err := env.store.UpsertSection(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importParents(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		fullName := row.Get("parent_name", "full_name")
		phone := row.Get("phone", "parent_phone")
		if schoolCode == "" || fullName == "" || phone == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		rec := ParentRecord{
			SchoolID:       schoolID,
			FullName:       fullName,
			Phone:          phone,
			WhatsAppNumber: row.Get("whatsapp_number", "whatsapp"),
			Email:          row.Get("email", "parent_email"),
			Occupation:     row.Get("occupation"),
			IncomeRange:    row.Get("annual_income_range"),
			EducationLevel: row.Get("education_level"),
			AddressLine1:   row.Get("address_line1"),
			AddressLine2:   row.Get("address_line2"),
			City:           row.Get("city"),
			State:          row.Get("state"),
			Pincode:        row.Get("pincode"),
		}
		if _, err := env.store.UpsertParent(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importStudents(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		admissionNo := row.Get("admission_number", "admission_no")
		fullName := row.Get("student_name", "full_name")
		if schoolCode == "" || admissionNo == "" || fullName == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		branchID, err := env.res.OptionalBranchID(ctx, schoolID, row.Get("branch_code"))
		if err != nil {
			return count, err
		}
		rec := StudentRecord{
			SchoolID:              schoolID,
			BranchID:              branchID,
			AdmissionNumber:       admissionNo,
			RollNumber:            row.Get("roll_number", "roll_no"),
			FullName:              fullName,
			DateOfBirth:           row.Date("date_of_birth", "dob"),
			Gender:                genderCode(row.Get("gender")),
			BloodGroup:            row.Get("blood_group"),
			AadharNumber:          row.Get("aadhar_number", "aadhar", "aadhaar"),
			AdmissionDate:         row.DateOr(time.Now().UTC(), "admission_date"),
			AdmissionClass:        row.Get("admission_class"),
			Status:                normalizeUpper(row.Get("current_status"), "ACTIVE"),
			AddressLine1:          row.Get("address_line1"),
			City:                  row.Get("city"),
			State:                 row.Get("state"),
			Pincode:               row.Get("pincode"),
			MedicalConditions:     row.Get("medical_conditions"),
			EmergencyContactName:  row.Get("emergency_contact_name", "emergency_name"),
			EmergencyContactPhone: row.Get("emergency_contact_phone", "emergency_phone"),
		}
		if _, err := env.store.UpsertStudent(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importRelationships(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		admissionNo := row.Get("admission_number", "admission_no")
		parentPhone := row.Get("parent_phone")
		if schoolCode == "" || admissionNo == "" || parentPhone == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		studentID, err := env.res.StudentID(ctx, schoolID, admissionNo)
		if err != nil {
			return count, err
		}
		parentID, err := env.res.ParentID(ctx, parentPhone)
		if err != nil {
			return count, err
		}
		rec := RelationshipRecord{
			ParentID:         parentID,
			StudentID:        studentID,
			Type:             normalizeUpper(row.Get("relationship_type"), "FATHER"),
			PrimaryContact:   true,
			FeeResponsible:   true,
			EmergencyContact: true,
		}
		if err := env.store.UpsertRelationship(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importEnrollments(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		admissionNo := row.Get("admission_number", "admission_no")
		className := row.Get("class_name")
		sectionName := row.Get("section_name")
		yearName := row.Get("year_name", "academic_year")
		if schoolCode == "" || admissionNo == "" || className == "" || sectionName == "" || yearName == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		studentID, err := env.res.StudentID(ctx, schoolID, admissionNo)
		if err != nil {
			return count, err
		}
		classID, err := env.res.ClassID(ctx, schoolID, className)
		if err != nil {
			return count, err
		}
		yearID, err := env.res.YearID(ctx, schoolID, yearName)
		if err != nil {
			return count, err
		}
		sectionID, err := env.res.SectionID(ctx, schoolID, classID, yearID, sectionName)
		if err != nil {
			return count, err
		}
		var roll *int
		if n := row.Int(0, "roll_number_in_section", "roll_in_section"); n > 0 {
			roll = &n
		}
		rec := EnrollmentRecord{
			StudentID:      studentID,
			SectionID:      sectionID,
			YearID:         yearID,
			EnrollmentDate: row.DateOr(time.Now().UTC(), "enrollment_date"),
			RollNumber:     roll,
			Active:         true,
		}
		if _, err := env.store.UpsertEnrollment(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importFeeStructures(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		className := row.Get("class_name")
		yearName := row.Get("year_name", "academic_year")
		structureName := row.Get("structure_name", "fee_structure_name")
		if schoolCode == "" || className == "" || yearName == "" || structureName == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		classID, err := env.res.ClassID(ctx, schoolID, className)
		if err != nil {
			return count, err
		}
		yearID, err := env.res.YearID(ctx, schoolID, yearName)
		if err != nil {
			return count, err
		}
		total := moneyOr(row.Get("total_annual_fee"), decimal.Zero)
		effectiveFrom := row.DateOr(time.Now().UTC(), "effective_from", "fee_effective_from")
		rec := FeeStructureRecord{
			SchoolID:       schoolID,
			ClassID:        classID,
			YearID:         yearID,
			Name:           structureName,
			TotalAnnualFee: total,
			Components:     env.cfg.SplitFee(total),
			Installments:   env.cfg.InstallmentPlan(total, effectiveFrom, nil),
			EffectiveFrom:  effectiveFrom,
			EffectiveTo:    row.Date("effective_to", "fee_effective_to"),
			Active:         row.BoolDefaultTrue("is_active"),
		}
		if _, err := env.store.UpsertFeeStructure(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importFeeAssignments(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		admissionNo := row.Get("admission_number", "admission_no")
		yearName := row.Get("year_name", "academic_year")
		structureName := row.Get("structure_name", "fee_structure_name")
		if schoolCode == "" || admissionNo == "" || yearName == "" || structureName == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		studentID, err := env.res.StudentID(ctx, schoolID, admissionNo)
		if err != nil {
			return count, err
		}
		yearID, err := env.res.YearID(ctx, schoolID, yearName)
		if err != nil {
			return count, err
		}
		structureID, err := env.res.FeeStructureID(ctx, schoolID, yearID, structureName)
		if err != nil {
			// A fee assignment naming an unknown structure is skipped, not
			// fatal, matching the lenient fee handling elsewhere.
			if IsKind(err, KindParentNotFound) {
				continue
			}
			return count, err
		}
		rec := FeeAssignmentRecord{
			StudentID:        studentID,
			FeeStructureID:   structureID,
			YearID:           yearID,
			TotalFee:         moneyOr(row.Get("total_fee_amount", "total_fee"), decimal.Zero),
			Concession:       moneyOr(row.Get("concession_amount", "concession"), decimal.Zero),
			ConcessionReason: row.Get("concession_reason"),
		}
		if _, err := env.store.UpsertFeeAssignment(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importFeePayments(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		admissionNo := row.Get("admission_number", "admission_no")
		yearName := row.Get("year_name", "academic_year")
		if schoolCode == "" || admissionNo == "" || yearName == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		studentID, err := env.res.StudentID(ctx, schoolID, admissionNo)
		if err != nil {
			return count, err
		}
		yearID, err := env.res.YearID(ctx, schoolID, yearName)
		if err != nil {
			return count, err
		}
		assignmentID, err := env.res.FeeAssignmentID(ctx, studentID, yearID)
		if err != nil {
			if IsKind(err, KindParentNotFound) {
				continue
			}
			return count, err
		}
		rec := FeePaymentRecord{
			StudentID:    studentID,
			AssignmentID: assignmentID,
			Installment:  row.Int(1, "installment_number", "installment_no"),
			AmountDue:    moneyOr(row.Get("amount_due"), decimal.Zero),
			AmountPaid:   moneyOr(row.Get("amount_paid"), decimal.Zero),
			Balance:      moneyOr(row.Get("balance_amount"), decimal.Zero),
			DueDate:      row.Date("due_date"),
			PaymentDate:  row.Date("payment_date"),
			Mode:         row.Get("payment_mode"),
			Reference:    row.Get("transaction_reference"),
			Status:       normalizeUpper(row.Get("status"), "PENDING"),
		}
		if err := env.store.InsertFeePayment(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importUsers(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		username := row.Get("username")
		email := row.Get("email")
		phone := row.Get("phone")
		fullName := row.Get("full_name", "name")
		role := row.Get("role")
		if schoolCode == "" || username == "" || email == "" || phone == "" || fullName == "" || role == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		branchID, err := env.res.OptionalBranchID(ctx, schoolID, row.Get("branch_code"))
		if err != nil {
			return count, err
		}
		// Migrated accounts without a hash get a sentinel forcing a reset.
		hash := row.Get("password_hash")
		if hash == "" {
			hash = "MIGRATED"
		}
		rec := UserRecord{
			SchoolID:     schoolID,
			BranchID:     branchID,
			Username:     username,
			Email:        email,
			Phone:        phone,
			PasswordHash: hash,
			FullName:     fullName,
			Role:         strings.ToUpper(role),
			Active:       row.BoolDefaultTrue("is_active"),
		}
		if _, err := env.store.UpsertUser(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func importTeacherAssignments(ctx context.Context, env importEnv, rows []Row) (int, error) {
	count := 0
	for _, row := range rows {
		schoolCode := row.Get("school_code")
		username := row.Get("teacher_username")
		className := row.Get("class_name")
		sectionName := row.Get("section_name")
		yearName := row.Get("year_name", "academic_year")
		if schoolCode == "" || username == "" || className == "" || sectionName == "" || yearName == "" {
			continue
		}
		schoolID, err := env.res.SchoolID(ctx, schoolCode)
		if err != nil {
			return count, err
		}
		teacherID, err := env.res.UserID(ctx, schoolID, username)
		if err != nil {
			// An assignment for an account that was never migrated is
			// skipped rather than failing the run.
			if IsKind(err, KindParentNotFound) {
				continue
			}
			return count, err
		}
		classID, err := env.res.ClassID(ctx, schoolID, className)
		if err != nil {
			return count, err
		}
		yearID, err := env.res.YearID(ctx, schoolID, yearName)
		if err != nil {
			return count, err
		}
		sectionID, err := env.res.SectionID(ctx, schoolID, classID, yearID, sectionName)
		if err != nil {
			return count, err
		}
		rec := TeacherAssignmentRecord{
			TeacherID:      teacherID,
			SectionID:      sectionID,
			YearID:         yearID,
			IsClassTeacher: true,
		}
		if err := env.store.UpsertTeacherAssignment(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// moneyOr parses an optional money column, falling back to def on absence
// or garbage. Strict parsing belongs to ParseFee; the migration columns
// these feed tolerate blanks.
func moneyOr(raw string, def decimal.Decimal) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return def
	}
	return d
}

// genderCode reduces a gender value to its single-letter store form.
func genderCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1])
}
