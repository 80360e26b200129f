package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgx operations the queries need.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore implements DB on top of a pgx connection pool.
type PgStore struct {
	pgQueries
	pool *pgxpool.Pool
}

// NewPgStore wraps a pool as the engine's store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pgQueries: pgQueries{db: pool}, pool: pool}
}

// Begin opens a transaction-scoped store.
func (s *PgStore) Begin(ctx context.Context) (TxStore, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTxStore{pgQueries: pgQueries{db: tx}, tx: tx}, nil
}

type pgTxStore struct {
	pgQueries
	tx pgx.Tx
}

func (t *pgTxStore) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "SAVEPOINT "+name)
	return err
}

func (t *pgTxStore) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

func (t *pgTxStore) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTxStore) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgQueries carries the shared query set, usable over pool or transaction.
type pgQueries struct {
	db DBTX
}

// nullable maps "" to NULL. The store keeps absent text as NULL, never as
// empty string, matching the existing data.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (q pgQueries) UpsertSchool(ctx context.Context, rec SchoolRecord) (int64, error) {
	const sql = `
		INSERT INTO schools (
			school_code, school_name, address_line1, address_line2,
			city, state, pincode, phone, email, website,
			board_type, academic_session_start_month, grading_system,
			affiliation_number, recognition_status, rte_compliance, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (school_code) DO UPDATE SET
			school_name   = EXCLUDED.school_name,
			address_line1 = EXCLUDED.address_line1,
			address_line2 = EXCLUDED.address_line2,
			city          = EXCLUDED.city,
			state         = EXCLUDED.state,
			pincode       = EXCLUDED.pincode,
			phone         = EXCLUDED.phone,
			email         = EXCLUDED.email,
			website       = EXCLUDED.website,
			board_type    = EXCLUDED.board_type,
			updated_at    = CURRENT_TIMESTAMP
		RETURNING school_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.Code, rec.Name, rec.AddressLine1, nullable(rec.AddressLine2),
		rec.City, rec.State, rec.Pincode, nullable(rec.Phone),
		nullable(rec.Email), nullable(rec.Website),
		rec.BoardType, rec.SessionStartMonth, rec.GradingSystem,
		nullable(rec.AffiliationNumber), rec.RecognitionStatus,
		rec.RTECompliance, rec.Active,
	).Scan(&id)
	return id, classifyStoreErr("school", rec.Code, err)
}

func (q pgQueries) UpsertBranch(ctx context.Context, rec BranchRecord) (int64, error) {
	const sql = `
		INSERT INTO branches (
			school_id, branch_code, branch_name, address_line1,
			city, state, pincode, phone, is_main_branch,
			max_students, current_students, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (school_id, branch_code) DO UPDATE SET
			branch_name    = EXCLUDED.branch_name,
			address_line1  = EXCLUDED.address_line1,
			city           = EXCLUDED.city,
			state          = EXCLUDED.state,
			pincode        = EXCLUDED.pincode,
			phone          = EXCLUDED.phone,
			is_main_branch = EXCLUDED.is_main_branch
		RETURNING branch_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.Code, rec.Name, rec.AddressLine1,
		rec.City, rec.State, rec.Pincode, nullable(rec.Phone), rec.IsMain,
		rec.MaxStudents, rec.CurrentStudents, rec.Active,
	).Scan(&id)
	return id, classifyStoreErr("branch", rec.Code, err)
}

func (q pgQueries) UpsertClass(ctx context.Context, rec ClassRecord) (int64, error) {
	subjects, err := json.Marshal(rec.Subjects)
	if err != nil {
		return 0, fmt.Errorf("class %s: marshal subjects: %w", rec.Name, err)
	}

	const sql = `
		INSERT INTO classes (
			school_id, class_name, class_order, class_category,
			subjects, passing_percentage, max_students_per_section, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (school_id, class_name) DO UPDATE SET
			class_order    = EXCLUDED.class_order,
			class_category = EXCLUDED.class_category
		RETURNING class_id`

	var id int64
	err = q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.Name, rec.Order, rec.Category,
		subjects, rec.PassingPercentage, rec.MaxStudentsPerSection, rec.Active,
	).Scan(&id)
	return id, classifyStoreErr("class", rec.Name, err)
}

func (q pgQueries) UpsertAcademicYear(ctx context.Context, rec AcademicYearRecord) (int64, error) {
	const sql = `
		INSERT INTO academic_years (school_id, year_name, start_date, end_date, is_current)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (school_id, year_name) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date   = EXCLUDED.end_date,
			is_current = EXCLUDED.is_current
		RETURNING year_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.Name, rec.StartDate, rec.EndDate, rec.IsCurrent,
	).Scan(&id)
	return id, classifyStoreErr("academic_year", rec.Name, err)
}

func (q pgQueries) UpsertSection(ctx context.Context, rec SectionRecord) (int64, error) {
	const sql = `
		INSERT INTO sections (
			school_id, branch_id, class_id, year_id, section_name,
			max_students, current_students, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (school_id, class_id, year_id, section_name) DO UPDATE SET
			branch_id    = EXCLUDED.branch_id,
			max_students = EXCLUDED.max_students
		RETURNING section_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.BranchID, rec.ClassID, rec.YearID, rec.Name,
		rec.MaxStudents, rec.CurrentStudents, rec.Active,
	).Scan(&id)
	return id, classifyStoreErr("section", rec.Name, err)
}

func (q pgQueries) UpsertFeeStructure(ctx context.Context, rec FeeStructureRecord) (int64, error) {
	components, err := json.Marshal(rec.Components)
	if err != nil {
		return 0, fmt.Errorf("fee structure %s: marshal components: %w", rec.Name, err)
	}
	plan, err := json.Marshal(rec.Installments)
	if err != nil {
		return 0, fmt.Errorf("fee structure %s: marshal installment plan: %w", rec.Name, err)
	}

	const sql = `
		INSERT INTO fee_structures (
			school_id, class_id, year_id, structure_name,
			fee_components, total_annual_fee, installment_plan,
			effective_from, effective_to, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (school_id, class_id, year_id, structure_name) DO UPDATE SET
			fee_components   = EXCLUDED.fee_components,
			total_annual_fee = EXCLUDED.total_annual_fee,
			installment_plan = EXCLUDED.installment_plan,
			effective_from   = EXCLUDED.effective_from,
			effective_to     = EXCLUDED.effective_to
		RETURNING structure_id`

	var id int64
	err = q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.ClassID, rec.YearID, rec.Name,
		components, rec.TotalAnnualFee.String(), plan,
		rec.EffectiveFrom, rec.EffectiveTo, rec.Active,
	).Scan(&id)
	return id, classifyStoreErr("fee_structure", rec.Name, err)
}

func (q pgQueries) UpsertParent(ctx context.Context, rec ParentRecord) (int64, error) {
	const sql = `
		INSERT INTO parents (
			school_id, full_name, phone, whatsapp_number, email,
			occupation, annual_income_range, education_level,
			address_line1, address_line2, city, state, pincode,
			user_id, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,true)
		ON CONFLICT (phone) DO UPDATE SET
			full_name           = EXCLUDED.full_name,
			whatsapp_number     = EXCLUDED.whatsapp_number,
			email               = EXCLUDED.email,
			occupation          = EXCLUDED.occupation,
			annual_income_range = EXCLUDED.annual_income_range,
			education_level     = EXCLUDED.education_level,
			address_line1       = EXCLUDED.address_line1,
			address_line2       = EXCLUDED.address_line2,
			city                = EXCLUDED.city,
			state               = EXCLUDED.state,
			pincode             = EXCLUDED.pincode
		RETURNING parent_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.FullName, rec.Phone, nullable(rec.WhatsAppNumber),
		nullable(rec.Email), nullable(rec.Occupation), nullable(rec.IncomeRange),
		nullable(rec.EducationLevel), nullable(rec.AddressLine1),
		nullable(rec.AddressLine2), nullable(rec.City), nullable(rec.State),
		nullable(rec.Pincode), rec.UserID,
	).Scan(&id)
	return id, classifyStoreErr("parent", rec.Phone, err)
}

func (q pgQueries) UpsertStudent(ctx context.Context, rec StudentRecord) (int64, error) {
	const sql = `
		INSERT INTO students (
			school_id, branch_id, admission_number, roll_number, full_name,
			date_of_birth, gender, blood_group, aadhar_number,
			admission_date, admission_class, current_status,
			address_line1, city, state, pincode,
			medical_conditions, emergency_contact_name, emergency_contact_phone,
			user_id
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (school_id, admission_number) DO UPDATE SET
			branch_id               = EXCLUDED.branch_id,
			roll_number             = EXCLUDED.roll_number,
			full_name               = EXCLUDED.full_name,
			date_of_birth           = EXCLUDED.date_of_birth,
			gender                  = EXCLUDED.gender,
			blood_group             = EXCLUDED.blood_group,
			aadhar_number           = EXCLUDED.aadhar_number,
			admission_date          = EXCLUDED.admission_date,
			admission_class         = EXCLUDED.admission_class,
			current_status          = EXCLUDED.current_status,
			address_line1           = EXCLUDED.address_line1,
			city                    = EXCLUDED.city,
			state                   = EXCLUDED.state,
			pincode                 = EXCLUDED.pincode,
			medical_conditions      = EXCLUDED.medical_conditions,
			emergency_contact_name  = EXCLUDED.emergency_contact_name,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone
		RETURNING student_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.BranchID, rec.AdmissionNumber, nullable(rec.RollNumber),
		rec.FullName, rec.DateOfBirth, nullable(rec.Gender), nullable(rec.BloodGroup),
		nullable(rec.AadharNumber), rec.AdmissionDate, nullable(rec.AdmissionClass),
		rec.Status, nullable(rec.AddressLine1), nullable(rec.City),
		nullable(rec.State), nullable(rec.Pincode), nullable(rec.MedicalConditions),
		nullable(rec.EmergencyContactName), nullable(rec.EmergencyContactPhone),
		rec.UserID,
	).Scan(&id)
	return id, classifyStoreErr("student", rec.AdmissionNumber, err)
}

func (q pgQueries) UpsertRelationship(ctx context.Context, rec RelationshipRecord) error {
	const sql = `
		INSERT INTO parent_student_relationships (
			parent_id, student_id, relationship_type,
			is_primary_contact, is_fee_responsible, is_emergency_contact
		)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (parent_id, student_id, relationship_type) DO UPDATE SET
			is_primary_contact   = EXCLUDED.is_primary_contact,
			is_fee_responsible   = EXCLUDED.is_fee_responsible,
			is_emergency_contact = EXCLUDED.is_emergency_contact`

	_, err := q.db.Exec(ctx, sql,
		rec.ParentID, rec.StudentID, rec.Type,
		rec.PrimaryContact, rec.FeeResponsible, rec.EmergencyContact,
	)
	return classifyStoreErr("parent_student_relationship", rec.Type, err)
}

func (q pgQueries) UpsertEnrollment(ctx context.Context, rec EnrollmentRecord) (int64, error) {
	const sql = `
		INSERT INTO student_enrollments (
			student_id, section_id, year_id, enrollment_date,
			roll_number_in_section, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (student_id, year_id) DO UPDATE SET
			section_id             = EXCLUDED.section_id,
			enrollment_date        = EXCLUDED.enrollment_date,
			roll_number_in_section = EXCLUDED.roll_number_in_section,
			is_active              = EXCLUDED.is_active
		RETURNING enrollment_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.StudentID, rec.SectionID, rec.YearID, rec.EnrollmentDate,
		rec.RollNumber, rec.Active,
	).Scan(&id)
	return id, classifyStoreErr("student_enrollment", fmt.Sprintf("student=%d year=%d", rec.StudentID, rec.YearID), err)
}

func (q pgQueries) UpsertFeeAssignment(ctx context.Context, rec FeeAssignmentRecord) (int64, error) {
	const sql = `
		INSERT INTO student_fee_assignments (
			student_id, fee_structure_id, year_id,
			total_fee_amount, concession_amount, concession_reason
		)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (student_id, year_id) DO UPDATE SET
			fee_structure_id  = EXCLUDED.fee_structure_id,
			total_fee_amount  = EXCLUDED.total_fee_amount,
			concession_amount = EXCLUDED.concession_amount,
			concession_reason = EXCLUDED.concession_reason
		RETURNING assignment_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.StudentID, rec.FeeStructureID, rec.YearID,
		rec.TotalFee.String(), rec.Concession.String(), nullable(rec.ConcessionReason),
	).Scan(&id)
	return id, classifyStoreErr("student_fee_assignment", fmt.Sprintf("student=%d year=%d", rec.StudentID, rec.YearID), err)
}

func (q pgQueries) InsertFeePayment(ctx context.Context, rec FeePaymentRecord) error {
	const sql = `
		INSERT INTO fee_payments (
			student_id, fee_assignment_id, installment_number,
			amount_due, amount_paid, balance_amount,
			due_date, payment_date, payment_mode,
			transaction_reference, status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT DO NOTHING`

	_, err := q.db.Exec(ctx, sql,
		rec.StudentID, rec.AssignmentID, rec.Installment,
		rec.AmountDue.String(), rec.AmountPaid.String(), rec.Balance.String(),
		rec.DueDate, rec.PaymentDate, nullable(rec.Mode),
		nullable(rec.Reference), rec.Status,
	)
	return classifyStoreErr("fee_payment", fmt.Sprintf("assignment=%d installment=%d", rec.AssignmentID, rec.Installment), err)
}

func (q pgQueries) UpsertUser(ctx context.Context, rec UserRecord) (int64, error) {
	const sql = `
		INSERT INTO users (
			school_id, branch_id, username, email, phone,
			password_hash, full_name, role, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (username) DO UPDATE SET
			email     = EXCLUDED.email,
			phone     = EXCLUDED.phone,
			full_name = EXCLUDED.full_name,
			role      = EXCLUDED.role,
			branch_id = EXCLUDED.branch_id
		RETURNING user_id`

	var id int64
	err := q.db.QueryRow(ctx, sql,
		rec.SchoolID, rec.BranchID, rec.Username, nullable(rec.Email),
		nullable(rec.Phone), rec.PasswordHash, rec.FullName, rec.Role, rec.Active,
	).Scan(&id)
	return id, classifyStoreErr("user", rec.Username, err)
}

func (q pgQueries) UpsertTeacherAssignment(ctx context.Context, rec TeacherAssignmentRecord) error {
	const sql = `
		INSERT INTO teacher_assignments (teacher_id, section_id, year_id, is_class_teacher)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT DO NOTHING`

	_, err := q.db.Exec(ctx, sql, rec.TeacherID, rec.SectionID, rec.YearID, rec.IsClassTeacher)
	return classifyStoreErr("teacher_assignment", fmt.Sprintf("teacher=%d section=%d", rec.TeacherID, rec.SectionID), err)
}

// Lookups. Each returns the surrogate id or a wrapped ErrNotFound.

func (q pgQueries) SchoolIDByCode(ctx context.Context, code string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT school_id FROM schools WHERE school_code = $1`, code,
	).Scan(&id)
	return id, classifyStoreErr("school", code, err)
}

func (q pgQueries) BranchID(ctx context.Context, schoolID int64, code string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT branch_id FROM branches WHERE school_id = $1 AND branch_code = $2`,
		schoolID, code,
	).Scan(&id)
	return id, classifyStoreErr("branch", code, err)
}

func (q pgQueries) ClassID(ctx context.Context, schoolID int64, name string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT class_id FROM classes WHERE school_id = $1 AND class_name = $2`,
		schoolID, name,
	).Scan(&id)
	return id, classifyStoreErr("class", name, err)
}

func (q pgQueries) YearID(ctx context.Context, schoolID int64, name string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT year_id FROM academic_years WHERE school_id = $1 AND year_name = $2`,
		schoolID, name,
	).Scan(&id)
	return id, classifyStoreErr("academic_year", name, err)
}

func (q pgQueries) SectionID(ctx context.Context, schoolID, classID, yearID int64, name string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT section_id FROM sections
		 WHERE school_id = $1 AND class_id = $2 AND year_id = $3 AND section_name = $4`,
		schoolID, classID, yearID, name,
	).Scan(&id)
	return id, classifyStoreErr("section", name, err)
}

func (q pgQueries) ParentIDByPhone(ctx context.Context, phone string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT parent_id FROM parents WHERE phone = $1`, phone,
	).Scan(&id)
	return id, classifyStoreErr("parent", phone, err)
}

func (q pgQueries) StudentIDByAdmission(ctx context.Context, schoolID int64, admissionNumber string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT student_id FROM students WHERE school_id = $1 AND admission_number = $2`,
		schoolID, admissionNumber,
	).Scan(&id)
	return id, classifyStoreErr("student", admissionNumber, err)
}

func (q pgQueries) UserIDByUsername(ctx context.Context, schoolID int64, username string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT user_id FROM users WHERE school_id = $1 AND username = $2`,
		schoolID, username,
	).Scan(&id)
	return id, classifyStoreErr("user", username, err)
}

func (q pgQueries) FeeStructureID(ctx context.Context, schoolID, yearID int64, name string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT structure_id FROM fee_structures
		 WHERE school_id = $1 AND year_id = $2 AND structure_name = $3`,
		schoolID, yearID, name,
	).Scan(&id)
	return id, classifyStoreErr("fee_structure", name, err)
}

func (q pgQueries) FeeAssignmentID(ctx context.Context, studentID, yearID int64) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT assignment_id FROM student_fee_assignments
		 WHERE student_id = $1 AND year_id = $2`,
		studentID, yearID,
	).Scan(&id)
	return id, classifyStoreErr("student_fee_assignment", fmt.Sprintf("student=%d year=%d", studentID, yearID), err)
}
