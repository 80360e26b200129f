package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// familyRequiredColumns must all be present in the upload header. Values
// may still be blank row by row; that fails the row, not the upload.
var familyRequiredColumns = []string{
	"school_code",
	"parent_full_name",
	"parent_phone",
	"student_admission_number",
	"student_full_name",
	"student_date_of_birth",
	"student_admission_date",
	"student_admission_class",
}

// DefaultFamilyPassword seeds login accounts when the row does not carry
// its own default_password.
const DefaultFamilyPassword = "Password@123"

// FamilyImporter handles family bulk uploads: one row describes a parent,
// a student and the relationship between them. Parents and students get
// login accounts provisioned on first sight. Every row runs in its own
// transaction; a bad row is reported and the rest of the file continues.
type FamilyImporter struct {
	db  DB
	log *slog.Logger

	// bcrypt is deliberately slow; identical plaintexts across a file
	// hash once.
	hashCache map[string]string
}

// NewFamilyImporter wires a family importer over the store.
func NewFamilyImporter(db DB, log *slog.Logger) *FamilyImporter {
	if log == nil {
		log = slog.Default()
	}
	return &FamilyImporter{db: db, log: log, hashCache: make(map[string]string)}
}

// Run imports a family upload and returns the per-row report. The whole
// upload is rejected up front when the header is missing required columns.
func (f *FamilyImporter) Run(ctx context.Context, rows []Row) (*FamilyReport, error) {
	if len(rows) == 0 {
		return nil, validationErr("upload", "file is empty")
	}
	if missing := missingColumns(rows[0], familyRequiredColumns); len(missing) > 0 {
		return nil, validationErr("upload", fmt.Sprintf("missing required columns: %v", missing))
	}

	report := &FamilyReport{TotalRows: len(rows), Errors: []RowError{}}
	for i, row := range rows {
		if err := f.importRow(ctx, row); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, RowError{Row: i + 1, Error: err.Error()})
			f.log.Warn("family row failed", "row", i+1, "error", err)
			continue
		}
		report.SuccessRows++
	}
	return report, nil
}

func (f *FamilyImporter) importRow(ctx context.Context, row Row) error {
	schoolCode := row.Get("school_code")
	parentName := row.Get("parent_full_name")
	parentPhone := row.Get("parent_phone")
	admissionNo := row.Get("student_admission_number")
	studentName := row.Get("student_full_name")
	if schoolCode == "" || parentName == "" || parentPhone == "" || admissionNo == "" || studentName == "" {
		return validationErr("family", "school_code, parent_full_name, parent_phone, student_admission_number and student_full_name are required")
	}

	tx, err := f.db.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	res := NewResolver(tx)
	schoolID, err := res.SchoolID(ctx, schoolCode)
	if err != nil {
		return err
	}
	branchID, err := res.OptionalBranchID(ctx, schoolID, row.Get("branch_code"))
	if err != nil {
		return err
	}

	hash, err := f.passwordHash(row.Get("default_password"))
	if err != nil {
		return err
	}

	parentID, err := f.findOrCreateParent(ctx, tx, row, schoolID, branchID, hash)
	if err != nil {
		return err
	}
	studentID, err := f.findOrCreateStudent(ctx, tx, row, schoolID, branchID, hash)
	if err != nil {
		return err
	}

	rel := RelationshipRecord{
		ParentID:         parentID,
		StudentID:        studentID,
		Type:             normalizeUpper(row.Get("relationship_type"), "FATHER"),
		PrimaryContact:   row.Bool("is_primary_contact"),
		FeeResponsible:   row.Bool("is_fee_responsible"),
		EmergencyContact: row.Bool("is_emergency_contact"),
	}
	if err := tx.UpsertRelationship(ctx, rel); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// findOrCreateParent reuses an existing parent by phone; otherwise it
// provisions the login account and the parent record together.
func (f *FamilyImporter) findOrCreateParent(ctx context.Context, tx TxStore, row Row, schoolID int64, branchID *int64, hash string) (int64, error) {
	phone := row.Get("parent_phone")
	if id, err := tx.ParentIDByPhone(ctx, phone); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	username := row.Get("parent_username")
	if username == "" {
		username = fmt.Sprintf("P_%d_%s", schoolID, phone)
	}
	userID, err := tx.UpsertUser(ctx, UserRecord{
		SchoolID:     schoolID,
		BranchID:     branchID,
		Username:     username,
		Email:        row.Get("parent_email"),
		Phone:        phone,
		PasswordHash: hash,
		FullName:     row.Get("parent_full_name"),
		Role:         "PARENT",
		Active:       true,
	})
	if err != nil {
		return 0, err
	}

	return tx.UpsertParent(ctx, ParentRecord{
		SchoolID:       schoolID,
		FullName:       row.Get("parent_full_name"),
		Phone:          phone,
		WhatsAppNumber: row.Get("parent_whatsapp_number"),
		Email:          row.Get("parent_email"),
		Occupation:     row.Get("parent_occupation"),
		IncomeRange:    row.Get("parent_annual_income_range"),
		EducationLevel: row.Get("parent_education_level"),
		AddressLine1:   row.Get("parent_address_line1"),
		AddressLine2:   row.Get("parent_address_line2"),
		City:           row.Get("parent_city"),
		State:          row.Get("parent_state"),
		Pincode:        row.Get("parent_pincode"),
		UserID:         &userID,
	})
}

// findOrCreateStudent reuses an existing student by admission number;
// otherwise it provisions the login account and the student record.
func (f *FamilyImporter) findOrCreateStudent(ctx context.Context, tx TxStore, row Row, schoolID int64, branchID *int64, hash string) (int64, error) {
	admissionNo := row.Get("student_admission_number")
	if id, err := tx.StudentIDByAdmission(ctx, schoolID, admissionNo); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	username := row.Get("student_username")
	if username == "" {
		username = fmt.Sprintf("S_%d_%s", schoolID, admissionNo)
	}
	userID, err := tx.UpsertUser(ctx, UserRecord{
		SchoolID:     schoolID,
		BranchID:     branchID,
		Username:     username,
		Email:        row.Get("student_email"),
		Phone:        row.Get("student_phone"),
		PasswordHash: hash,
		FullName:     row.Get("student_full_name"),
		Role:         "STUDENT",
		Active:       true,
	})
	if err != nil {
		return 0, err
	}

	return tx.UpsertStudent(ctx, StudentRecord{
		SchoolID:              schoolID,
		BranchID:              branchID,
		AdmissionNumber:       admissionNo,
		RollNumber:            row.Get("student_roll_number"),
		FullName:              row.Get("student_full_name"),
		DateOfBirth:           row.Date("student_date_of_birth"),
		Gender:                genderCode(row.Get("student_gender")),
		BloodGroup:            row.Get("student_blood_group"),
		AadharNumber:          row.Get("student_aadhar_number"),
		AdmissionDate:         row.DateOr(time.Now().UTC(), "student_admission_date"),
		AdmissionClass:        row.Get("student_admission_class"),
		Status:                "ACTIVE",
		AddressLine1:          row.Get("student_address_line1"),
		City:                  row.Get("student_city"),
		State:                 row.Get("student_state"),
		Pincode:               row.Get("student_pincode"),
		MedicalConditions:     row.Get("student_medical_conditions"),
		EmergencyContactName:  row.Get("student_emergency_contact_name"),
		EmergencyContactPhone: row.Get("student_emergency_contact_phone"),
		UserID:                &userID,
	})
}

func (f *FamilyImporter) passwordHash(plain string) (string, error) {
	if plain == "" {
		plain = DefaultFamilyPassword
	}
	if h, ok := f.hashCache[plain]; ok {
		return h, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	f.hashCache[plain] = string(h)
	return string(h), nil
}

// missingColumns reports required column names absent from the header.
// Presence means the key exists, even with a blank value.
func missingColumns(row Row, required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := row[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
