package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Entity records carry the validated, typed input for one upsert. They are
// built from rows by the importers; the Store never sees a raw Row.

// SchoolRecord keys on Code (globally unique).
type SchoolRecord struct {
	Code              string
	Name              string
	AddressLine1      string
	AddressLine2      string
	City              string
	State             string
	Pincode           string
	Phone             string
	Email             string
	Website           string
	BoardType         string
	SessionStartMonth int
	GradingSystem     string
	AffiliationNumber string
	RecognitionStatus string
	RTECompliance     bool
	Active            bool
}

// BranchRecord keys on (SchoolID, Code).
type BranchRecord struct {
	SchoolID        int64
	Code            string
	Name            string
	AddressLine1    string
	City            string
	State           string
	Pincode         string
	Phone           string
	IsMain          bool
	MaxStudents     int
	CurrentStudents int
	Active          bool
}

// ClassRecord keys on (SchoolID, Name).
type ClassRecord struct {
	SchoolID              int64
	Name                  string
	Order                 int
	Category              string
	Subjects              []string
	PassingPercentage     float64
	MaxStudentsPerSection int
	Active                bool
}

// AcademicYearRecord keys on (SchoolID, Name).
type AcademicYearRecord struct {
	SchoolID  int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsCurrent bool
}

// SectionRecord keys on (SchoolID, ClassID, YearID, Name). BranchID is the
// one optional ancestor.
type SectionRecord struct {
	SchoolID        int64
	BranchID        *int64
	ClassID         int64
	YearID          int64
	Name            string
	MaxStudents     int
	CurrentStudents int
	Active          bool
}

// FeeStructureRecord keys on (SchoolID, ClassID, YearID, Name). Components
// and Installments are derived, never read from the source row.
type FeeStructureRecord struct {
	SchoolID       int64
	ClassID        int64
	YearID         int64
	Name           string
	TotalAnnualFee decimal.Decimal
	Components     FeeComponents
	Installments   []Installment
	EffectiveFrom  time.Time
	EffectiveTo    *time.Time
	Active         bool
}

// ParentRecord keys on Phone (globally unique). UserID links the login
// account when the family upload provisioned one.
type ParentRecord struct {
	SchoolID       int64
	FullName       string
	Phone          string
	WhatsAppNumber string
	Email          string
	Occupation     string
	IncomeRange    string
	EducationLevel string
	AddressLine1   string
	AddressLine2   string
	City           string
	State          string
	Pincode        string
	UserID         *int64
}

// StudentRecord keys on (SchoolID, AdmissionNumber).
type StudentRecord struct {
	SchoolID              int64
	BranchID              *int64
	AdmissionNumber       string
	RollNumber            string
	FullName              string
	DateOfBirth           *time.Time
	Gender                string
	BloodGroup            string
	AadharNumber          string
	AdmissionDate         time.Time
	AdmissionClass        string
	Status                string
	AddressLine1          string
	City                  string
	State                 string
	Pincode               string
	MedicalConditions     string
	EmergencyContactName  string
	EmergencyContactPhone string
	UserID                *int64
}

// RelationshipRecord keys on (ParentID, StudentID, Type).
type RelationshipRecord struct {
	ParentID         int64
	StudentID        int64
	Type             string
	PrimaryContact   bool
	FeeResponsible   bool
	EmergencyContact bool
}

// EnrollmentRecord keys on (StudentID, YearID).
type EnrollmentRecord struct {
	StudentID      int64
	SectionID      int64
	YearID         int64
	EnrollmentDate time.Time
	RollNumber     *int
	Active         bool
}

// FeeAssignmentRecord keys on (StudentID, YearID).
type FeeAssignmentRecord struct {
	StudentID        int64
	FeeStructureID   int64
	YearID           int64
	TotalFee         decimal.Decimal
	Concession       decimal.Decimal
	ConcessionReason string
}

// FeePaymentRecord is inserted best-effort; the source enforces no
// uniqueness, so conflicts are silently dropped.
type FeePaymentRecord struct {
	StudentID    int64
	AssignmentID int64
	Installment  int
	AmountDue    decimal.Decimal
	AmountPaid   decimal.Decimal
	Balance      decimal.Decimal
	DueDate      *time.Time
	PaymentDate  *time.Time
	Mode         string
	Reference    string
	Status       string
}

// UserRecord keys on Username (globally unique). Covers staff as well as
// the login accounts provisioned for parents and students.
type UserRecord struct {
	SchoolID     int64
	BranchID     *int64
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	FullName     string
	Role         string
	Active       bool
}

// TeacherAssignmentRecord has no conflict target in the store; re-inserting
// the same triple is an idempotent no-op.
type TeacherAssignmentRecord struct {
	TeacherID      int64
	SectionID      int64
	YearID         int64
	IsClassTeacher bool
}

// Store is the sole writer boundary of the engine. Every Upsert* call is
// "insert, or update mutable fields on natural-key conflict" and returns
// the surrogate id. Lookups return ErrNotFound (wrapped) on a miss.
type Store interface {
	UpsertSchool(ctx context.Context, rec SchoolRecord) (int64, error)
	UpsertBranch(ctx context.Context, rec BranchRecord) (int64, error)
	UpsertClass(ctx context.Context, rec ClassRecord) (int64, error)
	UpsertAcademicYear(ctx context.Context, rec AcademicYearRecord) (int64, error)
	UpsertSection(ctx context.Context, rec SectionRecord) (int64, error)
	UpsertFeeStructure(ctx context.Context, rec FeeStructureRecord) (int64, error)
	UpsertParent(ctx context.Context, rec ParentRecord) (int64, error)
	UpsertStudent(ctx context.Context, rec StudentRecord) (int64, error)
	UpsertRelationship(ctx context.Context, rec RelationshipRecord) error
	UpsertEnrollment(ctx context.Context, rec EnrollmentRecord) (int64, error)
	UpsertFeeAssignment(ctx context.Context, rec FeeAssignmentRecord) (int64, error)
	InsertFeePayment(ctx context.Context, rec FeePaymentRecord) error
	UpsertUser(ctx context.Context, rec UserRecord) (int64, error)
	UpsertTeacherAssignment(ctx context.Context, rec TeacherAssignmentRecord) error

	SchoolIDByCode(ctx context.Context, code string) (int64, error)
	BranchID(ctx context.Context, schoolID int64, code string) (int64, error)
	ClassID(ctx context.Context, schoolID int64, name string) (int64, error)
	YearID(ctx context.Context, schoolID int64, name string) (int64, error)
	SectionID(ctx context.Context, schoolID, classID, yearID int64, name string) (int64, error)
	ParentIDByPhone(ctx context.Context, phone string) (int64, error)
	StudentIDByAdmission(ctx context.Context, schoolID int64, admissionNumber string) (int64, error)
	UserIDByUsername(ctx context.Context, schoolID int64, username string) (int64, error)
	FeeStructureID(ctx context.Context, schoolID, yearID int64, name string) (int64, error)
	FeeAssignmentID(ctx context.Context, studentID, yearID int64) (int64, error)
}

// TxStore is a Store scoped to one open transaction. Savepoint/RollbackTo
// guard the optional fee-structure stage so its failure cannot poison the
// surrounding transaction.
type TxStore interface {
	Store
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB is a Store that can open transactions. Each reconciliation group gets
// its own TxStore.
type DB interface {
	Store
	Begin(ctx context.Context) (TxStore, error)
}
