package engine

import (
	"context"
	"fmt"
)

// ----------------------------------------------------------------------------
// In-memory store fake
// ----------------------------------------------------------------------------
//
// memDB implements DB over plain maps so the orchestrators can be exercised
// without a database. Transactions are snapshots: Begin clones the state,
// Commit swaps the clone in, Rollback discards it. Savepoints nest the same
// way. failOn injects an error for one (op, key) pair to drive the
// rollback paths.

type memRow[R any] struct {
	id  int64
	rec R
}

type memState struct {
	nextID int64

	schools        map[string]memRow[SchoolRecord]        // code
	branches       map[string]memRow[BranchRecord]        // school/code
	classes        map[string]memRow[ClassRecord]         // school/name
	years          map[string]memRow[AcademicYearRecord]  // school/name
	sections       map[string]memRow[SectionRecord]       // school/class/year/name
	feeStructures  map[string]memRow[FeeStructureRecord]  // school/class/year/name
	parents        map[string]memRow[ParentRecord]        // phone
	students       map[string]memRow[StudentRecord]       // school/admission
	relationships  map[string]RelationshipRecord          // parent/student/type
	enrollments    map[string]memRow[EnrollmentRecord]    // student/year
	feeAssignments map[string]memRow[FeeAssignmentRecord] // student/year
	users          map[string]memRow[UserRecord]          // username
	teacherAssigns map[string]TeacherAssignmentRecord     // teacher/section/year
	feePayments    []FeePaymentRecord
}

func newMemState() *memState {
	return &memState{
		schools:        make(map[string]memRow[SchoolRecord]),
		branches:       make(map[string]memRow[BranchRecord]),
		classes:        make(map[string]memRow[ClassRecord]),
		years:          make(map[string]memRow[AcademicYearRecord]),
		sections:       make(map[string]memRow[SectionRecord]),
		feeStructures:  make(map[string]memRow[FeeStructureRecord]),
		parents:        make(map[string]memRow[ParentRecord]),
		students:       make(map[string]memRow[StudentRecord]),
		relationships:  make(map[string]RelationshipRecord),
		enrollments:    make(map[string]memRow[EnrollmentRecord]),
		feeAssignments: make(map[string]memRow[FeeAssignmentRecord]),
		users:          make(map[string]memRow[UserRecord]),
		teacherAssigns: make(map[string]TeacherAssignmentRecord),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	c := &memState{nextID: s.nextID}
	c.schools = cloneMap(s.schools)
	c.branches = cloneMap(s.branches)
	c.classes = cloneMap(s.classes)
	c.years = cloneMap(s.years)
	c.sections = cloneMap(s.sections)
	c.feeStructures = cloneMap(s.feeStructures)
	c.parents = cloneMap(s.parents)
	c.students = cloneMap(s.students)
	c.relationships = cloneMap(s.relationships)
	c.enrollments = cloneMap(s.enrollments)
	c.feeAssignments = cloneMap(s.feeAssignments)
	c.users = cloneMap(s.users)
	c.teacherAssigns = cloneMap(s.teacherAssigns)
	c.feePayments = append([]FeePaymentRecord(nil), s.feePayments...)
	return c
}

func upsert[R any](s *memState, m map[string]memRow[R], key string, rec R) int64 {
	if row, ok := m[key]; ok {
		m[key] = memRow[R]{id: row.id, rec: rec}
		return row.id
	}
	s.nextID++
	m[key] = memRow[R]{id: s.nextID, rec: rec}
	return s.nextID
}

func lookup[R any](m map[string]memRow[R], key, entity string) (int64, error) {
	if row, ok := m[key]; ok {
		return row.id, nil
	}
	return 0, fmt.Errorf("%s %s: %w", entity, key, ErrNotFound)
}

// memDB is the autocommit view plus transaction factory.
type memDB struct {
	state *memState

	// failOn, when set, makes the op with the matching key fail.
	failOn map[string]error
}

func newMemDB() *memDB {
	return &memDB{state: newMemState(), failOn: make(map[string]error)}
}

// failKey builds the failOn key: "op:naturalKey".
func failKey(op, key string) string { return op + ":" + key }

func (d *memDB) check(op, key string) error {
	if err, ok := d.failOn[failKey(op, key)]; ok {
		return err
	}
	return nil
}

func (d *memDB) Begin(ctx context.Context) (TxStore, error) {
	if err := d.check("begin", ""); err != nil {
		return nil, err
	}
	return &memTx{db: d, state: d.state.clone(), saves: make(map[string]*memState)}, nil
}

// memTx is one open transaction over a cloned state.
type memTx struct {
	db    *memDB
	state *memState
	saves map[string]*memState
	done  bool
}

func (t *memTx) Savepoint(ctx context.Context, name string) error {
	t.saves[name] = t.state.clone()
	return nil
}

func (t *memTx) RollbackTo(ctx context.Context, name string) error {
	saved, ok := t.saves[name]
	if !ok {
		return fmt.Errorf("no savepoint %q", name)
	}
	t.state = saved.clone()
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.db.state = t.state
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

// ----------------------------------------------------------------------------
// Store methods (shared by the autocommit view and transactions)
// ----------------------------------------------------------------------------

func (s *memState) upsertSchool(rec SchoolRecord) (int64, error) {
	return upsert(s, s.schools, rec.Code, rec), nil
}

func branchKey(schoolID int64, code string) string { return fmt.Sprintf("%d/%s", schoolID, code) }
func scopedKey(schoolID int64, name string) string { return fmt.Sprintf("%d/%s", schoolID, name) }
func sectionKey(schoolID, classID, yearID int64, name string) string {
	return fmt.Sprintf("%d/%d/%d/%s", schoolID, classID, yearID, name)
}
func pairKey(a, b int64) string { return fmt.Sprintf("%d/%d", a, b) }

type storeOps struct {
	db *memDB
	s  *memState
}

func (o storeOps) UpsertSchool(ctx context.Context, rec SchoolRecord) (int64, error) {
	if err := o.db.check("school", rec.Code); err != nil {
		return 0, err
	}
	return o.s.upsertSchool(rec)
}

func (o storeOps) UpsertBranch(ctx context.Context, rec BranchRecord) (int64, error) {
	if err := o.db.check("branch", rec.Code); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.branches, branchKey(rec.SchoolID, rec.Code), rec), nil
}

func (o storeOps) UpsertClass(ctx context.Context, rec ClassRecord) (int64, error) {
	if err := o.db.check("class", rec.Name); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.classes, scopedKey(rec.SchoolID, rec.Name), rec), nil
}

func (o storeOps) UpsertAcademicYear(ctx context.Context, rec AcademicYearRecord) (int64, error) {
	if err := o.db.check("academic_year", rec.Name); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.years, scopedKey(rec.SchoolID, rec.Name), rec), nil
}

func (o storeOps) UpsertSection(ctx context.Context, rec SectionRecord) (int64, error) {
	if err := o.db.check("section", rec.Name); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.sections, sectionKey(rec.SchoolID, rec.ClassID, rec.YearID, rec.Name), rec), nil
}

func (o storeOps) UpsertFeeStructure(ctx context.Context, rec FeeStructureRecord) (int64, error) {
	if err := o.db.check("fee_structure", rec.Name); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.feeStructures, sectionKey(rec.SchoolID, rec.ClassID, rec.YearID, rec.Name), rec), nil
}

func (o storeOps) UpsertParent(ctx context.Context, rec ParentRecord) (int64, error) {
	if err := o.db.check("parent", rec.Phone); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.parents, rec.Phone, rec), nil
}

func (o storeOps) UpsertStudent(ctx context.Context, rec StudentRecord) (int64, error) {
	if err := o.db.check("student", rec.AdmissionNumber); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.students, scopedKey(rec.SchoolID, rec.AdmissionNumber), rec), nil
}

func (o storeOps) UpsertRelationship(ctx context.Context, rec RelationshipRecord) error {
	if err := o.db.check("relationship", rec.Type); err != nil {
		return err
	}
	key := fmt.Sprintf("%d/%d/%s", rec.ParentID, rec.StudentID, rec.Type)
	o.s.relationships[key] = rec
	return nil
}

func (o storeOps) UpsertEnrollment(ctx context.Context, rec EnrollmentRecord) (int64, error) {
	if err := o.db.check("enrollment", pairKey(rec.StudentID, rec.YearID)); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.enrollments, pairKey(rec.StudentID, rec.YearID), rec), nil
}

func (o storeOps) UpsertFeeAssignment(ctx context.Context, rec FeeAssignmentRecord) (int64, error) {
	if err := o.db.check("fee_assignment", pairKey(rec.StudentID, rec.YearID)); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.feeAssignments, pairKey(rec.StudentID, rec.YearID), rec), nil
}

func (o storeOps) InsertFeePayment(ctx context.Context, rec FeePaymentRecord) error {
	if err := o.db.check("fee_payment", pairKey(rec.StudentID, rec.AssignmentID)); err != nil {
		return err
	}
	o.s.feePayments = append(o.s.feePayments, rec)
	return nil
}

func (o storeOps) UpsertUser(ctx context.Context, rec UserRecord) (int64, error) {
	if err := o.db.check("user", rec.Username); err != nil {
		return 0, err
	}
	return upsert(o.s, o.s.users, rec.Username, rec), nil
}

func (o storeOps) UpsertTeacherAssignment(ctx context.Context, rec TeacherAssignmentRecord) error {
	key := fmt.Sprintf("%d/%d/%d", rec.TeacherID, rec.SectionID, rec.YearID)
	if err := o.db.check("teacher_assignment", key); err != nil {
		return err
	}
	o.s.teacherAssigns[key] = rec
	return nil
}

func (o storeOps) SchoolIDByCode(ctx context.Context, code string) (int64, error) {
	return lookup(o.s.schools, code, "school")
}

func (o storeOps) BranchID(ctx context.Context, schoolID int64, code string) (int64, error) {
	return lookup(o.s.branches, branchKey(schoolID, code), "branch")
}

func (o storeOps) ClassID(ctx context.Context, schoolID int64, name string) (int64, error) {
	return lookup(o.s.classes, scopedKey(schoolID, name), "class")
}

func (o storeOps) YearID(ctx context.Context, schoolID int64, name string) (int64, error) {
	return lookup(o.s.years, scopedKey(schoolID, name), "academic_year")
}

func (o storeOps) SectionID(ctx context.Context, schoolID, classID, yearID int64, name string) (int64, error) {
	return lookup(o.s.sections, sectionKey(schoolID, classID, yearID, name), "section")
}

func (o storeOps) ParentIDByPhone(ctx context.Context, phone string) (int64, error) {
	return lookup(o.s.parents, phone, "parent")
}

func (o storeOps) StudentIDByAdmission(ctx context.Context, schoolID int64, admissionNumber string) (int64, error) {
	return lookup(o.s.students, scopedKey(schoolID, admissionNumber), "student")
}

func (o storeOps) UserIDByUsername(ctx context.Context, schoolID int64, username string) (int64, error) {
	row, ok := o.s.users[username]
	if !ok || row.rec.SchoolID != schoolID {
		return 0, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return row.id, nil
}

func (o storeOps) FeeStructureID(ctx context.Context, schoolID, yearID int64, name string) (int64, error) {
	for _, row := range o.s.feeStructures {
		if row.rec.SchoolID == schoolID && row.rec.YearID == yearID && row.rec.Name == name {
			return row.id, nil
		}
	}
	return 0, fmt.Errorf("fee_structure %s: %w", name, ErrNotFound)
}

func (o storeOps) FeeAssignmentID(ctx context.Context, studentID, yearID int64) (int64, error) {
	return lookup(o.s.feeAssignments, pairKey(studentID, yearID), "student_fee_assignment")
}

// Wire storeOps into both views.

func (d *memDB) ops() storeOps { return storeOps{db: d, s: d.state} }
func (t *memTx) ops() storeOps { return storeOps{db: t.db, s: t.state} }

func (d *memDB) UpsertSchool(ctx context.Context, r SchoolRecord) (int64, error) {
	return d.ops().UpsertSchool(ctx, r)
}
func (d *memDB) UpsertBranch(ctx context.Context, r BranchRecord) (int64, error) {
	return d.ops().UpsertBranch(ctx, r)
}
func (d *memDB) UpsertClass(ctx context.Context, r ClassRecord) (int64, error) {
	return d.ops().UpsertClass(ctx, r)
}
func (d *memDB) UpsertAcademicYear(ctx context.Context, r AcademicYearRecord) (int64, error) {
	return d.ops().UpsertAcademicYear(ctx, r)
}
func (d *memDB) UpsertSection(ctx context.Context, r SectionRecord) (int64, error) {
	return d.ops().UpsertSection(ctx, r)
}
func (d *memDB) UpsertFeeStructure(ctx context.Context, r FeeStructureRecord) (int64, error) {
	return d.ops().UpsertFeeStructure(ctx, r)
}
func (d *memDB) UpsertParent(ctx context.Context, r ParentRecord) (int64, error) {
	return d.ops().UpsertParent(ctx, r)
}
func (d *memDB) UpsertStudent(ctx context.Context, r StudentRecord) (int64, error) {
	return d.ops().UpsertStudent(ctx, r)
}
func (d *memDB) UpsertRelationship(ctx context.Context, r RelationshipRecord) error {
	return d.ops().UpsertRelationship(ctx, r)
}
func (d *memDB) UpsertEnrollment(ctx context.Context, r EnrollmentRecord) (int64, error) {
	return d.ops().UpsertEnrollment(ctx, r)
}
func (d *memDB) UpsertFeeAssignment(ctx context.Context, r FeeAssignmentRecord) (int64, error) {
	return d.ops().UpsertFeeAssignment(ctx, r)
}
func (d *memDB) InsertFeePayment(ctx context.Context, r FeePaymentRecord) error {
	return d.ops().InsertFeePayment(ctx, r)
}
func (d *memDB) UpsertUser(ctx context.Context, r UserRecord) (int64, error) {
	return d.ops().UpsertUser(ctx, r)
}
func (d *memDB) UpsertTeacherAssignment(ctx context.Context, r TeacherAssignmentRecord) error {
	return d.ops().UpsertTeacherAssignment(ctx, r)
}
func (d *memDB) SchoolIDByCode(ctx context.Context, code string) (int64, error) {
	return d.ops().SchoolIDByCode(ctx, code)
}
func (d *memDB) BranchID(ctx context.Context, schoolID int64, code string) (int64, error) {
	return d.ops().BranchID(ctx, schoolID, code)
}
func (d *memDB) ClassID(ctx context.Context, schoolID int64, name string) (int64, error) {
	return d.ops().ClassID(ctx, schoolID, name)
}
func (d *memDB) YearID(ctx context.Context, schoolID int64, name string) (int64, error) {
	return d.ops().YearID(ctx, schoolID, name)
}
func (d *memDB) SectionID(ctx context.Context, schoolID, classID, yearID int64, name string) (int64, error) {
	return d.ops().SectionID(ctx, schoolID, classID, yearID, name)
}
func (d *memDB) ParentIDByPhone(ctx context.Context, phone string) (int64, error) {
	return d.ops().ParentIDByPhone(ctx, phone)
}
func (d *memDB) StudentIDByAdmission(ctx context.Context, schoolID int64, adm string) (int64, error) {
	return d.ops().StudentIDByAdmission(ctx, schoolID, adm)
}
func (d *memDB) UserIDByUsername(ctx context.Context, schoolID int64, username string) (int64, error) {
	return d.ops().UserIDByUsername(ctx, schoolID, username)
}
func (d *memDB) FeeStructureID(ctx context.Context, schoolID, yearID int64, name string) (int64, error) {
	return d.ops().FeeStructureID(ctx, schoolID, yearID, name)
}
func (d *memDB) FeeAssignmentID(ctx context.Context, studentID, yearID int64) (int64, error) {
	return d.ops().FeeAssignmentID(ctx, studentID, yearID)
}

func (t *memTx) UpsertSchool(ctx context.Context, r SchoolRecord) (int64, error) {
	return t.ops().UpsertSchool(ctx, r)
}
func (t *memTx) UpsertBranch(ctx context.Context, r BranchRecord) (int64, error) {
	return t.ops().UpsertBranch(ctx, r)
}
func (t *memTx) UpsertClass(ctx context.Context, r ClassRecord) (int64, error) {
	return t.ops().UpsertClass(ctx, r)
}
func (t *memTx) UpsertAcademicYear(ctx context.Context, r AcademicYearRecord) (int64, error) {
	return t.ops().UpsertAcademicYear(ctx, r)
}
func (t *memTx) UpsertSection(ctx context.Context, r SectionRecord) (int64, error) {
	return t.ops().UpsertSection(ctx, r)
}
func (t *memTx) UpsertFeeStructure(ctx context.Context, r FeeStructureRecord) (int64, error) {
	return t.ops().UpsertFeeStructure(ctx, r)
}
func (t *memTx) UpsertParent(ctx context.Context, r ParentRecord) (int64, error) {
	return t.ops().UpsertParent(ctx, r)
}
func (t *memTx) UpsertStudent(ctx context.Context, r StudentRecord) (int64, error) {
	return t.ops().UpsertStudent(ctx, r)
}
func (t *memTx) UpsertRelationship(ctx context.Context, r RelationshipRecord) error {
	return t.ops().UpsertRelationship(ctx, r)
}
func (t *memTx) UpsertEnrollment(ctx context.Context, r EnrollmentRecord) (int64, error) {
	return t.ops().UpsertEnrollment(ctx, r)
}
func (t *memTx) UpsertFeeAssignment(ctx context.Context, r FeeAssignmentRecord) (int64, error) {
	return t.ops().UpsertFeeAssignment(ctx, r)
}
func (t *memTx) InsertFeePayment(ctx context.Context, r FeePaymentRecord) error {
	return t.ops().InsertFeePayment(ctx, r)
}
func (t *memTx) UpsertUser(ctx context.Context, r UserRecord) (int64, error) {
	return t.ops().UpsertUser(ctx, r)
}
func (t *memTx) UpsertTeacherAssignment(ctx context.Context, r TeacherAssignmentRecord) error {
	return t.ops().UpsertTeacherAssignment(ctx, r)
}
func (t *memTx) SchoolIDByCode(ctx context.Context, code string) (int64, error) {
	return t.ops().SchoolIDByCode(ctx, code)
}
func (t *memTx) BranchID(ctx context.Context, schoolID int64, code string) (int64, error) {
	return t.ops().BranchID(ctx, schoolID, code)
}
func (t *memTx) ClassID(ctx context.Context, schoolID int64, name string) (int64, error) {
	return t.ops().ClassID(ctx, schoolID, name)
}
func (t *memTx) YearID(ctx context.Context, schoolID int64, name string) (int64, error) {
	return t.ops().YearID(ctx, schoolID, name)
}
func (t *memTx) SectionID(ctx context.Context, schoolID, classID, yearID int64, name string) (int64, error) {
	return t.ops().SectionID(ctx, schoolID, classID, yearID, name)
}
func (t *memTx) ParentIDByPhone(ctx context.Context, phone string) (int64, error) {
	return t.ops().ParentIDByPhone(ctx, phone)
}
func (t *memTx) StudentIDByAdmission(ctx context.Context, schoolID int64, adm string) (int64, error) {
	return t.ops().StudentIDByAdmission(ctx, schoolID, adm)
}
func (t *memTx) UserIDByUsername(ctx context.Context, schoolID int64, username string) (int64, error) {
	return t.ops().UserIDByUsername(ctx, schoolID, username)
}
func (t *memTx) FeeStructureID(ctx context.Context, schoolID, yearID int64, name string) (int64, error) {
	return t.ops().FeeStructureID(ctx, schoolID, yearID, name)
}
func (t *memTx) FeeAssignmentID(ctx context.Context, studentID, yearID int64) (int64, error) {
	return t.ops().FeeAssignmentID(ctx, studentID, yearID)
}

var (
	_ DB      = (*memDB)(nil)
	_ TxStore = (*memTx)(nil)
)
