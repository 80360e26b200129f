package engine

import (
	"context"
	"errors"
	"fmt"
)

// Resolver turns human-readable natural keys into surrogate ids. Required
// ancestors resolve lookup-or-fail: a miss becomes KindParentNotFound,
// which a mandatory stage escalates to group rollback. Optional ancestors
// (branch) resolve to nil instead of failing.
//
// Results are cached for the lifetime of one reconciliation run. The store
// handed in is the run's transaction, so lookups see rows created earlier
// in the same group.
type Resolver struct {
	store Store

	schools    map[string]int64
	branches   map[string]int64
	classes    map[string]int64
	years      map[string]int64
	sections   map[string]int64
	students   map[string]int64
	parents    map[string]int64
	users      map[string]int64
	feeStructs map[string]int64
	feeAssigns map[string]int64
}

// NewResolver creates a resolver over the given store (normally a TxStore).
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store:      store,
		schools:    make(map[string]int64),
		branches:   make(map[string]int64),
		classes:    make(map[string]int64),
		years:      make(map[string]int64),
		sections:   make(map[string]int64),
		students:   make(map[string]int64),
		parents:    make(map[string]int64),
		users:      make(map[string]int64),
		feeStructs: make(map[string]int64),
		feeAssigns: make(map[string]int64),
	}
}

func (r *Resolver) resolve(ctx context.Context, cache map[string]int64, key, entity, display string,
	lookup func(context.Context) (int64, error)) (int64, error) {

	if id, ok := cache[key]; ok {
		return id, nil
	}
	id, err := lookup(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, parentNotFound(entity, display)
		}
		return 0, err
	}
	cache[key] = id
	return id, nil
}

// SchoolID resolves a school code.
func (r *Resolver) SchoolID(ctx context.Context, code string) (int64, error) {
	return r.resolve(ctx, r.schools, code, "school", code, func(ctx context.Context) (int64, error) {
		return r.store.SchoolIDByCode(ctx, code)
	})
}

// OptionalBranchID resolves a branch code to an id, or nil when the code is
// empty or the branch does not exist. Only store failures propagate.
func (r *Resolver) OptionalBranchID(ctx context.Context, schoolID int64, code string) (*int64, error) {
	if code == "" {
		return nil, nil
	}
	key := fmt.Sprintf("%d/%s", schoolID, code)
	if id, ok := r.branches[key]; ok {
		return &id, nil
	}
	id, err := r.store.BranchID(ctx, schoolID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	r.branches[key] = id
	return &id, nil
}

// ClassID resolves a class name within a school.
func (r *Resolver) ClassID(ctx context.Context, schoolID int64, name string) (int64, error) {
	key := fmt.Sprintf("%d/%s", schoolID, name)
	return r.resolve(ctx, r.classes, key, "class", name, func(ctx context.Context) (int64, error) {
		return r.store.ClassID(ctx, schoolID, name)
	})
}

// YearID resolves an academic year name within a school.
func (r *Resolver) YearID(ctx context.Context, schoolID int64, name string) (int64, error) {
	key := fmt.Sprintf("%d/%s", schoolID, name)
	return r.resolve(ctx, r.years, key, "academic_year", name, func(ctx context.Context) (int64, error) {
		return r.store.YearID(ctx, schoolID, name)
	})
}

// SectionID resolves a section by its full natural key.
func (r *Resolver) SectionID(ctx context.Context, schoolID, classID, yearID int64, name string) (int64, error) {
	key := fmt.Sprintf("%d/%d/%d/%s", schoolID, classID, yearID, name)
	return r.resolve(ctx, r.sections, key, "section", name, func(ctx context.Context) (int64, error) {
		return r.store.SectionID(ctx, schoolID, classID, yearID, name)
	})
}

// StudentID resolves an admission number within a school.
func (r *Resolver) StudentID(ctx context.Context, schoolID int64, admissionNumber string) (int64, error) {
	key := fmt.Sprintf("%d/%s", schoolID, admissionNumber)
	return r.resolve(ctx, r.students, key, "student", admissionNumber, func(ctx context.Context) (int64, error) {
		return r.store.StudentIDByAdmission(ctx, schoolID, admissionNumber)
	})
}

// ParentID resolves a parent phone number.
func (r *Resolver) ParentID(ctx context.Context, phone string) (int64, error) {
	return r.resolve(ctx, r.parents, phone, "parent", phone, func(ctx context.Context) (int64, error) {
		return r.store.ParentIDByPhone(ctx, phone)
	})
}

// UserID resolves a username within a school.
func (r *Resolver) UserID(ctx context.Context, schoolID int64, username string) (int64, error) {
	key := fmt.Sprintf("%d/%s", schoolID, username)
	return r.resolve(ctx, r.users, key, "user", username, func(ctx context.Context) (int64, error) {
		return r.store.UserIDByUsername(ctx, schoolID, username)
	})
}

// FeeStructureID resolves a structure name within (school, year).
func (r *Resolver) FeeStructureID(ctx context.Context, schoolID, yearID int64, name string) (int64, error) {
	key := fmt.Sprintf("%d/%d/%s", schoolID, yearID, name)
	return r.resolve(ctx, r.feeStructs, key, "fee_structure", name, func(ctx context.Context) (int64, error) {
		return r.store.FeeStructureID(ctx, schoolID, yearID, name)
	})
}

// FeeAssignmentID resolves the fee assignment for (student, year).
func (r *Resolver) FeeAssignmentID(ctx context.Context, studentID, yearID int64) (int64, error) {
	key := fmt.Sprintf("%d/%d", studentID, yearID)
	display := fmt.Sprintf("student=%d year=%d", studentID, yearID)
	return r.resolve(ctx, r.feeAssigns, key, "student_fee_assignment", display, func(ctx context.Context) (int64, error) {
		return r.store.FeeAssignmentID(ctx, studentID, yearID)
	})
}
