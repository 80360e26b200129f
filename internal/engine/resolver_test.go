package engine

import (
	"context"
	"testing"
)

// ----------------------------------------------------------------------------
// Resolver Tests
// ----------------------------------------------------------------------------

func TestResolverMissLooksLikeParentNotFound(t *testing.T) {
	res := NewResolver(newMemDB())

	_, err := res.SchoolID(context.Background(), "GHOST")
	if !IsKind(err, KindParentNotFound) {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindParentNotFound)
	}
}

func TestResolverCachesHits(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	schoolID, err := db.UpsertSchool(ctx, SchoolRecord{Code: "SCH1", Name: "GV"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res := NewResolver(db)
	got, err := res.SchoolID(ctx, "SCH1")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if got != schoolID {
		t.Fatalf("id = %d, want %d", got, schoolID)
	}

	// Remove the row underneath; a cached resolver must not notice.
	delete(db.state.schools, "SCH1")
	got2, err := res.SchoolID(ctx, "SCH1")
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if got2 != schoolID {
		t.Errorf("cached id = %d, want %d", got2, schoolID)
	}
}

func TestResolverCachesFeeLookups(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	fsID, err := db.UpsertFeeStructure(ctx, FeeStructureRecord{SchoolID: 1, ClassID: 2, YearID: 3, Name: "5-2024-25-Fee"})
	if err != nil {
		t.Fatalf("seed structure: %v", err)
	}
	faID, err := db.UpsertFeeAssignment(ctx, FeeAssignmentRecord{StudentID: 7, FeeStructureID: fsID, YearID: 3})
	if err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	res := NewResolver(db)
	if got, err := res.FeeStructureID(ctx, 1, 3, "5-2024-25-Fee"); err != nil || got != fsID {
		t.Fatalf("structure resolve: id=%d err=%v, want %d", got, err, fsID)
	}
	if got, err := res.FeeAssignmentID(ctx, 7, 3); err != nil || got != faID {
		t.Fatalf("assignment resolve: id=%d err=%v, want %d", got, err, faID)
	}

	// Remove the rows underneath; cached resolvers must not notice.
	clear(db.state.feeStructures)
	clear(db.state.feeAssignments)

	if got, err := res.FeeStructureID(ctx, 1, 3, "5-2024-25-Fee"); err != nil || got != fsID {
		t.Errorf("cached structure: id=%d err=%v, want %d", got, err, fsID)
	}
	if got, err := res.FeeAssignmentID(ctx, 7, 3); err != nil || got != faID {
		t.Errorf("cached assignment: id=%d err=%v, want %d", got, err, faID)
	}
}

func TestResolverOptionalBranch(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	schoolID, _ := db.UpsertSchool(ctx, SchoolRecord{Code: "SCH1", Name: "GV"})
	branchID, _ := db.UpsertBranch(ctx, BranchRecord{SchoolID: schoolID, Code: "MAIN", Name: "Main"})

	res := NewResolver(db)

	// Empty code resolves to nil without touching the store.
	id, err := res.OptionalBranchID(ctx, schoolID, "")
	if err != nil || id != nil {
		t.Errorf("empty code: id=%v err=%v, want nil/nil", id, err)
	}

	// Unknown code also resolves to nil: branch is the optional ancestor.
	id, err = res.OptionalBranchID(ctx, schoolID, "GHOST")
	if err != nil || id != nil {
		t.Errorf("unknown code: id=%v err=%v, want nil/nil", id, err)
	}

	id, err = res.OptionalBranchID(ctx, schoolID, "MAIN")
	if err != nil {
		t.Fatalf("known code: %v", err)
	}
	if id == nil || *id != branchID {
		t.Errorf("id = %v, want %d", id, branchID)
	}
}

func TestResolverScopesKeysBySchool(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	s1, _ := db.UpsertSchool(ctx, SchoolRecord{Code: "SCH1", Name: "A"})
	s2, _ := db.UpsertSchool(ctx, SchoolRecord{Code: "SCH2", Name: "B"})
	c1, _ := db.UpsertClass(ctx, ClassRecord{SchoolID: s1, Name: "5"})
	c2, _ := db.UpsertClass(ctx, ClassRecord{SchoolID: s2, Name: "5"})

	res := NewResolver(db)
	got1, err := res.ClassID(ctx, s1, "5")
	if err != nil {
		t.Fatalf("resolve s1: %v", err)
	}
	got2, err := res.ClassID(ctx, s2, "5")
	if err != nil {
		t.Fatalf("resolve s2: %v", err)
	}
	if got1 != c1 || got2 != c2 || got1 == got2 {
		t.Errorf("ids = %d, %d; want distinct %d, %d", got1, got2, c1, c2)
	}
}
