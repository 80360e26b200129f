// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// resetTables lists every reconciliation table, children before parents
// so the truncation order never trips a foreign key.
var resetTables = []string{
	"fee_payments",
	"student_fee_assignments",
	"teacher_assignments",
	"student_enrollments",
	"parent_student_relationships",
	"students",
	"parents",
	"fee_structures",
	"sections",
	"academic_years",
	"classes",
	"branches",
	"users",
	"schools",
}

// Resetter wipes all imported data. Destructive, exposed only behind the
// API-key-guarded admin route.
type Resetter struct {
	pool *pgxpool.Pool
}

func NewResetter(pool *pgxpool.Pool) *Resetter {
	return &Resetter{pool: pool}
}

// ResetAll truncates every reconciliation table and restarts identities.
func (r *Resetter) ResetAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	stmt := "TRUNCATE " + strings.Join(resetTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("reset all: %w", err)
	}
	return nil
}
