package engine

// GroupError records a rolled-back group in the run summary.
type GroupError struct {
	School string `json:"school"`
	Error  string `json:"error"`
}

// SetupReport is the summary returned by a unified setup run. Counts mean
// rows processed (successful upsert calls), not distinct entities: the
// store stays idempotent either way, but re-uploading N rows for one
// existing school still reports N.
type SetupReport struct {
	Success       bool         `json:"success"`
	TotalRecords  int          `json:"totalRecords"`
	Schools       int          `json:"schools"`
	Branches      int          `json:"branches"`
	Classes       int          `json:"classes"`
	AcademicYears int          `json:"academicYears"`
	Sections      int          `json:"sections"`
	FeeStructures int          `json:"feeStructures"`
	Errors        []GroupError `json:"errors"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// NewSetupReport returns an empty report with Errors non-nil so the JSON
// always carries an array.
func NewSetupReport(totalRecords int) *SetupReport {
	return &SetupReport{
		Success:      true,
		TotalRecords: totalRecords,
		Errors:       []GroupError{},
	}
}

// AddError records a rolled-back group.
func (r *SetupReport) AddError(school string, err error) {
	r.Errors = append(r.Errors, GroupError{School: school, Error: err.Error()})
}

// AddWarning records a non-fatal condition (category defaulted, optional
// stage failed).
func (r *SetupReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Partial reports whether the run committed some groups but not all.
// Callers surface this as HTTP 207.
func (r *SetupReport) Partial() bool {
	committed := r.Schools + r.Branches + r.Classes + r.AcademicYears + r.Sections + r.FeeStructures
	return len(r.Errors) > 0 && committed > 0
}

// MigrationSummary maps table name to the number of rows imported.
type MigrationSummary map[string]int

// RowError records one failed row in a family upload.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// FamilyReport is the summary returned by a family bulk upload.
type FamilyReport struct {
	TotalRows   int        `json:"total_rows"`
	SuccessRows int        `json:"success_rows"`
	FailedRows  int        `json:"failed_rows"`
	Errors      []RowError `json:"errors"`
}
