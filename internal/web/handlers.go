package web

// handlers.go implements the upload endpoints. All three accept a single
// multipart file under the "file" field; XLSX is detected by extension or
// content and parsed per sheet, anything else is treated as CSV.

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/schoolsetu/reconcile/internal/engine"
	"github.com/schoolsetu/reconcile/internal/ingest"
	"github.com/schoolsetu/reconcile/internal/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// upload is a fully buffered multipart file.
type upload struct {
	Filename string
	Format   ingest.Format
	Data     []byte
}

// readUpload extracts the "file" part, capped at the configured size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, badRequest("could not parse upload: " + err.Error())
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest(`missing "file" form field`)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, badRequest("uploaded file is empty")
	}

	return &upload{
		Filename: header.Filename,
		Format:   ingest.DetectFormat(header.Filename, data),
		Data:     data,
	}, nil
}

// rowsFromUpload flattens an upload into rows. For workbooks the first
// sheet with data is used; the single-sheet endpoints do not merge sheets.
func rowsFromUpload(u *upload) ([]engine.Row, error) {
	if u.Format == ingest.FormatXLSX {
		sheets, err := ingest.ReadWorkbook(bytes.NewReader(u.Data))
		if err != nil {
			return nil, badRequest("invalid workbook: " + err.Error())
		}
		for _, sh := range sheets {
			if len(sh.Rows) > 0 {
				return sh.Rows, nil
			}
		}
		return nil, nil
	}
	rows, err := ingest.ReadCSV(bytes.NewReader(u.Data))
	if err != nil {
		return nil, badRequest("invalid csv: " + err.Error())
	}
	return rows, nil
}

// handleUnifiedSetup ingests a whole-hierarchy file and responds with the
// per-school reconciliation report. Full success is 200, a run where some
// school groups committed and others rolled back is 207, a run where
// nothing committed is 422.
func (s *Server) handleUnifiedSetup(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rows, err := rowsFromUpload(u)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	log := logging.WithFields(r.Context(),
		"run_id", uuid.NewString(),
		"upload", u.Filename,
		"rows", len(rows),
	)
	report, err := s.setup.Run(r.Context(), rows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	switch {
	case report.Success:
	case report.Partial():
		status = http.StatusMultiStatus
	default:
		status = http.StatusUnprocessableEntity
	}
	log.Info("unified setup finished",
		"status", status,
		"schools", report.Schools,
		"sections", report.Sections,
		"errors", len(report.Errors),
	)
	writeJSON(w, status, report)
}

// handleMigrate imports legacy data table by table. An XLSX upload is
// treated as a workbook with one sheet per table; a CSV upload needs the
// target table in the ?table= query parameter.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	log := logging.WithFields(r.Context(), "run_id", uuid.NewString(), "upload", u.Filename)

	var summary engine.MigrationSummary
	if u.Format == ingest.FormatXLSX {
		sheets, err := ingest.ReadWorkbook(bytes.NewReader(u.Data))
		if err != nil {
			s.respondError(w, r, badRequest("invalid workbook: "+err.Error()))
			return
		}
		summary, err = s.migrate.RunWorkbook(r.Context(), sheets)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
	} else {
		table := r.URL.Query().Get("table")
		if table == "" {
			s.respondError(w, r, badRequest("table query parameter is required for csv uploads"))
			return
		}
		rows, err := ingest.ReadCSV(bytes.NewReader(u.Data))
		if err != nil {
			s.respondError(w, r, badRequest("invalid csv: "+err.Error()))
			return
		}
		summary, err = s.migrate.RunTable(r.Context(), table, rows)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	log.Info("migration finished", "tables", len(summary))
	writeJSON(w, http.StatusOK, map[string]any{"imported": summary})
}

// handleMigrateTables lists the supported migration tables in import order.
func (s *Server) handleMigrateTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": engine.Tables()})
}

// handleFamilyUpload onboards parent/student pairs. Row failures do not
// abort the run; a mixed outcome is reported as 207.
func (s *Server) handleFamilyUpload(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rows, err := rowsFromUpload(u)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	log := logging.WithFields(r.Context(), "run_id", uuid.NewString(), "upload", u.Filename)

	report, err := s.families.Run(r.Context(), rows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if report.FailedRows > 0 && report.SuccessRows > 0 {
		status = http.StatusMultiStatus
	} else if report.FailedRows > 0 {
		status = http.StatusUnprocessableEntity
	}
	log.Info("family upload finished",
		"success_rows", report.SuccessRows,
		"failed_rows", report.FailedRows,
	)
	writeJSON(w, status, report)
}

// handleReset wipes all imported data. Kept off the upload paths so a
// misconfigured client cannot reach it by accident.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.reset == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "reset not available"})
		return
	}
	if err := s.reset.ResetAll(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("all imported data reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
