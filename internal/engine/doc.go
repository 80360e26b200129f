// Package engine reconciles bulk tabular uploads describing a school
// hierarchy into the relational store.
//
// The engine consumes pre-parsed rows (see internal/ingest) and runs one of
// three reconciliation paths:
//
//   - Unified setup: one CSV where a single row may describe a school, its
//     branches, classes, academic years, sections and fee structures all at
//     once. Rows are grouped by school code and each group is processed in
//     its own transaction (SetupEngine).
//
//   - Migration: per-table imports, either a single CSV targeting one table
//     or a multi-sheet workbook where each sheet maps to a table. Importers
//     run in dependency order inside one transaction (MigrationEngine).
//
//   - Family upload: one row per parent+student pair, provisioning login
//     users alongside the domain records (FamilyImporter).
//
// All writes go through the Store interface as natural-key upserts, so
// re-running the same upload never duplicates rows. Derived values the
// source does not carry (fee component splits, installment schedules,
// category normalization, grades) come from DeriveConfig.
package engine
