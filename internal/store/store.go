// Package store persists AnalysisRecord, FileTreeArtifact, and ParsedFile
// rows. It follows the corpus's raw database/sql idiom (no ORM, no query
// builder) as seen in flyingrobots-go-redis-work-queue's
// internal/job-budgeting/budget_manager.go: hand-written parameterized SQL
// executed directly against *sql.DB.
package store

import (
	"context"

	"github.com/kraklabs/repoanalyzer/internal/model"
)

// ListFilter narrows the List operation.
type ListFilter struct {
	Limit  int
	Offset int
	Status model.Status // empty means "any"
}

// ListResult is a single page of AnalysisRecords plus the total matching
// count, for pagination at the HTTP boundary.
type ListResult struct {
	Analyses []model.AnalysisRecord
	Total    int
}

// Record is the typed operation set described by the record store's
// component design: a small contract over AnalysisRecord and its
// dependent artifacts.
type Record interface {
	// Create inserts a queued record. Fails on duplicate id.
	Create(ctx context.Context, rec model.AnalysisRecord) error

	// FindByID returns a record with its artifacts joined: file tree (if
	// any) and the list of parsed files (if any).
	FindByID(ctx context.Context, id string) (*model.AnalysisRecord, *model.FileTreeArtifact, []model.ParsedFile, error)

	// UpdateStatus atomically transitions status, setting startedAt on
	// first entry to processing and completedAt on entry to completed or
	// failed. errMsg is stored iff status is failed.
	UpdateStatus(ctx context.Context, id string, status model.Status, errMsg string) error

	UpdateCommitSha(ctx context.Context, id string, sha string) error

	List(ctx context.Context, filter ListFilter) (ListResult, error)

	// Delete cascades to the record's FileTree and ParsedFile rows.
	// Idempotent in effect: deleting an unknown id reports an apperror
	// NotFound error.
	Delete(ctx context.Context, id string) error

	SaveFileTree(ctx context.Context, analysisID string, artifact model.FileTreeArtifact) error

	// SaveParsedFiles is idempotent on (analysisID, path): re-saving the
	// same pair is a no-op (upsert).
	SaveParsedFiles(ctx context.Context, analysisID string, files []model.ParsedFile) error

	// Ping reports whether the underlying database connection is healthy.
	Ping(ctx context.Context) error
}
