// Package model holds the domain types shared by the queue, store, pipeline
// and HTTP layers: AnalysisRecord and everything it owns.
package model

import "time"

// Status is a position on the AnalysisRecord status DAG. Transitions only
// move forward: queued -> processing -> (completed | failed | cancelled).
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// CanTransition reports whether moving from s to next is allowed by the DAG.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Options carries the per-analysis knobs accepted at intake.
type Options struct {
	IncludeTests    bool     `json:"includeTests"`
	MaxFileSizeKB   int      `json:"maxFileSizeKB"`
	Languages       []string `json:"languages,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitempty"`
	DeepAnalysis    bool     `json:"deepAnalysis"`
}

// DefaultOptions returns the options in effect when a client omits the field.
func DefaultOptions() Options {
	return Options{
		IncludeTests:  true,
		MaxFileSizeKB: 1000,
	}
}

// AnalysisRecord is the top-level unit of work.
type AnalysisRecord struct {
	ID             string     `json:"id"`
	RepositoryURL  string     `json:"repositoryUrl"`
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	Branch         string     `json:"branch"`
	CommitSha      string     `json:"commitSha,omitempty"`
	Status         Status     `json:"status"`
	Options        Options    `json:"options"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// NodeKind tags a Node as either a file or a directory.
type NodeKind string

const (
	NodeFile NodeKind = "file"
	NodeDir  NodeKind = "directory"
)

// Metadata describes a file node. Zero value for directory nodes.
type Metadata struct {
	Language     string    `json:"language"`
	Extension    string    `json:"extension"`
	Size         int64     `json:"size"`
	LinesOfCode  int       `json:"linesOfCode"`
	IsTest       bool      `json:"isTest"`
	IsConfig     bool      `json:"isConfig"`
	LastModified time.Time `json:"lastModified"`
}

// Node is one entry of the recursive file tree. Directory nodes carry
// Children (sorted: directories first, then files, case-insensitive name
// ascending within each group); file nodes carry Metadata.
type Node struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Kind     NodeKind  `json:"type"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Children []*Node   `json:"children,omitempty"`
}

// FileTreeStatistics is the aggregate computed over one Node tree.
type FileTreeStatistics struct {
	TotalFiles        int            `json:"totalFiles"`
	TotalDirectories  int            `json:"totalDirectories"`
	TotalLines        int64          `json:"totalLines"`
	TotalSize         int64          `json:"totalSize"`
	LanguageBreakdown map[string]int `json:"languageBreakdown"`
	SizeBreakdown     SizeBreakdown  `json:"sizeBreakdown"`
}

// SizeBreakdown is rendered nested under FileTreeStatistics on the tree
// endpoint. NewSizeBreakdown derives it from the totals already tracked on
// FileTreeStatistics, so callers never need to compute AverageFileSize by
// hand.
type SizeBreakdown struct {
	TotalSize       int64   `json:"totalSize"`
	AverageFileSize float64 `json:"averageFileSize"`
}

// NewSizeBreakdown computes a SizeBreakdown from total size and file count.
func NewSizeBreakdown(totalSize int64, totalFiles int) SizeBreakdown {
	sb := SizeBreakdown{TotalSize: totalSize}
	if totalFiles > 0 {
		sb.AverageFileSize = float64(totalSize) / float64(totalFiles)
	}
	return sb
}

// FileTreeArtifact is bound 1:1 to an AnalysisRecord that reached completed.
type FileTreeArtifact struct {
	AnalysisID string             `json:"analysisId"`
	Root       *Node              `json:"root"`
	Statistics FileTreeStatistics `json:"statistics"`
}

// Specifier is one named binding inside an Import clause.
type Specifier struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

// Import is one import statement recognized in a parseable file.
type Import struct {
	Source      string      `json:"source"`
	Specifiers  []Specifier `json:"specifiers"`
	IsTypeOnly  bool        `json:"isTypeOnly"`
}

// ExportKind classifies an Export.
type ExportKind string

const (
	ExportNamed   ExportKind = "named"
	ExportDefault ExportKind = "default"
	ExportAll     ExportKind = "all"
)

// Export is one export binding recognized in a parseable file.
type Export struct {
	Name   string     `json:"name"`
	Kind   ExportKind `json:"kind"`
	Source string     `json:"source,omitempty"`
}

// Param is one function parameter.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Location pinpoints a declaration inside its source file.
type Location struct {
	StartOffset int  `json:"startOffset"`
	EndOffset   int  `json:"endOffset"`
	Line        *int `json:"line,omitempty"`
	Column      *int `json:"column,omitempty"`
}

// Function is one function or method declaration.
type Function struct {
	Name        string     `json:"name"`
	Params      []Param    `json:"params"`
	ReturnType  string     `json:"returnType,omitempty"`
	IsAsync     bool       `json:"isAsync"`
	IsGenerator bool       `json:"isGenerator"`
	Location    Location   `json:"location"`
	Docstring   string     `json:"docstring,omitempty"`
	Modifiers   []string   `json:"modifiers,omitempty"`
}

// Property is one class field declaration.
type Property struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Class is one class declaration.
type Class struct {
	Name       string     `json:"name"`
	Methods    []Function `json:"methods"`
	Properties []Property `json:"properties"`
	SuperClass string     `json:"superClass,omitempty"`
	Decorators []string   `json:"decorators,omitempty"`
	Location   Location   `json:"location"`
	Docstring  string     `json:"docstring,omitempty"`
}

// ParsedFile is the structural extraction for one parseable file, keyed by
// (AnalysisID, Path).
type ParsedFile struct {
	AnalysisID string     `json:"analysisId"`
	Path       string     `json:"path"`
	Language   string     `json:"language"`
	Imports    []Import   `json:"imports"`
	Exports    []Export   `json:"exports"`
	Functions  []Function `json:"functions"`
	Classes    []Class    `json:"classes"`
}

// Progress is the opaque record reported through the job queue's status call.
type Progress struct {
	CurrentStep    string   `json:"currentStep"`
	Percentage     int      `json:"percentage"`
	StepsCompleted []string `json:"stepsCompleted"`
	StepsTotal     int      `json:"stepsTotal"`
}
