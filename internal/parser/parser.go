package parser

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/kraklabs/repoanalyzer/internal/model"
)

// Parser extracts a ParsedFile per the source parser's extraction
// contract: parsing is best-effort, never returns an error for a
// recognized-but-malformed file, and yields nil for anything unparseable.
// This mirrors the shape of the teacher's CodeParser interface
// (pkg/ingestion/parser_interface.go), generalized from (functions, defines,
// calls edges) to this spec's (imports, exports, functions, classes).
type Parser interface {
	Parse(ctx context.Context, relPath string, content []byte) (*model.ParsedFile, error)
}

// MaxParseFileBytes is the parse-specific size cap: individual files above
// this are skipped even if they passed the walker's (separately
// configurable) maxFileSizeKB filter, per the source parser's default
// parse-specific size cap of 500 KiB.
const MaxParseFileBytes = 500 * 1024

// Engine dispatches a file to the language-appropriate extractor. It is the
// single entry point the pipeline calls per file, safe for concurrent use by
// the parsing step's bounded worker pool.
type Engine struct {
	logger    *slog.Logger
	ts        *TreeSitterExtractor
	truncated int64
}

// NewEngine constructs the dispatching engine. logger may be nil.
func NewEngine(logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ts, err := newTreeSitterExtractor(logger)
	if err != nil {
		return nil, err
	}
	return &Engine{logger: logger, ts: ts}, nil
}

// Parse dispatches relPath's content to the extractor for its detected
// language. Unrecognized languages, files over MaxParseFileBytes and parse
// failures return nil; Parse has no error result, per the extraction
// contract's "parse reports no errors to the caller."
func (e *Engine) Parse(ctx context.Context, relPath string, content []byte) *model.ParsedFile {
	if len(content) > MaxParseFileBytes {
		atomic.AddInt64(&e.truncated, 1)
		return nil
	}

	detection := Detect(relPath, content)
	if !IsParseable(detection.Language) {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("parser.extract.panic", "path", relPath, "recovered", r)
		}
	}()

	var pf *model.ParsedFile
	var err error
	switch detection.Language {
	case "typescript", "javascript":
		pf, err = e.ts.Extract(ctx, detection.Language, relPath, content)
	case "python":
		pf, err = ExtractPython(relPath, content)
	}
	if err != nil {
		e.logger.Warn("parser.extract.error", "path", relPath, "err", err)
		return nil
	}
	return pf
}

// TruncatedCount reports how many files were skipped for exceeding
// MaxParseFileBytes.
func (e *Engine) TruncatedCount() int { return int(atomic.LoadInt64(&e.truncated)) }

// ResetTruncatedCount resets the truncation counter, mirroring the
// teacher's CodeParser.ResetTruncatedCount.
func (e *Engine) ResetTruncatedCount() { atomic.StoreInt64(&e.truncated, 0) }

// ReadFile is a small helper used by the pipeline to load file content. It
// reads the whole file; the parse-specific size cap is applied afterwards by
// Engine.Parse.
func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
