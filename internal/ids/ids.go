// Package ids generates the identifiers used across the pipeline: monotonic
// analysis ids (ulid) and stable, content-addressed node/file ids (sha256),
// following the teacher's pkg/ingestion/ids.go hashing conventions.
package ids

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewAnalysisID returns a fresh, URL-safe, lexicographically sortable id
// whose prefix encodes the current millisecond so natural ordering
// approximates creation time, per the data model's AnalysisRecord contract.
func NewAnalysisID() string {
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		// entropy source failure is effectively unreachable with crypto/rand;
		// fall back to a zero-entropy ulid rather than panic.
		id, _ = ulid.New(ms, nil)
	}
	return strings.ToLower(id.String())
}

// NewNodeID returns a node id scoped to one analysis build: it hashes the
// owning AnalysisRecord's id together with the node's root-relative path, so
// the same repository path gets a fresh, unrelated id on every new analysis
// rather than being reused across builds, mirroring GenerateFileID in the
// teacher's ids.go but with the run identity folded into the hash input.
func NewNodeID(analysisID, relPath string) string {
	sum := sha256.Sum256([]byte(analysisID + "|" + normalizePath(relPath)))
	return "node:" + hex.EncodeToString(sum[:])
}

// ParsedFileKey returns the stable key used to dedupe ParsedFile rows on
// (analysisID, path).
func ParsedFileKey(analysisID, relPath string) string {
	return analysisID + "|" + normalizePath(relPath)
}

// NewFunctionID hashes a function's identity out of its enclosing file,
// name, and source span so that re-parsing the same unchanged file yields
// the same id, mirroring GenerateFunctionID in the teacher's ids.go. The
// signature text itself is excluded from the hash for stability across
// cosmetic signature changes.
func NewFunctionID(filePath, name string, startOffset, endOffset int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d", normalizePath(filePath), name, startOffset, endOffset)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "/")
}
