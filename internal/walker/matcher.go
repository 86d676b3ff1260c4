package walker

import "github.com/bmatcuk/doublestar/v4"

// globMatch wraps doublestar.Match, replacing the teacher's hand-rolled
// matchesGlob/matchGlobPattern/matchGlobRecursive/matchCharClass engine in
// pkg/ingestion/repo_loader.go with the corpus's own ecosystem library
// (seen performing the identical job in
// flyingrobots-go-redis-work-queue/internal/producer/producer.go).
func globMatch(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
