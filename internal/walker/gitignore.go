package walker

import (
	"bufio"
	"os"
	"strings"
)

// ignoreRule is one parsed line of a .gitignore file. There is no
// gitignore-rule-file parser anywhere in the retrieved corpus, so this
// parsing is hand-written; actual glob matching is delegated to doublestar
// (see matcher.go), which is the corpus's own glob library
// (flyingrobots-go-redis-work-queue/internal/producer/producer.go).
type ignoreRule struct {
	pattern  string
	negate   bool
	dirOnly  bool
}

// parseGitignore reads line-oriented gitignore rules: blank lines and '#'
// comments are skipped, a leading '!' negates the rule, and a trailing '/'
// marks a directory-only rule.
func parseGitignore(path string) ([]ignoreRule, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rules []ignoreRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule := ignoreRule{}
		if strings.HasPrefix(line, "!") {
			rule.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			rule.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if !strings.Contains(line, "/") {
			line = "**/" + line
		}
		line = strings.TrimPrefix(line, "/")
		rule.pattern = line
		rules = append(rules, rule)
	}
	return rules, scanner.Err()
}

// matchesIgnoreRules applies rules in order; the last matching rule wins,
// with a negated match meaning "do not ignore."
func matchesIgnoreRules(relPath string, isDir bool, rules []ignoreRule) bool {
	ignored := false
	for _, r := range rules {
		if r.dirOnly && !isDir {
			continue
		}
		if globMatch(r.pattern, relPath) {
			ignored = !r.negate
		}
	}
	return ignored
}
