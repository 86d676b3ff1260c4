package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repoanalyzer/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestBuildTreeExcludesNodeModulesAndCountsLanguages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "export const x = 1;\n")
	writeFile(t, root, "b.py", "def foo():\n    pass\n")
	writeFile(t, root, "node_modules/ignored.js", "module.exports = {};\n")

	w := New(nil)
	node, stats, err := w.BuildTree("test-analysis", root, Options{MaxFileSizeKB: 1000, IncludeTests: true})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 1, stats.LanguageBreakdown["typescript"])
	assert.Equal(t, 1, stats.LanguageBreakdown["python"])

	names := childNames(node)
	assert.ElementsMatch(t, []string{"a.ts", "b.py"}, names)
}

func TestBuildTreeEmptyRepoYieldsEmptyChildren(t *testing.T) {
	root := t.TempDir()
	w := New(nil)
	node, stats, err := w.BuildTree("test-analysis", root, Options{MaxFileSizeKB: 1000, IncludeTests: true})
	require.NoError(t, err)
	assert.Empty(t, node.Children)
	assert.Equal(t, 0, stats.TotalFiles)
	assert.Equal(t, 0, stats.TotalDirectories)
}

func TestBuildTreeSiblingOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.ts", "")
	writeFile(t, root, "a.ts", "")
	writeFile(t, root, "zdir/file.ts", "")
	writeFile(t, root, "Adir/file.ts", "")

	w := New(nil)
	node, _, err := w.BuildTree("test-analysis", root, Options{MaxFileSizeKB: 1000, IncludeTests: true})
	require.NoError(t, err)

	var names []string
	for _, c := range node.Children {
		names = append(names, c.Name)
	}
	// directories first (case-insensitive ascending), then files
	assert.Equal(t, []string{"Adir", "zdir", "a.ts", "b.ts"}, names)
}

func TestBuildTreeMaxFileSizeExcludesLargeFiles(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, 2048)
	writeFile(t, root, "big.ts", string(big))
	writeFile(t, root, "small.ts", "x")

	w := New(nil)
	_, stats, err := w.BuildTree("test-analysis", root, Options{MaxFileSizeKB: 1, IncludeTests: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
}

func TestBuildTreeRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "app.ts", "")
	writeFile(t, root, "debug.log", "")

	w := New(nil)
	_, stats, err := w.BuildTree("test-analysis", root, Options{MaxFileSizeKB: 1000, IncludeTests: true})
	require.NoError(t, err)
	// .gitignore itself and app.ts; debug.log is ignored
	assert.Equal(t, 2, stats.TotalFiles)
}

func TestBuildTreeZeroLineFilesReportZero(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "empty.ts", "")

	w := New(nil)
	node, _, err := w.BuildTree("test-analysis", root, Options{MaxFileSizeKB: 1000, IncludeTests: true})
	require.NoError(t, err)
	require.Len(t, node.Children, 1)
	assert.Equal(t, 0, node.Children[0].Metadata.LinesOfCode)
}

func childNames(n *model.Node) []string {
	var names []string
	for _, c := range n.Children {
		names = append(names, c.Name)
	}
	return names
}
