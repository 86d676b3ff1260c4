package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAnalysisIDIsURLSafeAndSortable(t *testing.T) {
	a := NewAnalysisID()
	b := NewAnalysisID()
	assert.NotEqual(t, a, b)
	assert.True(t, a <= b || a >= b) // lexicographic ordering is well-defined
	for _, r := range a {
		assert.False(t, strings.ContainsRune(" /?#", r))
	}
}

func TestNewNodeIDStableWithinOneAnalysis(t *testing.T) {
	id1 := NewNodeID("analysis-1", "src/main.go")
	id2 := NewNodeID("analysis-1", "src/main.go")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, NewNodeID("analysis-1", "src/other.go"))
}

func TestNewNodeIDNotReusedAcrossAnalyses(t *testing.T) {
	id1 := NewNodeID("analysis-1", "src/main.go")
	id2 := NewNodeID("analysis-2", "src/main.go")
	assert.NotEqual(t, id1, id2)
}

func TestNewFunctionIDDoesNotDependOnSignatureText(t *testing.T) {
	id1 := NewFunctionID("a.go", "Foo", 10, 20)
	id2 := NewFunctionID("a.go", "Foo", 10, 20)
	assert.Equal(t, id1, id2)
}

func TestParsedFileKeyIsStableJoin(t *testing.T) {
	assert.Equal(t, "abc|src/main.go", ParsedFileKey("abc", "./src/main.go"))
}
