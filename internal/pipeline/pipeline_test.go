package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repoanalyzer/internal/model"
	"github.com/kraklabs/repoanalyzer/internal/parser"
)

func TestCollectParseableSkipsUnparseableLanguages(t *testing.T) {
	root := &model.Node{
		Kind: model.NodeDir,
		Children: []*model.Node{
			{Kind: model.NodeFile, Path: "a.ts", Metadata: &model.Metadata{Language: "typescript", Size: 10}},
			{Kind: model.NodeFile, Path: "a.go", Metadata: &model.Metadata{Language: "go", Size: 10}},
			{
				Kind: model.NodeDir,
				Children: []*model.Node{
					{Kind: model.NodeFile, Path: "nested/b.py", Metadata: &model.Metadata{Language: "python", Size: 20}},
				},
			},
		},
	}

	jobs := collectParseable("/work", root, "")
	require.Len(t, jobs, 2)

	var rels []string
	for _, j := range jobs {
		rels = append(rels, j.relPath)
	}
	assert.ElementsMatch(t, []string{"a.ts", "nested/b.py"}, rels)
}

func TestParseFilesBoundsToSmallestFiles(t *testing.T) {
	dir := t.TempDir()
	root := &model.Node{Kind: model.NodeDir}
	for i := 0; i < maxParseFiles+5; i++ {
		rel := "file" + strconv.Itoa(i) + ".ts"
		size := int64(100 + i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte("export const x = 1;"), 0o644))
		root.Children = append(root.Children, &model.Node{
			Kind:     model.NodeFile,
			Path:     rel,
			Metadata: &model.Metadata{Language: "typescript", Size: size},
		})
	}

	eng, err := parser.NewEngine(nil)
	require.NoError(t, err)
	p := New(nil, nil, nil, eng, nil)

	out := p.parseFiles(context.Background(), dir, root)
	assert.LessOrEqual(t, len(out), maxParseFiles)
	for _, pf := range out {
		for i := maxParseFiles; i < maxParseFiles+5; i++ {
			assert.NotEqual(t, "file"+strconv.Itoa(i)+".ts", pf.Path)
		}
	}
}
