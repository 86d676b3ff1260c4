package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectByExtension(t *testing.T) {
	d := Detect("src/app.ts", nil)
	assert.Equal(t, "typescript", d.Language)
	assert.Equal(t, ConfidenceHigh, d.Confidence)
	assert.Equal(t, "extension", d.Basis)
}

func TestDetectByShebang(t *testing.T) {
	d := Detect("script", []byte("#!/usr/bin/env python3\nprint('hi')\n"))
	assert.Equal(t, "python", d.Language)
	assert.Equal(t, "shebang", d.Basis)
}

func TestDetectByContentHeuristic(t *testing.T) {
	content := []byte("def foo():\n    pass\n\nimport os\nfrom sys import path\n")
	d := Detect("noext", content)
	assert.Equal(t, "python", d.Language)
	assert.Equal(t, "content", d.Basis)
}

func TestDetectUnknownFallback(t *testing.T) {
	d := Detect("README", []byte("just some plain prose with no code markers at all"))
	assert.Equal(t, "unknown", d.Language)
	assert.Equal(t, ConfidenceLow, d.Confidence)
}

func TestIsParseable(t *testing.T) {
	assert.True(t, IsParseable("python"))
	assert.True(t, IsParseable("typescript"))
	assert.True(t, IsParseable("javascript"))
	assert.False(t, IsParseable("go"))
	assert.False(t, IsParseable("unknown"))
}
