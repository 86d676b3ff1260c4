package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repoanalyzer/internal/model"
)

const pySample = `import os
from typing import List, Optional as Opt

@decorated
def greet(name: str, times: int = 1) -> str:
    """Say hello."""
    return name


class Greeter(Base):
    """Greets people."""

    def __init__(self, prefix: str):
        self.prefix = prefix

    def _internal(self):
        pass


def _hidden():
    pass
`

func TestExtractPythonImports(t *testing.T) {
	pf, err := ExtractPython("a.py", []byte(pySample))
	require.NoError(t, err)
	require.Len(t, pf.Imports, 2)

	assert.Equal(t, "os", pf.Imports[0].Source)
	assert.Equal(t, "os", pf.Imports[0].Specifiers[0].Name)

	assert.Equal(t, "typing", pf.Imports[1].Source)
	require.Len(t, pf.Imports[1].Specifiers, 2)
	assert.Equal(t, "List", pf.Imports[1].Specifiers[0].Name)
	assert.Equal(t, "Optional", pf.Imports[1].Specifiers[1].Name)
	assert.Equal(t, "Opt", pf.Imports[1].Specifiers[1].Alias)
}

func TestExtractPythonFunction(t *testing.T) {
	pf, err := ExtractPython("a.py", []byte(pySample))
	require.NoError(t, err)

	var greet *model.Function
	for i := range pf.Functions {
		if pf.Functions[i].Name == "greet" {
			greet = &pf.Functions[i]
		}
	}
	require.NotNil(t, greet)
	assert.Equal(t, "str", greet.ReturnType)
	assert.Equal(t, "Say hello.", greet.Docstring)
	require.Len(t, greet.Params, 2)
	assert.Equal(t, "name", greet.Params[0].Name)
	assert.Equal(t, "str", greet.Params[0].Type)
	assert.Equal(t, "times", greet.Params[1].Name)
	assert.Contains(t, greet.Modifiers, "decorated")
}

func TestExtractPythonClassCollectsMethods(t *testing.T) {
	pf, err := ExtractPython("a.py", []byte(pySample))
	require.NoError(t, err)
	require.Len(t, pf.Classes, 1)

	cls := pf.Classes[0]
	assert.Equal(t, "Greeter", cls.Name)
	assert.Equal(t, "Base", cls.SuperClass)
	assert.Equal(t, "Greets people.", cls.Docstring)
	require.Len(t, cls.Methods, 2)
	assert.Equal(t, "__init__", cls.Methods[0].Name)
	assert.Equal(t, "_internal", cls.Methods[1].Name)
	assert.Contains(t, cls.Methods[1].Modifiers, "protected")
}

func TestExtractPythonImplicitExportsSkipUnderscored(t *testing.T) {
	pf, err := ExtractPython("a.py", []byte(pySample))
	require.NoError(t, err)

	var names []string
	for _, e := range pf.Exports {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "greet")
	assert.Contains(t, names, "Greeter")
	assert.NotContains(t, names, "_hidden")
}
