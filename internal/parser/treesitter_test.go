package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tsSample = `import { readFile } from "fs";
import type { Config } from "./config";
import * as path from "path";

export interface Greeting {
  message: string;
}

export default function greet(name: string): string {
  return "hello " + name;
}

export class Greeter extends Base {
  private prefix: string;

  constructor(prefix: string) {
    super();
    this.prefix = prefix;
  }

  static create(): Greeter {
    return new Greeter("hi");
  }
}

export const wave = (name: string): void => {
  console.log(name);
};
`

func newTestExtractor(t *testing.T) *TreeSitterExtractor {
	t.Helper()
	e, err := newTreeSitterExtractor(nil)
	require.NoError(t, err)
	return e
}

func TestTreeSitterExtractImports(t *testing.T) {
	e := newTestExtractor(t)
	pf, err := e.Extract(context.Background(), "typescript", "a.ts", []byte(tsSample))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pf.Imports), 3)

	var sawTypeOnly bool
	for _, imp := range pf.Imports {
		if imp.Source == "./config" {
			sawTypeOnly = imp.IsTypeOnly
		}
	}
	assert.True(t, sawTypeOnly)
}

func TestTreeSitterExtractFunctionsAndClasses(t *testing.T) {
	e := newTestExtractor(t)
	pf, err := e.Extract(context.Background(), "typescript", "a.ts", []byte(tsSample))
	require.NoError(t, err)

	var names []string
	for _, fn := range pf.Functions {
		names = append(names, fn.Name)
	}
	assert.Contains(t, names, "greet")
	assert.Contains(t, names, "wave")

	require.Len(t, pf.Classes, 1)
	cls := pf.Classes[0]
	assert.Equal(t, "Greeter", cls.Name)
	assert.Equal(t, "Base", cls.SuperClass)

	var methodNames []string
	for _, m := range cls.Methods {
		methodNames = append(methodNames, m.Name)
	}
	assert.Contains(t, methodNames, "constructor")
	assert.Contains(t, methodNames, "create")
}

func TestTreeSitterExtractExports(t *testing.T) {
	e := newTestExtractor(t)
	pf, err := e.Extract(context.Background(), "typescript", "a.ts", []byte(tsSample))
	require.NoError(t, err)

	var kinds []string
	for _, exp := range pf.Exports {
		kinds = append(kinds, string(exp.Kind)+":"+exp.Name)
	}
	assert.Contains(t, kinds, "default:default")
	assert.Contains(t, kinds, "named:Greeter")
}
