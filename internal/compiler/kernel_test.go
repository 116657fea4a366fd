package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopsched/internal/ir"
)

func TestCompileKernelBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kernel: transpose: {
			inames: {
				lid: { lower: 0, upper: 16, tag: "l.0" }
				i:   { lower: 0, upper: "n" }
				j:   { lower: "i", upper: "n", breakable: true }
			}
			temporaries: {
				tile: { storage: "local", dtype: "float32", shape: [16, "n"] }
			}
			instructions: [
				{ id: "load", inames: ["lid", "i"], assignee: "tile", reads: ["a"] },
				{ id: "store", inames: ["lid", "j"], assignee: "b", reads: ["tile"], deps: ["load"], boostable_into: ["i"] },
			]
			lowest_priority: ["j"]
			loop_priority: ["i"]
		}
	`)
	require.NoError(t, v.Err())

	k, err := CompileKernel(v.LookupPath(cue.ParsePath("kernel.transpose")))
	require.NoError(t, err)

	assert.Equal(t, "transpose", k.Name)
	require.Len(t, k.Inames, 3)
	assert.Equal(t, "lid", k.Inames[0].Name)
	assert.Equal(t, ir.IndexTag("l.0"), k.Inames[0].Tag)
	assert.Equal(t, ir.Domain{Lower: "0", Upper: "n", Stride: 1}, k.Inames[1].Domain)
	assert.True(t, k.Inames[2].Breakable)

	require.Len(t, k.Temporaries, 1)
	assert.Equal(t, ir.StorageLocal, k.Temporaries[0].Storage)
	assert.Equal(t, []string{"16", "n"}, k.Temporaries[0].Shape)

	require.Len(t, k.Instructions, 2)
	assert.Equal(t, "load", k.Instructions[0].ID)
	assert.Equal(t, []string{"load"}, k.Instructions[1].Deps)
	assert.Equal(t, []string{"i"}, k.Instructions[1].BoostableInto)
	assert.Equal(t, []string{"j"}, k.LowestPriority)
	assert.Equal(t, []string{"i"}, k.LoopPriority)
}

func TestCompileKernelMissingInstructions(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kernel: empty: {
			inames: { i: { lower: 0, upper: 4 } }
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileKernel(v.LookupPath(cue.ParsePath("kernel.empty")))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "instructions", ce.Field)
}

func TestCompileKernelMissingAssignee(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kernel: k: {
			instructions: [{ id: "a" }]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileKernel(v.LookupPath(cue.ParsePath("kernel.k")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignee is required")
}

func TestCompileKernelMissingStorage(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kernel: k: {
			temporaries: { s: { dtype: "int32" } }
			instructions: [{ id: "a", assignee: "s" }]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileKernel(v.LookupPath(cue.ParsePath("kernel.k")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage is required")
}

func TestCompileKernelWrongType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kernel: k: {
			instructions: [{ id: "a", assignee: "s", deps: "b" }]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileKernel(v.LookupPath(cue.ParsePath("kernel.k")))
	require.Error(t, err)
}

func TestCompileKernelNormalizesIdentifiers(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kernel: k: {
			instructions: [{ id: "cafe` + "\u0301" + `", assignee: "x" }]
		}
	`)
	require.NoError(t, v.Err())

	k, err := CompileKernel(v.LookupPath(cue.ParsePath("kernel.k")))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", k.Instructions[0].ID)
}
