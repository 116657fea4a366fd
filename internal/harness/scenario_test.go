package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeKernel(t *testing.T, dir string) {
	t.Helper()
	src := `kernel: flat: { instructions: [{id: "a", assignee: "x"}] }`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flat.cue"), []byte(src), 0o644))
}

func TestLoadScenario_ResolvesKernelPath(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "write_after_write.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "write_after_write", s.Name)
	assert.Equal(t, filepath.Join("testdata", "kernels", "shared.cue"), s.Kernel)
	assert.Equal(t, "ww", s.KernelName)
	require.Len(t, s.Assertions, 5)
	assert.Equal(t, AssertOwedContains, s.Assertions[3].Type)
	assert.Equal(t, "b", s.Assertions[3].Insn)
}

func TestLoadScenario_RejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	writeKernel(t, dir)
	path := writeScenario(t, dir, `
name: typo
description: misspelled key
kernel: flat.cue
assertion:
  - type: valid
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nkernel: flat.cue\nassertions: [{type: valid}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nkernel: flat.cue\nassertions: [{type: valid}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing kernel",
			content: "name: n\ndescription: d\nassertions: [{type: valid}]\n",
			wantErr: "kernel is required",
		},
		{
			name:    "kernel not found",
			content: "name: n\ndescription: d\nkernel: nope.cue\nassertions: [{type: valid}]\n",
			wantErr: "kernel file not found",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\nkernel: flat.cue\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nkernel: flat.cue\nassertions: [{type: magic}]\n",
			wantErr: `unknown assertion type "magic"`,
		},
		{
			name:    "first_schedule without schedule",
			content: "name: n\ndescription: d\nkernel: flat.cue\nassertions: [{type: first_schedule}]\n",
			wantErr: "schedule is required for first_schedule",
		},
		{
			name:    "owed_contains without insn",
			content: "name: n\ndescription: d\nkernel: flat.cue\nassertions: [{type: owed_contains}]\n",
			wantErr: "insn is required",
		},
		{
			name:    "unknown expect_error",
			content: "name: n\ndescription: d\nkernel: flat.cue\nexpect_error: boom\n",
			wantErr: `unknown expect_error "boom"`,
		},
		{
			name:    "negative max",
			content: "name: n\ndescription: d\nkernel: flat.cue\nmax_schedules: -1\nassertions: [{type: valid}]\n",
			wantErr: "max_schedules must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeKernel(t, dir)
			_, err := LoadScenario(writeScenario(t, dir, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_ExpectErrorNeedsNoAssertions(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "invalid_kernel.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ErrorInvalidKernel, s.ExpectError)
	assert.Empty(t, s.Assertions)
}

func TestFindScenarios(t *testing.T) {
	found, err := FindScenarios([]string{filepath.Join("testdata", "scenarios")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "boost_rescue.yaml"),
		filepath.Join("testdata", "scenarios", "invalid_kernel.yaml"),
		filepath.Join("testdata", "scenarios", "strict_dead_end.yaml"),
		filepath.Join("testdata", "scenarios", "tiled_matmul.yaml"),
		filepath.Join("testdata", "scenarios", "write_after_write.yaml"),
	}, found)

	single := filepath.Join("testdata", "scenarios", "boost_rescue.yaml")
	found, err = FindScenarios([]string{single})
	require.NoError(t, err)
	assert.Equal(t, []string{single}, found)

	_, err = FindScenarios([]string{"testdata/absent"})
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "testdata/absent", nf.Path)
}
