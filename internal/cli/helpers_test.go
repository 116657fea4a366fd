package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	kernelsFile = filepath.Join("testdata", "kernels.cue")
	invalidFile = filepath.Join("testdata", "invalid.cue")
	scenarioDir = filepath.Join("testdata", "scenarios")
)

// executeRoot runs the full command tree with an isolated config home.
func executeRoot(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeResponse decodes a Envelope whose data has type T.
func decodeResponse[T any](t *testing.T, out string) (string, T, *EnvelopeError) {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   T         `json:"data"`
		Error  *EnvelopeError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Status, resp.Data, resp.Error
}

// writeCUE writes src to a temporary .cue file and returns its path.
func writeCUE(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernels.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}
