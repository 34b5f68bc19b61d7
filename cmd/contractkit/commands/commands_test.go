package commands

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/contracts/fraudname"
	"contractkit/internal/fraud"
	"contractkit/internal/server"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
contracts:
  dir: ""
  builtin: true
storage:
  path: %s
verifier:
  seed: 7
log:
  format: json
  level: error
`, filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	st := &state{}
	t.Cleanup(st.close)

	var out bytes.Buffer
	cmd := newRootCommand(st)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "contractkit dev")
}

func TestContractsList(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "contracts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "shouldReturnNonFraudForTheName")
	assert.Contains(t, out, "/frauds/name")
	assert.Contains(t, out, fraudname.ShouldReturnNonFraudForTheName().Fingerprint())
}

func TestContractsShow(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "contracts", "show", "shouldReturnNonFraudForTheName")
	require.NoError(t, err)
	assert.Contains(t, out, `"method": "PUT"`)
	assert.Contains(t, out, `"$matcher": "anyAlphaUnicode"`)

	_, err = run(t, "--config", cfg, "contracts", "show", "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestVerifyAndHistory(t *testing.T) {
	cfg := writeConfig(t)
	producer := httptest.NewServer(server.New(fraud.NewDetector(), nil))
	t.Cleanup(producer.Close)

	out, err := run(t, "--config", cfg, "verify", "--base-url", producer.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "1 passed, 0 failed")

	out, err = run(t, "--config", cfg, "history")
	require.NoError(t, err)
	assert.Contains(t, out, producer.URL)
}

func TestVerifyFailureExitsNonZero(t *testing.T) {
	cfg := writeConfig(t)
	producer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(producer.Close)

	out, err := run(t, "--config", cfg, "verify", "--json", "--base-url", producer.URL)
	assert.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, `"failed": 1`)
	assert.Contains(t, out, "status: expected 200, got 400")
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stubs:\n  journal: carrier-pigeon\n"), 0o644))

	_, err := run(t, "--config", path, "contracts", "list")
	assert.ErrorContains(t, err, "unknown stubs.journal")
}
