package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/debugging-platform/internal/executor"
)

// runRoot executes the root command with args and returns its stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { validateOnly = false })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solution.py")
	require.NoError(t, os.WriteFile(path, []byte(code), 0o600))
	return path
}

func TestCheck_ValidateOnly(t *testing.T) {
	out, err := runRoot(t, "check", "--validate-only", writeFile(t, "print('hi')"))
	require.NoError(t, err)
	assert.Equal(t, "Code is safe\n", out)
}

func TestCheck_Rejected(t *testing.T) {
	out, err := runRoot(t, "check", "--validate-only", writeFile(t, "import subprocess"))
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "Security Error: Dangerous operation detected: import subprocess")
}

func TestCheck_ExtraPatternsFromEnv(t *testing.T) {
	t.Setenv("SAFETY_EXTRA_PATTERNS", "breakpoint(")
	out, err := runRoot(t, "check", "--validate-only", writeFile(t, "breakpoint()"))
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "breakpoint(")
}

func TestCheck_Runs(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	out, err := runRoot(t, "check", writeFile(t, "print(sum(range(5)))"))
	require.NoError(t, err)
	assert.Contains(t, out, "10\nOK (")

	out, err = runRoot(t, "check", writeFile(t, "print(1/0)"))
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "Zero Division Error")
}

func TestCheck_MissingFile(t *testing.T) {
	_, err := runRoot(t, "check", filepath.Join(t.TempDir(), "nope.py"))
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &executor.ExecutionResult{
		Stdout:         "partial",
		Stderr:         "Name Error: name 'x' is not defined",
		ErrorKind:      executor.KindName,
		ElapsedSeconds: 0.0123,
	})
	assert.Equal(t, "partial\nName Error: name 'x' is not defined\n[name, 0.012s]\n", buf.String())
}

func TestHealthcheck(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "platform.db"))

	out, err := runRoot(t, "healthcheck")
	// Disk or memory may legitimately be critical on a busy CI host.
	if err != nil {
		assert.Contains(t, out, "Status: Unhealthy")
		return
	}
	assert.Contains(t, out, "Status: Healthy")
	assert.Contains(t, out, "database: Database OK")
	assert.Contains(t, out, "Metrics:")
}
