package executor

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// harnessSource is passed to the interpreter with -c. The submission travels
// base64-encoded in argv, so it is never parsed by a shell and never touches disk.
//
//go:embed harness.py
var harnessSource string

// faultMarker prefixes the single JSON line the harness writes on stderr.
const faultMarker = "@@SANDBOX_FAULT@@"

// Fault is the structured report written by the harness.
type Fault struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail"`
}

// HarnessArgs returns the interpreter arguments for inv.
//
//	-I  isolated mode: ignore PYTHON* env vars and the user site directory
//	-S  do not import site
//	-B  do not write .pyc files
func HarnessArgs(inv Invocation) []string {
	return []string{
		"-I", "-S", "-B",
		"-c", harnessSource,
		base64.StdEncoding.EncodeToString([]byte(inv.Code)),
		strconv.FormatInt(inv.MemoryLimit, 10),
		strconv.Itoa(cpuSeconds(inv)),
	}
}

// cpuSeconds gives the harness one second of CPU more than the wall deadline,
// so the deadline normally fires first.
func cpuSeconds(inv Invocation) int {
	return int(math.Ceil(inv.Timeout.Seconds())) + 1
}

// parseFault extracts the harness report from stderr. Only a line that
// starts with the marker counts; the report itself is one JSON line, so a
// marker inside an exception message can never begin a line. It returns the
// fault, the stderr text without the report, and whether one was found.
func parseFault(stderr string) (Fault, string, bool) {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		payload, ok := strings.CutPrefix(lines[i], faultMarker)
		if !ok {
			continue
		}
		var f Fault
		if err := json.Unmarshal([]byte(payload), &f); err != nil || f.Kind == "" {
			return Fault{}, stderr, false
		}
		rest := strings.TrimRight(strings.Join(lines[:i], "\n"), "\n")
		return f, rest, true
	}
	return Fault{}, stderr, false
}
