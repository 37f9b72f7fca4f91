//go:build !unix

package process

import (
	"os"
	"os/exec"
)

// isolate relies on exec.CommandContext killing the direct child.
func isolate(cmd *exec.Cmd) {}

func signalOf(state *os.ProcessState) string { return "" }
