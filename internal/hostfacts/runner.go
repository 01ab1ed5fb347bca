// Package hostfacts probes the locally observable facts a reconciliation
// depends on: GPU presence, the installed containerd, and effective proxy
// settings.
package hostfacts

import "os/exec"

// Runner abstracts command execution so probes can be exercised in tests
// without lspci or ctr on the path.
type Runner interface {
	Output(name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

func (ExecRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}
