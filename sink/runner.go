package sink

import (
	"os/exec"
)

// Runner executes external commands. It exists so device provisioning can be
// exercised without a sound server.
type Runner interface {
	// Output runs the command and returns its standard output.
	Output(name string, args ...string) ([]byte, error)
	// Run runs the command, discarding output.
	Run(name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// Run implements Runner.
func (ExecRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}
