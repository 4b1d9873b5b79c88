package vectordb

import (
	"os/exec"
)

// CommandExecutor runs a single shelled-out command and returns its combined
// output. Adapted from the deploy package's executor abstraction so the
// shapefile-export subprocess can be swapped for a fake in tests.
type CommandExecutor interface {
	Run() ([]byte, error)
}

// CommandBuilder constructs a CommandExecutor for a named command. Swappable
// so tests never invoke a real SQL-to-shapefile utility.
type CommandBuilder interface {
	BuildCommand(name string, args ...string) CommandExecutor
}

type realCommandExecutor struct {
	cmd *exec.Cmd
}

func (r *realCommandExecutor) Run() ([]byte, error) { return r.cmd.CombinedOutput() }

// RealCommandBuilder shells out via os/exec.
type RealCommandBuilder struct{}

func NewRealCommandBuilder() *RealCommandBuilder { return &RealCommandBuilder{} }

func (b *RealCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	return &realCommandExecutor{cmd: exec.Command(name, args...)}
}

// MockCommandExecutor returns canned output, for tests.
type MockCommandExecutor struct {
	Output []byte
	Err    error
}

func (m *MockCommandExecutor) Run() ([]byte, error) { return m.Output, m.Err }

// MockCommandBuilder records every command built and dispenses a configured
// executor, mirroring deploy.MockCommandBuilder.
type MockCommandBuilder struct {
	Commands []MockBuiltCommand
	Executor *MockCommandExecutor
}

type MockBuiltCommand struct {
	Name string
	Args []string
}

func (b *MockCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args})
	if b.Executor != nil {
		return b.Executor
	}
	return &MockCommandExecutor{}
}
