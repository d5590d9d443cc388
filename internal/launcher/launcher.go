// Package launcher starts catalog programs as detached processes.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/scanner/desktop"
)

const defaultOpener = "xdg-open"

// ErrEmptyCommand is returned for entries with nothing to execute
var ErrEmptyCommand = errors.New("empty exec command")

// Launcher starts programs and returns the pid of the started process
type Launcher interface {
	Launch(p catalog.Program) (int, error)
	LaunchInTerminal(p catalog.Program) (int, error)
	OpenLocation(p catalog.Program) (int, error)
}

// Exec launches programs with os/exec
type Exec struct {
	terminal string
	opener   string
	logger   *log.Logger
	start    func(cmd *exec.Cmd) error
}

// New creates a launcher that runs terminal programs in terminal
func New(terminal string, logger *log.Logger) *Exec {
	return &Exec{
		terminal: terminal,
		opener:   defaultOpener,
		logger:   logger,
		start:    startDetached,
	}
}

// Launch starts the program, in a terminal if its entry asks for one
func (e *Exec) Launch(p catalog.Program) (int, error) {
	cmd, err := e.Command(p, false)
	if err != nil {
		return 0, err
	}
	return e.run(cmd)
}

// LaunchInTerminal starts the program inside the configured terminal
func (e *Exec) LaunchInTerminal(p catalog.Program) (int, error) {
	cmd, err := e.Command(p, true)
	if err != nil {
		return 0, err
	}
	return e.run(cmd)
}

// OpenLocation opens the directory holding the program in the file manager
func (e *Exec) OpenLocation(p catalog.Program) (int, error) {
	return e.run(exec.Command(e.opener, LocationDir(p)))
}

// Command builds the command line for p without starting it
func (e *Exec) Command(p catalog.Program, inTerminal bool) (*exec.Cmd, error) {
	var argv []string
	switch prog := p.(type) {
	case *catalog.Native:
		argv = append([]string{prog.Path}, prog.Arguments...)
	case *catalog.Packaged:
		fields, err := execFields(prog)
		if err != nil {
			return nil, err
		}
		argv = fields
		inTerminal = inTerminal || prog.Terminal
	default:
		return nil, fmt.Errorf("unsupported program kind %s", p.Kind())
	}

	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}
	if inTerminal {
		argv = append([]string{e.terminal, "-e"}, argv...)
	}
	return exec.Command(argv[0], argv[1:]...), nil
}

func execFields(p *catalog.Packaged) ([]string, error) {
	line, err := desktop.ExpandExecCommand(p.Exec, p.Title, p.DesktopFile)
	if err == nil {
		var fields []string
		if fields, err = shell.Fields(line, nil); err == nil {
			return fields, nil
		}
	}
	return nil, fmt.Errorf("bad exec line %q: %w", p.Exec, err)
}

// Executable names the file a launch of p runs: the path of native entries
// and the first word of the Exec line of packaged ones
func Executable(p catalog.Program) string {
	if prog, ok := p.(*catalog.Packaged); ok {
		if fields, err := execFields(prog); err == nil && len(fields) > 0 {
			return fields[0]
		}
		return prog.Exec
	}
	if prog, ok := p.(*catalog.Native); ok {
		return prog.Path
	}
	return p.Location()
}

func (e *Exec) run(cmd *exec.Cmd) (int, error) {
	e.logger.Debug("starting process", "args", cmd.Args)
	if err := e.start(cmd); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	pid := cmd.Process.Pid
	e.logger.Debug("process started", "pid", pid)
	return pid, nil
}

// LocationDir returns the directory for "open containing folder"
func LocationDir(p catalog.Program) string {
	loc := p.Location()
	if info, err := os.Stat(loc); err == nil && info.IsDir() {
		return loc
	}
	return filepath.Dir(loc)
}
