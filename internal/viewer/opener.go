package viewer

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// CommandOpener reveals paths with an external program. An empty Command
// selects the platform default.
type CommandOpener struct {
	Command string
}

// Open starts the opener without waiting for it to exit.
func (o CommandOpener) Open(path string) error {
	cmd := o.command(path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("viewer: open %s: %w", path, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (o CommandOpener) command(path string) *exec.Cmd {
	if fields := strings.Fields(o.Command); len(fields) > 0 {
		return exec.Command(fields[0], append(fields[1:], path)...)
	}
	switch runtime.GOOS {
	case "windows":
		return exec.Command("explorer", path)
	case "darwin":
		return exec.Command("open", path)
	default:
		return exec.Command("xdg-open", path)
	}
}
