package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Compiler shells out to the configured compiler command. The compile
// algorithm itself is an external collaborator; this only pipes source
// in and output out.
type Compiler struct {
	Cmd    string
	Reload string
}

// Compile runs the compiler with source on stdin and returns stdout.
func (c *Compiler) Compile(ctx context.Context, source string) (string, error) {
	if c.Cmd == "" {
		return "", fmt.Errorf("no compiler command configured")
	}
	argv := strings.Fields(c.Cmd)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("compiler: %s", msg)
	}
	return stdout.String(), nil
}

// ReloadLibraries rebuilds the local library environment by running
// the reload command with the approved list as arguments. A missing
// reload command means the environment needs no preparation.
func (c *Compiler) ReloadLibraries(ctx context.Context, libs []string) error {
	if c.Reload == "" {
		return nil
	}
	argv := strings.Fields(c.Reload)
	argv = append(argv, libs...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("reload: %s", msg)
	}
	return nil
}
