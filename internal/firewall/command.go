package firewall

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Command is a single shell-level invocation: a program name and its
// arguments, exactly as it would be typed on a command line.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// run executes the command and returns combined stdout/stderr on failure.
func (c Command) run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", c, err, strings.TrimSpace(out.String()))
	}
	return nil
}

// Commands is an ordered sequence of shell-level commands that together
// install or revert a firewall redirection scheme.
//
// Run executes the sequence in order and stops at the first command whose
// exit status is non-zero; commands after the failure are not executed
// (spec.md §4.1 Failure).
type Commands []Command

func (cs Commands) Run(ctx context.Context) error {
	for i, c := range cs {
		if err := c.run(ctx); err != nil {
			return fmt.Errorf("command %d/%d failed: %w", i+1, len(cs), err)
		}
	}
	return nil
}
