package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	errs "scene-engine/internal/errors"
)

const prompt = "> "

// Console reads command lines from in and runs them through a registry.
// Results and errors are written to out. "help" lists the commands and
// "quit" or "exit" ends the session.
type Console struct {
	reg *Registry
	log *slog.Logger
	in  io.Reader
	out io.Writer
}

// NewConsole returns a console over in and out.
func NewConsole(reg *Registry, log *slog.Logger, in io.Reader, out io.Writer) *Console {
	return &Console{reg: reg, log: log, in: in, out: out}
}

// Run processes lines until in is exhausted, quit is entered or ctx is done.
// Command errors are reported and do not end the session.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	fmt.Fprint(c.out, prompt)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if done := c.exec(line); done {
				return nil
			}
			fmt.Fprint(c.out, prompt)
		}
	}
}

// exec runs one line and reports whether the session should end.
func (c *Console) exec(line string) bool {
	args, ok := Parse(line)
	if !ok {
		return false
	}
	switch args[0] {
	case "quit", "exit":
		return true
	case "help":
		c.help()
		return false
	}
	c.log.Debug("console command", "line", line)
	if err := c.reg.Execute(args); err != nil {
		fmt.Fprintf(c.out, "error: %s: %v\n", errs.CodeOf(err), err)
		c.log.Warn("console command failed", "command", args[0], "error", err)
	}
	return false
}

func (c *Console) help() {
	for _, cmd := range c.reg.Commands() {
		fmt.Fprintf(c.out, "  %-10s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintf(c.out, "  %-10s %s\n", "quit", "end the session")
}
