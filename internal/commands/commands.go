// Package commands parses console lines and command-line arguments into
// subcommands with their own flag sets.
package commands

import (
	"flag"
	"io"
	"sort"
	"strings"

	errs "scene-engine/internal/errors"
)

// Command is a subcommand with its own flags and a Run function.
// Flags are defined on FlagSet; Run is called after Parse and can read flag
// state and positional arguments through FlagSet.Args.
type Command struct {
	Name    string
	Summary string
	FlagSet *flag.FlagSet
	Run     func() error
}

// Registry holds subcommands by name. Add commands with Register; run with Execute.
type Registry struct {
	cmds map[string]*Command
}

// NewRegistry returns an empty command registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]*Command)}
}

// Register adds a subcommand. fs is that command's FlagSet; run is called
// after fs.Parse(args[1:]) succeeds. Flag errors are returned, not printed.
func (r *Registry) Register(name, summary string, fs *flag.FlagSet, run func() error) {
	fs.SetOutput(io.Discard)
	r.cmds[name] = &Command{Name: name, Summary: summary, FlagSet: fs, Run: run}
}

// Commands returns every registered command sorted by name.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Parse tokenizes one console line. Tokens are separated by spaces; double
// quotes group a token containing spaces. Blank lines and lines starting
// with '#' return ok false.
func Parse(line string) (args []string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false
	}
	var (
		cur    strings.Builder
		quoted bool
		inTok  bool
	)
	for _, c := range line {
		switch {
		case c == '"':
			quoted = !quoted
			inTok = true
		case c == ' ' && !quoted:
			if inTok {
				args = append(args, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteRune(c)
			inTok = true
		}
	}
	if inTok {
		args = append(args, cur.String())
	}
	return args, true
}

// Execute runs the subcommand in args[0] with args[1:] as flag/positional
// arguments. Flags may appear before or after positional arguments.
// Returns an error for unknown command, parse error, or from Run().
func (r *Registry) Execute(args []string) error {
	if len(args) == 0 {
		return errs.New(errs.CodeInvalidArgument, "missing subcommand")
	}
	name := args[0]
	cmd, ok := r.cmds[name]
	if !ok {
		return errs.New(errs.CodeInvalidArgument, "unknown command: %s", name).With("command", name)
	}
	// Flags keep no state between runs.
	cmd.FlagSet.VisitAll(func(f *flag.Flag) { _ = f.Value.Set(f.DefValue) })
	if err := parseInterspersed(cmd.FlagSet, args[1:]); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, err, "%s", name).With("command", name)
	}
	return cmd.Run()
}

// parseInterspersed parses fs allowing flags after positional arguments, so
// "move <id> -pos 1,2,3" works. Everything after "--" is positional.
// On return fs.Args holds the positional arguments in order.
func parseInterspersed(fs *flag.FlagSet, args []string) error {
	var tail []string
	for i, a := range args {
		if a == "--" {
			args, tail = args[:i], args[i+1:]
			break
		}
	}
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
	pos = append(pos, tail...)
	return fs.Parse(append([]string{"--"}, pos...))
}
