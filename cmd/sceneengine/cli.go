package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"scene-engine/internal/commands"
	"scene-engine/internal/engine"
	"scene-engine/internal/engineconfig"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/storage/sqlite"
)

// cli holds what every top-level command shares.
type cli struct {
	prefs  engineconfig.Prefs
	log    *slog.Logger
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
}

func (c *cli) register(reg *commands.Registry) {
	{
		fs := flag.NewFlagSet("run", flag.ContinueOnError)
		scene := fs.String("scene", "", "stored scene to load first")
		reg.Register("run", "start the engine with an interactive console", fs, func() error {
			return c.run(*scene)
		})
	}
	{
		fs := flag.NewFlagSet("convert", flag.ContinueOnError)
		out := fs.String("out", "scene.glb", "output GLB path")
		reg.Register("convert", "convert assets or a snapshot JSON (.json) to GLB", fs, func() error {
			if fs.NArg() == 0 {
				return errs.New(errs.CodeInvalidArgument, "convert: missing input")
			}
			return c.batch(fs.Args(), "export "+quote(*out))
		})
	}
	{
		fs := flag.NewFlagSet("import", flag.ContinueOnError)
		out := fs.String("out", "scene.json", "output snapshot path")
		reg.Register("import", "convert assets to a snapshot JSON", fs, func() error {
			if fs.NArg() == 0 {
				return errs.New(errs.CodeInvalidArgument, "import: missing input")
			}
			return c.batch(fs.Args(), "dump "+quote(*out))
		})
	}
	{
		fs := flag.NewFlagSet("save", flag.ContinueOnError)
		name := fs.String("name", "", "scene name (default: file name)")
		reg.Register("save", "store a snapshot JSON file in the scene database", fs, func() error {
			if fs.NArg() != 1 {
				return errs.New(errs.CodeInvalidArgument, "save: want one snapshot file")
			}
			b, err := os.ReadFile(fs.Arg(0))
			if err != nil {
				return errs.Wrap(errs.CodeNotFound, err, "read snapshot")
			}
			n := *name
			if n == "" {
				base := filepath.Base(fs.Arg(0))
				n = base[:len(base)-len(filepath.Ext(base))]
			}
			return c.withStore(func(s *sqlite.Store) error { return s.Save(c.ctx, n, b) })
		})
	}
	{
		fs := flag.NewFlagSet("load", flag.ContinueOnError)
		out := fs.String("out", "", "output snapshot path (default: stdout)")
		reg.Register("load", "write a stored scene as snapshot JSON", fs, func() error {
			if fs.NArg() != 1 {
				return errs.New(errs.CodeInvalidArgument, "load: want one scene name")
			}
			return c.withStore(func(s *sqlite.Store) error {
				b, err := s.Load(c.ctx, fs.Arg(0))
				if err != nil {
					return err
				}
				if *out == "" {
					_, err = c.stdout.Write(append(b, '\n'))
					return err
				}
				return os.WriteFile(*out, b, 0o644)
			})
		})
	}
	{
		fs := flag.NewFlagSet("scenes", flag.ContinueOnError)
		reg.Register("scenes", "list stored scenes", fs, func() error {
			return c.withStore(func(s *sqlite.Store) error {
				list, err := s.List(c.ctx)
				if err != nil {
					return err
				}
				for _, e := range list {
					fmt.Fprintf(c.stdout, "%s\t%d entities\n", e.Name, e.Entities)
				}
				return nil
			})
		})
	}
	{
		fs := flag.NewFlagSet("config", flag.ContinueOnError)
		reg.Register("config", "write the effective preferences to a file", fs, func() error {
			path := engineconfig.EngineConfigPath
			if fs.NArg() > 0 {
				path = fs.Arg(0)
			}
			if err := engineconfig.Save(path, c.prefs); err != nil {
				return errs.Wrap(errs.CodeUnknown, err, "save preferences")
			}
			fmt.Fprintln(c.stdout, path)
			return nil
		})
	}
}

func (c *cli) withStore(fn func(*sqlite.Store) error) error {
	s, err := sqlite.Open(c.prefs.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (c *cli) start() (*engine.Engine, error) {
	eng, err := engine.New(engine.Options{Prefs: c.prefs, Log: c.log})
	if err != nil {
		return nil, err
	}
	if err := eng.Start(c.ctx); err != nil {
		return nil, err
	}
	go func() {
		for e := range eng.Errors() {
			c.log.Warn("context error", "context", e.Context, "subject", e.Subject, "code", e.Code, "message", e.Message)
		}
	}()
	return eng, nil
}

// run starts the engine and reads console commands from stdin until quit,
// end of input or an interrupt.
func (c *cli) run(sceneName string) error {
	eng, err := c.start()
	if err != nil {
		return err
	}
	defer eng.Destroy()

	var scenes commands.Scenes
	store, err := sqlite.Open(c.prefs.DBPath)
	if err != nil {
		c.log.Warn("scene database unavailable", "path", c.prefs.DBPath, "error", err)
	} else {
		defer store.Close()
		scenes = store
	}

	reg := commands.NewRegistry()
	commands.RegisterScene(reg, eng, scenes, c.stdout)
	if sceneName != "" {
		if err := reg.Execute([]string{"load", sceneName}); err != nil {
			return err
		}
	}
	return commands.NewConsole(reg, c.log, c.stdin, c.stdout).Run(c.ctx)
}

// batch imports inputs into a fresh engine, then runs final as a console
// command. Inputs ending in .json are loaded as snapshots.
func (c *cli) batch(inputs []string, final string) error {
	eng, err := c.start()
	if err != nil {
		return err
	}
	defer eng.Destroy()

	reg := commands.NewRegistry()
	commands.RegisterScene(reg, eng, nil, io.Discard)
	for _, in := range inputs {
		line := "import " + quote(in)
		if filepath.Ext(in) == ".json" {
			line = "open " + quote(in)
		}
		if err := c.exec(reg, line); err != nil {
			return err
		}
	}
	return c.exec(reg, final)
}

func (c *cli) exec(reg *commands.Registry, line string) error {
	args, ok := commands.Parse(line)
	if !ok {
		return nil
	}
	return reg.Execute(args)
}

func quote(s string) string { return `"` + s + `"` }
