package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scene-engine/internal/commands"
	"scene-engine/internal/engineconfig"
	"scene-engine/internal/env"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/logger"
	"scene-engine/internal/telemetry"
)

const serviceName = "scene-engine"

func main() {
	if err := env.Load(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "env:", err)
	}
	prefs, err := engineconfig.Load(configPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
	}
	if err := engineconfig.ApplyEnv(&prefs); err != nil {
		fmt.Fprintln(os.Stderr, "config env:", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(prefs.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := logger.New(prefs.LogPath, level)
	slog.SetDefault(log.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, serviceName)
	if err != nil {
		log.Slog().Warn("tracing disabled", "error", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	app := &cli{prefs: prefs, log: log.Slog(), ctx: ctx, stdin: os.Stdin, stdout: os.Stdout}
	reg := commands.NewRegistry()
	app.register(reg)

	args := os.Args[1:]
	if len(args) == 0 {
		usage(reg)
		os.Exit(2)
	}
	if err := reg.Execute(args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", errs.CodeOf(err), err)
		log.Slog().Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

// configPath is the preferences file, overridable with SCENE_ENGINE_CONFIG.
func configPath() string {
	if p := strings.TrimSpace(os.Getenv("SCENE_ENGINE_CONFIG")); p != "" {
		return p
	}
	return engineconfig.EngineConfigPath
}

func usage(reg *commands.Registry) {
	fmt.Fprintln(os.Stderr, "usage: sceneengine <command> [flags] [args]")
	for _, c := range reg.Commands() {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.Name, c.Summary)
	}
}
