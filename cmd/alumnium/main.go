// Command alumnium runs the agent server.
//
// Usage:
//
//	alumnium serve
//	alumnium serve --model anthropic/claude-sonnet-4-5 --addr :8013
//	alumnium version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/alumnium-hq/alumnium/pkg/cache"
	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/logger"
	"github.com/alumnium-hq/alumnium/pkg/server"
	"github.com/alumnium-hq/alumnium/pkg/session"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the agent server."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFormat string `help:"Log format (simple or verbose)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("alumnium version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Addr      string `help:"Address to listen on." default:""`
	Model     string `help:"Default model as provider/name (e.g. anthropic/claude-sonnet-4-5)."`
	CachePath string `name:"cache-path" help:"Path to the sqlite cache file (empty = in-memory only)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	// CLI flags win over file and environment.
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}
	if cli.LogLevel != "" {
		cfg.Server.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Server.LogFormat = cli.LogFormat
	}
	if c.CachePath != "" {
		cfg.Server.CachePath = c.CachePath
	}
	if c.Model != "" {
		model, err := config.ParseModel(c.Model)
		if err != nil {
			return err
		}
		cfg.LLM.Model = model
		cfg.SetDefaults()
	}

	level, err := logger.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(level, os.Stderr, cfg.Server.LogFormat)
	log := logger.GetLogger()

	if err := cfg.Validate(); err != nil {
		return err
	}

	var store *cache.Store
	if cfg.Server.CachePath != "" {
		store, err = cache.OpenStore(cfg.Server.CachePath)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info("Cache store opened", "path", cfg.Server.CachePath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	manager := session.NewManager(cfg, store)
	srv := server.New(cfg, manager, log)

	log.Info("Starting alumnium", "model", cfg.LLM.Model, "address", cfg.Server.Addr)
	return srv.Start(ctx)
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("alumnium"),
		kong.Description("Agent server translating automation goals into driver actions."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
