package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/lrhodin/chatcache/pkg/chatcache"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyLogger
	contextKeyOpener
	contextKeyCache
)

func getConfig(ctx *cli.Context) *Config {
	return ctx.Context.Value(contextKeyConfig).(*Config)
}

func getLogger(ctx *cli.Context) zerolog.Logger {
	return ctx.Context.Value(contextKeyLogger).(zerolog.Logger)
}

func getCache(ctx *cli.Context) *chatcache.Cache {
	return ctx.Context.Value(contextKeyCache).(*chatcache.Cache)
}

func getOpener(ctx *cli.Context) *chatcache.Opener {
	val := ctx.Context.Value(contextKeyOpener)
	if val == nil {
		return nil
	}
	return val.(*chatcache.Opener)
}

func getConfigPath() string {
	baseDir, _ := os.UserConfigDir()
	return filepath.Join(baseDir, "chatcache", "config.yaml")
}

// prepareApp loads config and logging and opens the cache. Commands using
// it as Before hook close the opener with closeApp.
func prepareApp(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := cfg.newLogger()
	if err != nil {
		return err
	}
	opener := chatcache.NewOpener(cfg.Cache.Path, cfg.Cache.Engine, log)
	cache := chatcache.New(opener, log)

	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	newCtx = context.WithValue(newCtx, contextKeyLogger, log)
	newCtx = context.WithValue(newCtx, contextKeyOpener, opener)
	newCtx = context.WithValue(newCtx, contextKeyCache, cache)
	ctx.Context = newCtx

	if err = cache.Initialize(ctx.Context); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	return nil
}

func closeApp(ctx *cli.Context) error {
	if opener := getOpener(ctx); opener != nil {
		return opener.Close()
	}
	return nil
}

func main() {
	// Environment overrides may live in a .env file next to the binary.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "chatcachectl",
		Usage:   "Inspect and maintain the local chat message cache",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				EnvVars: []string{"CHATCACHE_CONFIG"},
				Value:   getConfigPath(),
			},
		},
		Commands: []*cli.Command{
			configCommand,
			initCommand,
			saveCommand,
			loadCommand,
			deleteCommand,
			clearRoomCommand,
			clearAllCommand,
			cleanupCommand,
			roomStateCommand,
			setCachedAtCommand,
			statsCommand,
			watchCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
