package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/aiplaza/serving-client/internal/client"
	"github.com/aiplaza/serving-client/internal/config"
	"github.com/aiplaza/serving-client/internal/logging"
	"github.com/aiplaza/serving-client/internal/service"
)

// Usage:
//
//	console            interactive prompt
//	console <file>...  run each file through the pipeline and print the results
func main() {
	if err := mainImpl(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sugar, err := logging.New(cfg.Server.LogLevel, cfg.Server.Env)
	if err != nil {
		return err
	}
	defer func() { _ = sugar.Sync() }()

	var objects client.ObjectReader
	if cfg.Storage.IsConfigured() {
		storageClient, err := client.NewStorageClient(&cfg.Storage)
		if err != nil {
			sugar.Warnw("Object storage unavailable", "error", err)
		} else {
			objects = storageClient
		}
	}

	servingClient, err := client.NewServingClient(&cfg.API, sugar)
	if err != nil {
		return err
	}

	session := service.NewSessionService(servingClient, objects, &cfg.API, sugar)
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) > 0 {
		c := newConsole(session, servingClient, os.Stdout)
		c.modelName, c.modelArchive = cfg.API.ModelName, cfg.API.ModelArchive
		return c.runFiles(ctx, args)
	}

	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	c := newConsole(session, servingClient, rl.Stdout())
	unsubscribe := session.Subscribe(c.follow)
	defer unsubscribe()

	if err := session.ResolveModel(ctx); err != nil {
		fmt.Fprintln(rl.Stderr(), err)
	}
	fmt.Fprintln(rl.Stdout(), `type "help" for commands`)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		quit, err := c.exec(ctx, strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintln(rl.Stderr(), err)
		}
		if quit {
			break
		}
	}
	return nil
}
