package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.sakib.dev/shuttle/client"
	"go.sakib.dev/shuttle/config"
	"go.sakib.dev/shuttle/logger"
	"go.sakib.dev/shuttle/server"
	"go.sakib.dev/shuttle/tui"
	"golang.org/x/term"
)

const shutdownTimeout = 5 * time.Second

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: shuttle <serve|upload> [flags] [files...]")
	fmt.Fprintln(os.Stderr, "  shuttle serve -dir resources -port 5117")
	fmt.Fprintln(os.Stderr, "  shuttle upload -addr localhost:5117 notes.txt photo.png")
	fmt.Fprintln(os.Stderr, "  shuttle upload            (interactive, type 'quit' to exit)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "upload":
		runUpload(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(logger.NewHandler(w, level)))
}

func runServe(args []string) {
	cfg := config.Default()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	config.RegisterServerFlags(fs, &cfg)
	_ = fs.Parse(args)

	// the TUI owns the terminal; only errors are kept and shown after it exits
	var held logger.HeldWriter
	if cfg.TUI {
		slog.SetDefault(slog.New(logger.NewHandler(&held, slog.LevelError)))
	} else {
		setupLogging(os.Stderr, cfg.Debug)
	}

	var eventCh chan server.ServerEventName
	if cfg.TUI {
		eventCh = make(chan server.ServerEventName, 10)
	}

	srvr, err := server.NewServer(cfg, eventCh)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	ln, err := srvr.Listen()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srvr.Serve(ln); err != nil {
			slog.Error("Server stopped", "error", err)
		}
	}()

	if cfg.TUI {
		if err := tui.Start(srvr, eventCh); err != nil {
			slog.Error("Failed to start TUI", "error", err)
		}
		if err := held.Release(os.Stderr); err != nil {
			log.Printf("Failed to print held log records: %v", err)
		}
	} else {
		<-ctx.Done()
		slog.Info("Interrupt signal received. Starting graceful shutdown...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srvr.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}

func runUpload(args []string) {
	cfg := config.Default()
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	config.RegisterClientFlags(fs, &cfg)
	_ = fs.Parse(args)

	setupLogging(os.Stderr, cfg.Debug)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	up := client.NewUploader(cfg)

	if fs.NArg() > 0 {
		for _, res := range up.UploadAll(ctx, fs.Args()) {
			fmt.Println(client.FormatResult(res))
		}
		return
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	err := client.NewPrompt(up, os.Stdin, os.Stdout, interactive).Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println()
	case err != nil:
		log.Fatalf("Failed to read input: %v", err)
	}
}
