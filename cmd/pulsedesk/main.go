// ABOUTME: Entry point for the pulsedesk conversation client
// ABOUTME: Dispatches chat, history, stats, and init subcommands

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/pulsedesk/pulsedesk/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _              _           _
  _ __  _   _| |___  ___  __| | ___  ___| | __
 | '_ \| | | | / __|/ _ \/ _' |/ _ \/ __| |/ /
 | |_) | |_| | \__ \  __/ (_| |  __/\__ \   <
 | .__/ \__,_|_|___/\___|\__,_|\___||___/_|\_\
 |_|
`

// getConfigPath returns the path to the client config file.
// Priority: PULSEDESK_CONFIG env var > XDG_CONFIG_HOME/pulsedesk/config.yaml > ~/.config/pulsedesk/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PULSEDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "pulsedesk", "config.yaml")
}

// getDataPath returns the path to the pulsedesk data directory.
// Priority: XDG_DATA_HOME/pulsedesk > ~/.local/share/pulsedesk
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "pulsedesk")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx, args)
	case "history":
		err = runHistory(ctx, args)
	case "stats":
		err = runStats(ctx)
	case "init":
		err = runInit()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n", version)
	fmt.Println()
	fmt.Println("Usage: pulsedesk <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  chat [title]            Start a conversation (interactive)")
	fmt.Println("  chat --resume <id>      Resume an existing conversation")
	fmt.Println("  history [filters]       Search stored conversations")
	fmt.Println("  stats                   Show usage statistics")
	fmt.Println("  init                    Create a config file interactively")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PULSEDESK_CONFIG        Config file path (default: ~/.config/pulsedesk/config.yaml)")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
