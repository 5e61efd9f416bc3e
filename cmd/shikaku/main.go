// Package main is the shikaku CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/cli"
	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/inference"
	"github.com/hyperjump/shikaku/internal/provider"
	"github.com/hyperjump/shikaku/internal/server"
	"github.com/hyperjump/shikaku/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shikaku/config.yaml"
	defaultServerURL  = "http://localhost:8000"
	clientTimeout     = 2 * time.Minute
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "features":
		runFeatures()
	case "classify":
		runClassify()
	case "embed-text":
		runEmbedText()
	case "health":
		runHealth()
	case "version", "--version", "-v":
		fmt.Printf("shikaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode,
		zap.String("service", server.ServiceName),
		zap.String("version", version),
	)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("provider", cfg.Models.Provider),
	)

	// Model load failures abort startup.
	loadCtx, loadCancel := context.WithTimeout(context.Background(), time.Minute)
	p, err := provider.New(loadCtx, &cfg.Models, logger)
	loadCancel()
	if err != nil {
		logger.Fatal("Failed to load models", zap.Error(err))
	}
	defer p.Close()

	info := p.Info()
	logger.Info("models ready",
		zap.String("device", info.Device),
		zap.Bool("clip", info.EmbeddingLoaded),
		zap.Bool("blip", info.CaptionLoaded),
	)

	pipeline := inference.NewPipeline(p, &cfg.Classify, logger)
	srv := server.NewServer(pipeline, cfg, version, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// argsReorder moves any flags (and their values) that appear after the first
// positional argument to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// clientFlags registers the flags shared by the client subcommands.
func clientFlags(fs *flag.FlagSet) (serverURL, output *string) {
	serverURL = fs.String("server", defaultServerURL, "server URL")
	output = fs.String("output", "text", "output format: text or json")
	return serverURL, output
}

// newClient validates the shared flags and returns a client and output format, exiting on error.
func newClient(serverURL, output string) (*cli.Client, cli.OutputFormat) {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cli.ValidateServerURL(serverURL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cli.NewClient(serverURL, clientTimeout), format
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
	os.Exit(1)
}

func runFeatures() {
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	serverURL, output := clientFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: shikaku features [flags] <image>")
		os.Exit(1)
	}
	client, format := newClient(*serverURL, *output)

	resp, err := client.ImageFeatures(context.Background(), fs.Arg(0))
	if err != nil {
		fail("Features", err)
	}
	if err := cli.WriteImageFeatures(os.Stdout, resp, format); err != nil {
		fail("Output", err)
	}
}

func runClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	serverURL, output := clientFlags(fs)
	labels := fs.String("labels", "", "comma-separated candidate labels (default: server's default labels)")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: shikaku classify [flags] <image>")
		os.Exit(1)
	}
	client, format := newClient(*serverURL, *output)

	resp, err := client.Classify(context.Background(), fs.Arg(0), cli.ParseLabels(*labels))
	if err != nil {
		fail("Classify", err)
	}
	if err := cli.WriteClassify(os.Stdout, resp, format); err != nil {
		fail("Output", err)
	}
}

func runEmbedText() {
	fs := flag.NewFlagSet("embed-text", flag.ExitOnError)
	serverURL, output := clientFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))
	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: shikaku embed-text [flags] <query>")
		os.Exit(1)
	}
	client, format := newClient(*serverURL, *output)

	resp, err := client.TextEmbedding(context.Background(), query)
	if err != nil {
		fail("Text embedding", err)
	}
	if err := cli.WriteTextEmbedding(os.Stdout, resp, format); err != nil {
		fail("Output", err)
	}
}

func runHealth() {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	serverURL, output := clientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	client, format := newClient(*serverURL, *output)

	resp, err := client.Health(context.Background())
	if err != nil {
		fail("Health check", err)
	}
	if err := cli.WriteHealth(os.Stdout, resp, format); err != nil {
		fail("Output", err)
	}
}

func printUsage() {
	fmt.Println(`shikaku - Image/text embedding, captioning and zero-shot classification service

Usage:
  shikaku server [flags]                Start the HTTP server
  shikaku features [flags] <image>      Embed and caption an image
  shikaku classify [flags] <image>      Zero-shot classify an image
  shikaku embed-text [flags] <query>    Embed a text query
  shikaku health [flags]                Show server health
  shikaku version                       Show version
  shikaku help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shikaku/config.yaml)
  --debug            Enable debug logging

Client Flags (features, classify, embed-text, health):
  --server string    Server URL (default: http://localhost:8000)
  --output string    Output format: text or json (default: text)

Classify Flags:
  --labels string    Comma-separated candidate labels (default: server's default labels)

Examples:
  shikaku server
  shikaku features photo.jpg
  shikaku classify --labels cat,dog,bird photo.jpg
  shikaku embed-text a dog playing in the snow
  shikaku health --output json`)
}
