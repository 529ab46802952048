// Dealbridge bridges an authenticated DealLoft account to MCP clients.
//
// It speaks MCP over stdio and exposes the platform's chat, content,
// and deal-search endpoints as tools. Credentials come from a cookie
// string in config, environment variables, or the macOS keychain (see
// [creds.Store]).
//
// Usage:
//
//	dealbridge                      Serve MCP over stdio (default)
//	dealbridge serve                Same, explicitly
//	dealbridge auth set <cookie>    Store platform cookies in the keychain
//	dealbridge auth clear           Remove stored keychain credentials
//	dealbridge version              Print version and build information
//	dealbridge -o json version      Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/covale/dealbridge/internal/buildinfo"
	"github.com/covale/dealbridge/internal/config"
	"github.com/covale/dealbridge/internal/creds"
	"github.com/covale/dealbridge/internal/dealsearch"
	"github.com/covale/dealbridge/internal/loft"
	"github.com/covale/dealbridge/internal/searchkey"
	"github.com/covale/dealbridge/internal/session"
	"github.com/covale/dealbridge/internal/tools"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run], keeping os.Exit and os.Args out of
// the application logic so the lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the dealbridge command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface here is tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "", "serve":
		// The bare command serves: MCP launchers run the binary with no
		// arguments.
		return runServe(ctx, stderr, configPath)
	case "auth":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: dealbridge auth <set|clear>")
		}
		return runAuth(stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe wires the full client stack and serves MCP over stdio until
// the client closes the transport. Logs go to stderr: stdout carries
// the protocol.
func runServe(ctx context.Context, stderr io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
	}
	logger := newLogger(stderr, level)
	slog.SetDefault(logger)

	logger.Info("starting dealbridge",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"config", cfgPath,
		"platform", cfg.Platform.BaseURL,
	)

	store := creds.NewStore(cfg.Platform.Cookie, nil, logger)
	sess := session.New(cfg.Platform.BaseURL, store, logger)
	client := loft.NewClient(sess, logger)

	waiter := loft.NewWaiter(client)
	waiter.SetPollInterval(cfg.Wait.PollInterval())

	var search *dealsearch.Client
	if cfg.Search.AppID != "" {
		keys := searchkey.NewProvider(client, cfg.Search.KeyPage, logger)
		search = dealsearch.NewClient(cfg.Search.AppID, cfg.Search.Index, keys, logger)
	} else {
		logger.Warn("deal search disabled: no search app id configured")
	}

	s := server.NewMCPServer("dealbridge", buildinfo.Version,
		server.WithToolCapabilities(true),
	)
	tools.Register(s, tools.Deps{
		Client:        client,
		Waiter:        waiter,
		Search:        search,
		DefaultUserID: cfg.Platform.UserID,
		WaitTimeout:   cfg.Wait.Timeout(),
		Logger:        logger,
	})

	logger.Info("serving MCP over stdio")
	return server.ServeStdio(s)
}

// runAuth handles "dealbridge auth set <cookie>" and "dealbridge auth
// clear". Both operate on the OS keychain, so they only work where
// keychain storage is supported.
func runAuth(stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, slog.LevelInfo)
	store := creds.NewStore(cfg.Platform.Cookie, nil, logger)

	switch args[0] {
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: dealbridge auth set <cookie-string>")
		}
		pair := creds.ParseCookie(strings.Join(args[1:], " "))
		if err := store.Persist(pair); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Stored %s and %s in the keychain.\n", creds.CookieToken, creds.CookieSession)
		return nil
	case "clear":
		if err := store.Erase(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Removed stored credentials.")
		return nil
	default:
		return fmt.Errorf("unknown auth subcommand: %s", args[0])
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Dealbridge - DealLoft MCP bridge")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: dealbridge [flags] [command] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve               Serve MCP over stdio (default)")
	fmt.Fprintln(w, "  auth set <cookie>   Store platform cookies in the OS keychain")
	fmt.Fprintln(w, "  auth clear          Remove stored keychain credentials")
	fmt.Fprintln(w, "  version             Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/dealbridge/config.yaml, /etc/dealbridge/config.yaml")
	fmt.Fprintln(w, "No config file is required: everything can come from DEALBRIDGE_* variables.")
	return nil
}

// newLogger builds the process logger. Trace-level support and custom
// level names come from the config package.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. An empty
// located path is fine: dealbridge runs from environment variables
// alone.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	if cfgPath == "" {
		cfgPath = "(env only)"
	}
	return cfg, cfgPath, nil
}
