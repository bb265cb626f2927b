// ABOUTME: Entry point for metrosha-gateway, the Метроша assistant backend
// ABOUTME: Subcommands serve, init, health and token

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/metrosha-gateway/internal/auth"
	"github.com/2389/metrosha-gateway/internal/config"
	"github.com/2389/metrosha-gateway/internal/gateway"
	"github.com/2389/metrosha-gateway/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
                 _                 _
  _ __ ___   ___| |_ _ __ ___  ___| |__   __ _
 | '_ ' _ \ / _ \ __| '__/ _ \/ __| '_ \ / _' |
 | | | | | |  __/ |_| | | (_) \__ \ | | | (_| |
 |_| |_| |_|\___|\__|_|  \___/|___/_| |_|\__,_|
`

// getDataPath returns the path to the metrosha data directory.
// Priority: XDG_DATA_HOME/metrosha > ~/.local/share/metrosha
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "metrosha")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: metrosha-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                          Start the gateway server")
		fmt.Println("  init                           Create a new config file interactively")
		fmt.Println("  health                         Check gateway readiness")
		fmt.Println("  token --email EMAIL [--ttl D]  Mint a session token for an existing identity")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:      %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:        %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:    %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Environment: ")
	if cfg.Environment == config.EnvProd {
		yellow.Println(cfg.Environment)
	} else {
		fmt.Println(cfg.Environment)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:     %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting metrosha-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"driver", cfg.Database.Driver,
		"environment", cfg.Environment,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", dialAddr(cfg.Server.HTTPAddr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}

	fmt.Println("ready")
	return nil
}

// dialAddr turns a listen address such as ":8000" into one a client can dial.
func dialAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}

// tokenArgs are the flags of the token subcommand.
type tokenArgs struct {
	email string
	ttl   time.Duration
}

// parseTokenArgs supports both "--flag value" and "--flag=value".
func parseTokenArgs(args []string) (tokenArgs, error) {
	var out tokenArgs
	var ttlRaw string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--email" || arg == "-e":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--email requires a value")
			}
			out.email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			out.email = strings.TrimPrefix(arg, "--email=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--ttl requires a value")
			}
			ttlRaw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ttl="):
			ttlRaw = strings.TrimPrefix(arg, "--ttl=")
		case strings.HasPrefix(arg, "-"):
			return out, fmt.Errorf("unknown flag: %s", arg)
		default:
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	out.email = strings.TrimSpace(out.email)
	if out.email == "" {
		return out, fmt.Errorf("--email flag is required")
	}

	if ttlRaw != "" {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return out, fmt.Errorf("parsing --ttl %q: %w", ttlRaw, err)
		}
		if ttl <= 0 {
			return out, fmt.Errorf("--ttl must be positive")
		}
		out.ttl = ttl
	}
	return out, nil
}

// runToken mints a session token for an existing identity. It is an operator
// tool for support and smoke tests; no password is checked.
func runToken(ctx context.Context, args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := gateway.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.GetIdentityByEmail(ctx, parsed.email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no identity with email %q", parsed.email)
		}
		return fmt.Errorf("looking up identity: %w", err)
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.Algorithm)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	ttl := parsed.ttl
	if ttl == 0 {
		ttl = cfg.Auth.TokenTTL
	}
	token, err := tokens.Issue(parsed.email, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// generateSecret returns a random base64 JWT secret.
func generateSecret() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("metrosha-gateway configuration setup")
	fmt.Println("====================================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	environment := prompt(reader, "Environment (dev/prod)", config.EnvDev)
	httpAddr := prompt(reader, "HTTP address", ":8000")

	fmt.Println("\n--- Database Configuration ---")
	driver := prompt(reader, "Driver (sqlite/postgres)", config.DriverSQLite)
	dsnDefault := defaultDbPath
	if driver == config.DriverPostgres {
		dsnDefault = "postgres://metrosha@localhost:5432/metrosha?sslmode=disable"
	}
	dsn := prompt(reader, "DSN", dsnDefault)

	fmt.Println("\n--- Completion Service ---")
	credentials := prompt(reader, "Authorization key", "${GIGACHAT_CREDENTIALS}")
	scope := prompt(reader, "Scope", "GIGACHAT_API_PERS")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	var cfg strings.Builder
	cfg.WriteString("# metrosha-gateway configuration\n")
	cfg.WriteString("# Generated by metrosha-gateway init\n\n")

	cfg.WriteString(fmt.Sprintf("environment: %q\n\n", environment))

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n\n", httpAddr))

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: %q\n", driver))
	cfg.WriteString(fmt.Sprintf("  dsn: %q\n\n", dsn))

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", secret))
	cfg.WriteString("  algorithm: \"HS256\"\n")
	cfg.WriteString("  token_ttl: \"24h\"\n\n")

	cfg.WriteString("completion:\n")
	cfg.WriteString(fmt.Sprintf("  credentials: %q\n", credentials))
	cfg.WriteString(fmt.Sprintf("  scope: %q\n", scope))
	cfg.WriteString("  timeout: \"60s\"\n\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n\n", logFormat))

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file holds the JWT secret
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if driver == config.DriverSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  metrosha-gateway serve\n")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
