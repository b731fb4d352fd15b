// ABOUTME: Entry point for pursuit-gateway MCP tool server
// ABOUTME: Serves OAuth login and permission-gated pursuit tools over HTTP

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/pursuitworks/pursuit-gateway/internal/config"
	"github.com/pursuitworks/pursuit-gateway/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                 _ _
 _ __  _   _ _ __ ___ _   _ _ __(_) |_      __ _  __ _| |_ _____      ____ _ _   _
| '_ \| | | | '__/ __| | | | '__| | __|____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| |_) | |_| | |  \__ \ |_| | |  | | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
| .__/ \__,_|_|  |___/\__,_|_|  |_|\__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
|_|                                         |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: PURSUIT_CONFIG env var > XDG_CONFIG_HOME/pursuit/gateway.yaml > ~/.config/pursuit/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PURSUIT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "pursuit", "gateway.yaml")
}

// getDataPath returns the path to the pursuit data directory.
// Priority: XDG_DATA_HOME/pursuit > ~/.local/share/pursuit
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "pursuit")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pursuit-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the gateway server")
		fmt.Println("  init    Create a new config file interactively")
		fmt.Println("  health  Check gateway health")
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
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("External: %s\n", cfg.Server.ExternalURL)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Driver)

	fmt.Println()

	logger.Info("starting pursuit-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"external_url", cfg.Server.ExternalURL,
	)

	// Create and run gateway
	gw, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("pursuit-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	externalURL := prompt(reader, "External URL", "http://localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	driver := prompt(reader, "Database driver (sqlite/postgres)", "sqlite")
	var dbPath, dbDSN string
	if driver == "postgres" {
		dbDSN = prompt(reader, "Postgres DSN", "postgres://localhost/pursuit?sslmode=disable")
	} else {
		dbPath = prompt(reader, "SQLite database path", defaultDbPath)
	}

	// Upstream identity provider
	fmt.Println("\n--- Google OAuth Configuration ---")
	clientID := prompt(reader, "Google client ID", "")
	clientSecret := prompt(reader, "Google client secret", "")
	hostedDomain := prompt(reader, "Hosted domain restriction (empty for none)", "")

	// Secrets
	fmt.Println("\n--- Auth Secrets ---")
	tokenSecret := prompt(reader, "Token signing secret (empty to generate)", "")
	if tokenSecret == "" {
		tokenSecret = generateSecret()
		fmt.Printf("Generated token secret: %s\n", tokenSecret)
	}
	cookieSecret := prompt(reader, "Approval cookie secret (empty to generate)", "")
	if cookieSecret == "" {
		cookieSecret = generateSecret()
		fmt.Printf("Generated cookie secret: %s\n", cookieSecret)
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# pursuit-gateway configuration\n")
	cfg.WriteString("# Generated by pursuit-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString(fmt.Sprintf("  external_url: \"%s\"\n", externalURL))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: \"%s\"\n", driver))
	if driver == "postgres" {
		cfg.WriteString(fmt.Sprintf("  dsn: \"%s\"\n", dbDSN))
	} else {
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("upstream:\n")
	cfg.WriteString(fmt.Sprintf("  client_id: \"%s\"\n", clientID))
	cfg.WriteString(fmt.Sprintf("  client_secret: \"%s\"\n", clientSecret))
	if hostedDomain != "" {
		cfg.WriteString(fmt.Sprintf("  hosted_domain: \"%s\"\n", hostedDomain))
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  token_secret: \"%s\"\n", tokenSecret))
	cfg.WriteString(fmt.Sprintf("  cookie_secret: \"%s\"\n", cookieSecret))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure parent directory exists
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("\nWrote %s\n", outputFile)
	fmt.Println("Start the server with: pursuit-gateway serve")
	return nil
}

func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return base64.RawURLEncoding.EncodeToString(buf)
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
