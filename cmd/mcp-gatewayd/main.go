// ABOUTME: Entry point for mcp-gatewayd, the MCP JSON-RPC gateway server
// ABOUTME: Wires config, tool registry, dispatcher, and transports together

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/mcp-gateway/internal/auth"
	"github.com/2389/mcp-gateway/internal/config"
	"github.com/2389/mcp-gateway/internal/dispatch"
	"github.com/2389/mcp-gateway/internal/docs"
	"github.com/2389/mcp-gateway/internal/events"
	"github.com/2389/mcp-gateway/internal/lifecycle"
	"github.com/2389/mcp-gateway/internal/middleware"
	"github.com/2389/mcp-gateway/internal/registry"
	"github.com/2389/mcp-gateway/internal/session"
	"github.com/2389/mcp-gateway/internal/transport"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _ __ ___   ___ _ __         __ _  __ _| |_ _____      ____ _ _   _
 | '_ ' _ \ / __| '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | | | | | | (__| |_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_| |_| |_|\___| .__/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                |_|          |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: MCP_GATEWAY_CONFIG env var > ./config.yaml > ~/.config/mcp-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MCP_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".config", "mcp-gateway", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mcp-gatewayd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the gateway server")
		fmt.Println("  health  Check gateway health")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
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

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	tools := registry.New(logger)
	registerBuiltinTools(tools)

	bus := events.NewBus(logger)
	sessions := session.New(logger, bus)

	ctrl := dispatch.NewController(dispatch.Limits{
		Global:          cfg.Limits.Global,
		PerToolDefault:  cfg.Limits.PerToolDefault,
		PerConnDefaultC: cfg.Limits.PerConnectionOther,
		PerConnDefaultH: cfg.Limits.PerConnectionHTTP,
		QueueDepth:      cfg.Limits.QueueDepth,
	}, cfg.Limits.PerTool)

	authenticator, err := buildAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	chain := buildMiddlewareChain(cfg.Middleware, authenticator, logger)

	d := dispatch.New(tools, chain, ctrl, sessions, bus, logger, dispatch.Config{
		Server:                dispatch.ServerInfo{Name: "mcp-gatewayd", Version: version},
		RequestTimeoutDefault: cfg.Transports.RequestTimeoutDefault,
		HardKillMultiplier:    cfg.Limits.HardKillMultiplier,
	})

	transportCfg := transport.Config{
		MaxRequestBytes:    cfg.Transports.MaxRequestBytes,
		PingInterval:       cfg.Transports.PingInterval,
		AllowOrigins:       cfg.Transports.CORSAllowOrigins,
		SessionHeaderName:  cfg.Transports.SessionHeaderName,
		PerConnectionLimit: cfg.Limits.PerConnectionOther,
	}

	httpTransport := transport.NewHTTP(d, sessions, bus, logger, transportCfg)
	wsTransport := transport.NewWS(d, sessions, bus, logger, transportCfg)
	sseTransport := transport.NewSSE(d, sessions, bus, logger, transportCfg)

	mux := http.NewServeMux()
	mux.Handle("/rpc", httpTransport)
	mux.Handle("/ws", wsTransport)
	mux.HandleFunc("/sse", sseTransport.HandleStream)
	mux.HandleFunc("/messages", sseTransport.HandleMessages)
	mux.HandleFunc("/tools.html", toolsHTMLHandler(tools))
	mux.HandleFunc("/health", healthHandler)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Addr:   %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Tools:  %d registered\n", tools.Count())
	fmt.Println()

	logger.Info("starting mcp-gatewayd", "config", configPath, "addr", cfg.Server.Addr, "tools", tools.Count())

	coordinator := lifecycle.New(cfg.Server.Addr, mux, sessions, tools,
		[]lifecycle.Drainable{httpTransport, wsTransport, sseTransport},
		10*time.Second, 5*time.Second, logger)

	// A second stop signal forces an immediate close instead of waiting
	// out the graceful drain.
	forceCh := make(chan os.Signal, 1)
	go func() {
		<-ctx.Done()
		signal.Notify(forceCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-forceCh:
			logger.Warn("second stop signal received, forcing immediate close")
			_ = coordinator.ForceClose()
		case <-time.After(15 * time.Second):
		}
	}()

	return coordinator.Run(ctx)
}

func registerBuiltinTools(tools *registry.Registry) {
	echo := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{
			Name:        "echo",
			DisplayName: "Echo",
			Description: "Echoes back the arguments it was called with.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			return arguments, nil
		},
	)
	if _, err := tools.Register(echo); err != nil {
		panic(fmt.Sprintf("registering builtin tools: %v", err))
	}
}

func buildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "jwt":
		return auth.NewJWTAuthenticator([]byte(cfg.JWTSecret)), nil
	case "ssh":
		return auth.NewSSHAuthenticator(), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

func buildMiddlewareChain(cfg config.MiddlewareConfig, authenticator auth.Authenticator, logger *slog.Logger) *middleware.Chain {
	limiter := middleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	sink := middleware.NewMetricsSink()
	requireAuth := authenticator != nil

	available := map[string]middleware.Middleware{
		"logging":    middleware.Logging(logger),
		"validation": middleware.Validation(),
		"rate_limit": middleware.RateLimit(limiter),
		"auth":       middleware.Auth(authenticator, requireAuth, nil),
		"metrics":    middleware.Metrics(sink),
	}

	mws := make([]middleware.Middleware, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		if mw, ok := available[name]; ok {
			mws = append(mws, mw)
		}
	}
	return middleware.New(mws...)
}

func toolsHTMLHandler(tools *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fragment, err := docs.RenderCatalog(tools.List())
		if err != nil {
			http.Error(w, "failed to render tool catalog", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!doctype html><html><body>%s</body></html>", fragment)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
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
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{level: level}
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
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
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
	return &colorHandler{level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{level: h.level, attrs: h.attrs, groups: newGroups}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.Addr)
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
