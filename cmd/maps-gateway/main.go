// ABOUTME: Entry point for the maps-gateway MCP server
// ABOUTME: cobra commands to serve over stdio or HTTP, list tools, check health and mint tokens

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/maps-gateway/internal/auth"
	"github.com/2389/maps-gateway/internal/config"
	"github.com/2389/maps-gateway/internal/gateway"
	"github.com/2389/maps-gateway/internal/maps"
	"github.com/2389/maps-gateway/internal/mcp"
	"github.com/2389/maps-gateway/internal/stdio"
	"github.com/2389/maps-gateway/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                 _
 _ __ ___   __ _ _ __  ___        __ _  __ _| |_ _____      ____ _ _   _
| '_ ' _ \ / _' | '_ \/ __|_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | | | | | (_| | |_) \__ \_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_| |_| |_|\__,_| .__/|___/      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                |_|              |___/                             |___/
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "maps-gateway",
		Short:         "MCP server exposing Yandex Maps geocoding and static maps",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a YAML or TOML config file")

	root.AddCommand(
		newServeCommand(),
		newToolsCommand(),
		newHealthCommand(),
		newTokenCommand(),
	)
	return root
}

// loadConfig resolves and loads the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	flagPath, _ := cmd.Flags().GetString("config")
	path := config.ResolvePath(flagPath)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server.

In stdio mode requests are read line by line from stdin and responses are
written to stdout; logs go to stderr. In http mode the server listens on
server.host:server.port (or the tailnet, when enabled) and serves /mcp, the
legacy /sse and /messages endpoints, /tools and /health.`,
		RunE: runServe,
	}
	cmd.Flags().String("mode", "", "transport mode: stdio or http (overrides config and MCP_TRANSPORT)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Mode = mode
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
	}

	// stdout carries the protocol in stdio mode
	logOut := io.Writer(os.Stdout)
	if cfg.Mode == config.ModeStdio {
		logOut = os.Stderr
	}
	logger := setupLogger(cfg.Logging, logOut)

	if cfg.Maps.APIKey == "" {
		logger.Warn("maps.api_key is empty; tool calls will be rejected by Yandex (set YANDEX_MAPS_API_KEY)")
	}

	client, err := newMapsClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	dispatcher, err := newDispatcher(client, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	if cfg.Mode == config.ModeStdio {
		logger.Info("starting maps-gateway", "mode", cfg.Mode, "config", configPath, "version", version)
		return stdio.NewServer(dispatcher, os.Stdin, os.Stdout, logger).Run(ctx)
	}

	printBanner(cfg, configPath)
	logger.Info("starting maps-gateway", "mode", cfg.Mode, "config", configPath, "http_addr", cfg.Addr())

	gw, err := gateway.New(cfg, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func newMapsClient(cfg *config.Config, logger *slog.Logger) (*maps.Client, error) {
	client, err := maps.NewClient(maps.Config{
		APIKey:       cfg.Maps.APIKey,
		StaticAPIKey: cfg.Maps.StaticKey(),
		GeocoderURL:  cfg.Maps.GeocoderURL,
		StaticURL:    cfg.Maps.StaticURL,
		Timeout:      cfg.Maps.Timeout,
		CacheTTL:     cfg.Maps.CacheTTL,
		CacheSize:    cfg.Maps.CacheSize,
		RateLimit:    cfg.Maps.RateLimit,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}
	return client, nil
}

func newDispatcher(client *maps.Client, logger *slog.Logger) (*mcp.Dispatcher, error) {
	d, err := mcp.NewDispatcher(mcp.DispatcherConfig{
		Registry:   tools.NewCatalog(),
		Executor:   maps.NewExecutor(client, logger),
		Logger:     logger,
		ServerInfo: mcp.ServerInfo{Name: "maps-gateway", Version: version},
	})
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	return d, nil
}

func printBanner(cfg *config.Config, configPath string) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Addr())
	}

	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ! ")
		fmt.Println("Auth:      disabled")
	}
	fmt.Println()
}

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(mcp.ListToolsResult{Tools: tools.NewCatalog().List()})
		},
	}
}

func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running HTTP server",
		RunE:  runHealth,
	}
	cmd.Flags().String("url", "", "base URL of the server (default from config)")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	base, _ := cmd.Flags().GetString("url")
	if base == "" {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		base = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
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

	var health gateway.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "healthy (%d sessions)\n", health.Sessions)
	return nil
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP endpoints",
		RunE:  runToken,
	}
	cmd.Flags().String("subject", "", "token subject, e.g. the client name")
	cmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not set (config or MAPS_GATEWAY_JWT_SECRET)")
	}

	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
