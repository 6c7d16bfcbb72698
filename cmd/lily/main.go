package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/lily/internal/profile"
	"github.com/hrygo/lily/internal/version"
	"github.com/hrygo/lily/plugin/ai"
	"github.com/hrygo/lily/plugin/ai/timeout"
	"github.com/hrygo/lily/server"
	"github.com/hrygo/lily/store"
	"github.com/hrygo/lily/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:           "lily",
		Short:         `A chat relay that keeps per-session transcripts in memory and forwards turns to a generative model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfigFile()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String(viper.GetString("mode")))
		},
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Print archived exchanges of a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			limit, _ := cmd.Flags().GetInt("limit")
			return runHistory(cmd.Context(), cmd.OutOrStdout(), sessionID, limit)
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 5000)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("ai-provider", ai.ProviderGemini)
	viper.SetDefault("ai-model", profile.DefaultModel)
	viper.SetDefault("ai-generation-timeout", timeout.GenerationTimeout)
	viper.SetDefault("assistant-name", profile.DefaultAssistantName)
	viper.SetDefault("session-idle-ttl", profile.DefaultSessionIdleTTL)
	viper.SetDefault("session-max-count", profile.DefaultSessionMaxCount)
	viper.SetDefault("session-max-turns", profile.DefaultSessionMaxTurns)
	viper.SetDefault("session-cleanup-interval", profile.DefaultCleanupInterval)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json); may hold api-key")
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 5000, "port of server")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("driver", "", `exchange archive driver, "sqlite" or "postgres"; empty disables the archive`)
	flags.String("dsn", "", "archive database source name")
	flags.String("ai-provider", ai.ProviderGemini, `generation provider, "gemini" or "openai"`)
	flags.String("ai-model", profile.DefaultModel, "model identifier")
	flags.String("ai-base-url", "", "override the provider endpoint")
	flags.Duration("ai-generation-timeout", timeout.GenerationTimeout, "deadline of one generation call, 0 disables it")
	flags.StringSlice("ai-tools", nil, `built-in tools to enable, e.g. google_search,code_execution; "none" disables the provider default (gemini: google_search)`)
	flags.String("assistant-name", profile.DefaultAssistantName, "assistant name used in fallback messages")
	flags.String("system-instruction", "", "system instruction sent with every call")
	flags.Duration("session-idle-ttl", profile.DefaultSessionIdleTTL, "remove sessions idle for longer, 0 keeps them")
	flags.Int("session-max-count", profile.DefaultSessionMaxCount, "maximum number of live sessions, 0 is unlimited")
	flags.Int("session-max-turns", profile.DefaultSessionMaxTurns, "maximum turns kept per session, 0 is unlimited")
	flags.Duration("session-cleanup-interval", profile.DefaultCleanupInterval, "period of the idle session sweep")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	historyCmd.Flags().String("session", "default_user", "session id")
	historyCmd.Flags().Int("limit", 20, "number of exchanges to print, 0 prints all")

	rootCmd.AddCommand(serveCmd, versionCmd, historyCmd)

	viper.SetEnvPrefix("lily")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func loadConfigFile() error {
	configFile := viper.GetString("config")
	if configFile == "" {
		return nil
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", configFile)
	}
	return nil
}

// newProfile builds the profile from flags, environment and config file.
func newProfile() (*profile.Profile, error) {
	mode := viper.GetString("mode")
	p := &profile.Profile{
		Mode:                   mode,
		Addr:                   viper.GetString("addr"),
		Port:                   viper.GetInt("port"),
		LogLevel:               viper.GetString("log-level"),
		Version:                version.GetCurrentVersion(mode),
		Driver:                 viper.GetString("driver"),
		DSN:                    viper.GetString("dsn"),
		AIProvider:             viper.GetString("ai-provider"),
		AIModel:                viper.GetString("ai-model"),
		AIBaseURL:              viper.GetString("ai-base-url"),
		AIGenerationTimeout:    viper.GetDuration("ai-generation-timeout"),
		AITools:                viper.GetStringSlice("ai-tools"),
		AssistantName:          viper.GetString("assistant-name"),
		SystemInstruction:      viper.GetString("system-instruction"),
		SessionIdleTTL:         viper.GetDuration("session-idle-ttl"),
		SessionMaxCount:        viper.GetInt("session-max-count"),
		SessionMaxTurns:        viper.GetInt("session-max-turns"),
		SessionCleanupInterval: viper.GetDuration("session-cleanup-interval"),
	}

	// The credential is never a flag: environment first, then the config file.
	p.FromEnv()
	if p.AIAPIKey == "" {
		p.AIAPIKey = strings.TrimSpace(viper.GetString("api-key"))
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}
	return p, nil
}

func setupLogger(p *profile.Profile, w io.Writer) {
	opts := &slog.HandlerOptions{Level: p.ParseLogLevel()}
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runServe(ctx context.Context) error {
	p, err := newProfile()
	if err != nil {
		return err
	}
	setupLogger(p, os.Stderr)

	aiConfig := ai.NewConfigFromProfile(p)
	if err := aiConfig.Validate(); err != nil {
		slog.Error("invalid AI configuration", slog.String("error", err.Error()))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := ai.NewGateway(ctx, &aiConfig.LLM)
	if err != nil {
		return errors.Wrap(err, "failed to create generation gateway")
	}
	if closer, ok := gateway.(io.Closer); ok {
		defer closer.Close()
	}

	var st *store.Store
	if p.IsArchiveEnabled() {
		st, err = openStore(ctx, p)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	s, err := server.NewServer(ctx, p, st, gateway, aiConfig.LLM.Behavior)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	printGreetings(p, aiConfig)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout.ShutdownTimeout)
		defer cancel()
		s.Shutdown(shutdownCtx)
		return nil
	})
	return g.Wait()
}

func runHistory(ctx context.Context, w io.Writer, sessionID string, limit int) error {
	p, err := newProfile()
	if err != nil {
		return err
	}
	if !p.IsArchiveEnabled() {
		return errors.New("no archive configured, set --driver and --dsn")
	}

	st, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer st.Close()

	exchanges, err := st.ListChatExchanges(ctx, &store.FindChatExchange{SessionID: &sessionID, Limit: limit})
	if err != nil {
		return errors.Wrap(err, "failed to list exchanges")
	}
	if len(exchanges) == 0 {
		fmt.Fprintf(w, "No archived exchanges for session %q.\n", sessionID)
		return nil
	}

	// Newest first from the store; print in conversation order.
	for i := len(exchanges) - 1; i >= 0; i-- {
		e := exchanges[i]
		fmt.Fprintf(w, "[%s] %s\n", formatTs(e.CreatedTs), e.UID)
		fmt.Fprintf(w, "  user: %s\n", e.UserText)
		fmt.Fprintf(w, "  assistant: %s\n", e.AssistantText)
	}
	return nil
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}
	return st, nil
}

func formatTs(ts int64) string {
	return time.Unix(ts, 0).Format(time.RFC3339)
}

func printGreetings(p *profile.Profile, cfg *ai.Config) {
	fmt.Printf("Lily %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s, provider: %s, model: %s\n", p.Mode, cfg.LLM.Provider, cfg.LLM.Model)
	if p.IsArchiveEnabled() {
		fmt.Printf("Archive: %s\n", p.Driver)
	}
	fmt.Printf("Server running on %s\n", p.ListenAddr())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
