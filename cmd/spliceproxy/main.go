package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/spliceproxy/spliceproxy/internal/config"
	"github.com/spliceproxy/spliceproxy/internal/dns"
	"github.com/spliceproxy/spliceproxy/internal/inject"
	"github.com/spliceproxy/spliceproxy/internal/logging"
	"github.com/spliceproxy/spliceproxy/internal/matcher"
	"github.com/spliceproxy/spliceproxy/internal/proxy"
	"github.com/spliceproxy/spliceproxy/internal/script"
)

type rootFlags struct {
	configPath string
	port       int
	scriptsDir string
	silent     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "spliceproxy",
		Short:         "Forwarding HTTP proxy that rewrites traffic with injection scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, flags)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.toml", "path to the TOML config file")
	root.PersistentFlags().IntVarP(&flags.port, "port", "p", 0, "listen port (overrides config)")
	root.PersistentFlags().StringVarP(&flags.scriptsDir, "scripts-dir", "s", "", "scripts directory (overrides config)")
	root.Flags().BoolVar(&flags.silent, "silent", false, "do not print the startup banner")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, flags)
		},
	}
	start.Flags().BoolVar(&flags.silent, "silent", false, "do not print the startup banner")

	listScripts := &cobra.Command{
		Use:   "list-scripts",
		Short: "List the installed injection scripts",
		RunE: func(*cobra.Command, []string) error {
			return runListScripts(flags)
		},
	}

	install := &cobra.Command{
		Use:   "install",
		Short: "Install the example injection scripts",
		RunE: func(*cobra.Command, []string) error {
			return runInstall(flags)
		},
	}

	root.AddCommand(start, listScripts, install)

	return root
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.port != 0 {
		cfg.Proxy.Port = flags.port
	}
	if flags.scriptsDir != "" {
		cfg.Scripts.Directory = flags.scriptsDir
	}

	return cfg, cfg.Validate()
}

func runStart(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	if !flags.silent {
		printBanner(cfg)
	}

	baseLogger := logging.New(cfg.Logging, cfg.LogLevel())
	logger := logging.WithScope(baseLogger, "main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := script.NewRegistry(logging.WithScope(baseLogger, "script"))

	if cfg.Scripts.Enabled {
		rules, err := script.LoadDir(cfg.Scripts.Directory, logging.WithScope(baseLogger, "script"))
		if err != nil {
			return fmt.Errorf("failed to load scripts: %w", err)
		}
		registry.LoadAll(rules)

		logger.Info().
			Int("count", registry.Len()).
			Str("dir", cfg.Scripts.Directory).
			Msg("loaded injection scripts")

		go func() {
			err := script.Watch(ctx, cfg.Scripts.Directory, registry,
				logging.WithScope(baseLogger, "watch"))
			if err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("scripts watcher stopped")
			}
		}()
	}

	resolver, err := dns.New(cfg.DNS, logging.WithScope(baseLogger, "dns"))
	if err != nil {
		return err
	}

	srv := proxy.NewServer(
		baseLogger,
		matcher.PolicyFromConfig(cfg),
		inject.NewEngine(registry, logging.WithScope(baseLogger, "inject")),
		resolver,
		proxy.Options{
			ListenAddr:      cfg.Proxy.ListenAddr(),
			UpstreamTimeout: cfg.Proxy.Timeout(),
			ScriptsEnabled:  cfg.Scripts.Enabled,
		},
	)

	return srv.ListenAndServe(ctx)
}

func runListScripts(flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	rules, err := script.LoadDir(cfg.Scripts.Directory, zerolog.Nop())
	if err != nil {
		return err
	}

	if len(rules) == 0 {
		pterm.DefaultBasicText.Println("no scripts installed in " + cfg.Scripts.Directory)
		return nil
	}

	rows := pterm.TableData{{"NAME", "TYPE", "ENABLED", "DOMAINS"}}
	for _, rule := range rules {
		rows = append(rows, []string{
			rule.Name,
			rule.InjectType.String(),
			fmt.Sprint(rule.Enabled),
			strings.Join(rule.TargetDomains, ", "),
		})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runInstall(flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	if err := script.WriteExamples(cfg.Scripts.Directory); err != nil {
		return err
	}

	pterm.DefaultBasicText.Println("example scripts installed to " + cfg.Scripts.Directory)
	return nil
}

func printBanner(cfg *config.Config) {
	cyan := putils.LettersFromStringWithStyle("Splice", pterm.NewStyle(pterm.FgCyan))
	purple := putils.LettersFromStringWithStyle("Proxy", pterm.NewStyle(pterm.FgLightMagenta))
	_ = pterm.DefaultBigText.WithLetters(cyan, purple).Render()

	_ = pterm.DefaultBulletList.WithItems([]pterm.BulletListItem{
		{Level: 0, Text: "ADDR    : " + cfg.Proxy.ListenAddr()},
		{Level: 0, Text: "SCRIPTS : " + cfg.Scripts.Directory},
		{Level: 0, Text: "DNS     : " + cfg.DNS.Mode},
		{Level: 0, Text: "LOG     : " + cfg.Logging.Level},
	}).Render()

	pterm.DefaultBasicText.Println("Press 'CTRL + c' to quit")
}
