// Package main implements the invoicematch CLI: invoice extraction through the
// configured fallback chain and matching of extracted lines against estimates.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-matcher/internal/app"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
)

var (
	// configPath is the optional YAML file; INVOICEMATCH_* variables override it
	configPath string
	logLevel   string

	// document hints shared by extract, batch and process
	supplierHint string
	formatHint   string
	projectHint  string
	dateOrder    string

	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "invoicematch",
	Short: "Extract invoices and match them against project estimates",
	Long: `invoicematch reads invoice text or documents, extracts structured records through
a cost-capped chain of methods (heuristic parser first, then LLM providers), and
matches every line against an estimate catalog.

Results are written to stdout as JSON; logs go to stderr.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")

	for _, c := range []*cobra.Command{extractCmd, batchCmd, processCmd} {
		c.Flags().StringVar(&supplierHint, "supplier", "", "supplier name hint")
		c.Flags().StringVar(&formatHint, "format", "invoice", "expected document format")
		c.Flags().StringVar(&projectHint, "project", "", "project context passed to providers")
		c.Flags().StringVar(&dateOrder, "date-order", "MDY", "order of ambiguous numeric dates: MDY|DMY")
	}

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(confirmCmd)
}

func newLogger() *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// withApp loads configuration, builds the application and closes it after fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	logger := newLogger()
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		logger.Error("config.load.failed", "path", configPath, "error", err)
		return err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("app.init.failed", "error", err, "code", common.CodeOf(err).String())
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("app.close.failed", "error", err)
		}
	}()
	return fn(cmd.Context(), a)
}

func hints() (llm.Hints, error) {
	order := llm.DateOrder(strings.ToUpper(strings.TrimSpace(dateOrder)))
	if order != llm.DateOrderMDY && order != llm.DateOrderDMY {
		return llm.Hints{}, fmt.Errorf("--date-order must be MDY or DMY, got %q", dateOrder)
	}
	return llm.Hints{
		ExpectedFormat: formatHint,
		SupplierName:   supplierHint,
		ProjectContext: projectHint,
		DateOrder:      order,
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSON decodes a JSON file into v; "-" reads stdin.
func readJSON(path string, v any) error {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
