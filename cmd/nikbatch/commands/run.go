package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kursadbilgin/nikverify/internal/bootstrap"
	"github.com/kursadbilgin/nikverify/internal/config"
	"github.com/kursadbilgin/nikverify/internal/domain"
	infraredis "github.com/kursadbilgin/nikverify/internal/infra/redis"
	"github.com/kursadbilgin/nikverify/internal/observability"
	"github.com/kursadbilgin/nikverify/internal/portal"
	"github.com/kursadbilgin/nikverify/internal/ratelimit"
	"github.com/kursadbilgin/nikverify/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	input        string
	output       string
	successLimit int
	username     string
	password     string
}

var runOpts runOptions

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runOpts.input, "input", "i", "-", "File with identifiers separated by whitespace, commas or semicolons; - reads stdin.")
	flags.StringVarP(&runOpts.output, "output", "o", "", "Where to write the xlsx report. Defaults to a timestamped file in the working directory.")
	flags.IntVarP(&runOpts.successLimit, "limit", "l", 0, "Stop after this many successful transactions; 0 verifies every identifier.")
	flags.StringVarP(&runOpts.username, "username", "u", "", "Merchant portal username (PORTAL_USERNAME).")
	flags.StringVarP(&runOpts.password, "password", "p", "", "Merchant portal password (PORTAL_PASSWORD).")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [-i <identifiers.txt>] [-o <report.xlsx>] [-l <limit>]",
	Short: "Logs in and verifies every identifier, then writes the report.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := observability.NewLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		opts := runOpts
		if opts.username == "" {
			opts.username = os.Getenv("PORTAL_USERNAME")
		}
		if opts.password == "" {
			opts.password = os.Getenv("PORTAL_PASSWORD")
		}
		return runBatch(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cfg, opts, logger)
	},
}

func runBatch(
	ctx context.Context,
	stdin io.Reader,
	stdout io.Writer,
	cfg *config.Config,
	opts runOptions,
	logger *zap.Logger,
) error {
	raw, err := openInput(stdin, opts.input)
	if err != nil {
		return err
	}
	identifiers := domain.ParseIdentifiers(raw)
	if len(identifiers) == 0 {
		return fmt.Errorf("%w: no valid 16-digit identifiers found", domain.ErrValidation)
	}
	creds := domain.Credentials{Username: opts.username, Password: opts.password}
	if err := creds.Validate(); err != nil {
		return err
	}

	var limiter ratelimit.RateLimiter
	if cfg.RedisURL != "" && cfg.DispatchPerMin > 0 {
		rdb, err := infraredis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		dispatchLimiter, err := infraredis.NewDispatchLimiter(rdb, cfg.DispatchPerMin)
		if err != nil {
			return err
		}
		limiter = dispatchLimiter
	}

	p, err := bootstrap.NewPortal(cfg, limiter, nil, logger)
	if err != nil {
		return err
	}

	driver, err := p.Sessions.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Close()

	if !p.Auth.Login(ctx, driver, creds, p.LoginURL) {
		return errors.New("login failed")
	}

	limit := domain.NormalizeSuccessLimit(opts.successLimit, len(identifiers))
	fmt.Fprintf(stdout, "verifying %d identifiers, stopping after %d successes\n", len(identifiers), limit)

	engine := p.Engine.WithAccount(creds.Username)
	result, runErr := engine.Run(ctx, driver, identifiers, limit, func(ev portal.Progress) {
		if ev.Kind == portal.ProgressOutcome && ev.Outcome != nil {
			fmt.Fprintf(stdout, "[%d/%d] %s %s\n", ev.Processed(), len(identifiers), ev.Identifier, ev.Outcome.Result)
		}
	})

	var records []domain.OutcomeRecord
	if result != nil {
		records = result.Records
		if result.Stopped != "" {
			fmt.Fprintf(stdout, "stopped: %s\n", result.Stopped)
		}
	}
	if len(records) == 0 {
		if runErr != nil {
			return runErr
		}
		return errors.New("no identifier was verified")
	}

	rows := report.ToRows(records)
	renderOutcomes(stdout, rows)

	data, err := report.NewWriter().Write(rows)
	if err != nil {
		return err
	}
	path := opts.output
	if path == "" {
		path = report.Filename(time.Now())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	abs, _ := filepath.Abs(path)
	fmt.Fprintf(stdout, "report written to %s\n", abs)

	return runErr
}

func openInput(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		return readIdentifiers(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	return readIdentifiers(f)
}
