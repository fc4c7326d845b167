package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eacopy/eacopy/internal/config"
	"github.com/eacopy/eacopy/internal/engine"
	"github.com/eacopy/eacopy/internal/filter"
	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/eacopy/eacopy/internal/obs"
	"github.com/eacopy/eacopy/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

//nolint:gocyclo // main CLI entry point orchestrates all flag parsing
func run() int {
	var (
		workers      int
		serverAddr   string
		secret       string
		prevDst      string
		journalPath  string
		jobID        string
		retries      int
		noHardlinks  bool
		noSkip       bool
		noDelta      bool
		noCompress   bool
		tolerance    int
		verbose      bool
		quiet        bool
		showVersion  bool
		filterFile   string
		minSizeStr   string
		maxSizeStr   string
		bwLimitStr   string
	)

	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "eacopy [flags] <source> <destination>",
		Short: "High-throughput file replication with server-side dedup and delta transfer",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "eacopy %s\n", version)
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			applyConfigDefaults(cmd, cfg.Defaults, &workers, &serverAddr, &secret, &retries, &journalPath)
			if !cmd.Flags().Changed("bwlimit") && cfg.Defaults.BWLimit != nil {
				bwLimitStr = *cfg.Defaults.BWLimit
			}
			if !cmd.Flags().Changed("no-hardlinks") && cfg.Defaults.UseHardlinks != nil {
				noHardlinks = !*cfg.Defaults.UseHardlinks
			}
			if !cmd.Flags().Changed("no-skip") && cfg.Defaults.SkipIfSameKey != nil {
				noSkip = !*cfg.Defaults.SkipIfSameKey
			}

			if filterFile != "" {
				if err := chain.LoadFile(filterFile); err != nil {
					return fmt.Errorf("filter file: %w", err)
				}
			}
			if minSizeStr != "" {
				n, err := filter.ParseSize(minSizeStr)
				if err != nil {
					return fmt.Errorf("min-size: %w", err)
				}
				chain.SetMinSize(n)
			}
			if maxSizeStr != "" {
				n, err := filter.ParseSize(maxSizeStr)
				if err != nil {
					return fmt.Errorf("max-size: %w", err)
				}
				chain.SetMaxSize(n)
			}

			var bwLimit int64
			if bwLimitStr != "" {
				n, err := filter.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("bwlimit: %w", err)
				}
				bwLimit = n
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			if quiet {
				level = slog.LevelError
			}
			logger := obs.New(os.Stderr, level)

			src, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			dst, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}

			if jobID == "" {
				jobID = uuid.NewString()
			}

			job := engine.Job{
				ID:            jobID,
				SrcRoot:       src,
				DstRoot:       dst,
				PrevDstRoot:   prevDst,
				Workers:       workers,
				ServerAddr:    serverAddr,
				ClientID:      fmt.Sprintf("eacopy/%s", version),
				UseHardlinks:  !noHardlinks,
				SkipIfSameKey: !noSkip,
				Delta:         !noDelta,
				Compression:   !noCompress,
				BWLimit:       bwLimit,
				JournalPath:   journalPath,
				Log:           logger.Scope("job", jobID),
			}
			if secret != "" {
				job.SecretFingerprint = fingerprint.OfBytes([]byte(secret))
			}
			if retries > 0 {
				job.RetryPolicy = engine.DefaultRetryPolicy()
				job.RetryPolicy.MaxAttempts = retries
			}
			if !chain.Empty() {
				job.Filter = chain
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			defer engine.CleanupTmpFiles()

			result, runErr := engine.RunCopy(ctx, job)

			if !quiet {
				cache := obs.NewErrorCache(10)
				for _, e := range result.Errors {
					cache.Add(e.Error())
				}
				fmt.Fprint(os.Stderr, ui.Summary(&result.Stats, cache.Recent(), result.Duration))
			}

			if runErr != nil {
				return &exitError{code: 2}
			}
			if len(result.Errors) > tolerance {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.Flags().IntVarP(&workers, "workers", "n", 0, "number of copy workers (default: GOMAXPROCS)")
	rootCmd.Flags().StringVarP(&serverAddr, "server", "s", "", "copy server address (host:port); empty copies locally")
	rootCmd.Flags().StringVar(&secret, "secret", "", "pre-shared secret the server's HELLO gate expects")
	rootCmd.Flags().StringVar(&prevDst, "link-dest", "", "previous destination generation for the hardlink pre-pass")
	rootCmd.Flags().StringVar(&journalPath, "journal", "", "resume journal database path")
	rootCmd.Flags().StringVar(&jobID, "job-id", "", "stable job id for journal resume (default: random)")
	rootCmd.Flags().IntVar(&retries, "retries", 0, "max attempts per file on transient errors")
	rootCmd.Flags().BoolVar(&noHardlinks, "no-hardlinks", false, "disable the hardlink fast path")
	rootCmd.Flags().BoolVar(&noSkip, "no-skip", false, "disable skip-if-same-key (copy everything)")
	rootCmd.Flags().BoolVar(&noDelta, "no-delta", false, "don't negotiate delta transfer")
	rootCmd.Flags().BoolVar(&noCompress, "no-compress", false, "don't negotiate compressed transfer")
	rootCmd.Flags().IntVar(&tolerance, "tolerance", 0, "per-file failure count still treated as success")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().Var(&filterFlag{chain: chain, include: false}, "exclude", "exclude files matching PATTERN (repeatable)")
	rootCmd.Flags().Var(&filterFlag{chain: chain, include: true}, "include", "include files matching PATTERN (repeatable)")
	rootCmd.Flags().StringVar(&filterFile, "filter", "", "read filter rules from FILE")
	rootCmd.Flags().StringVar(&minSizeStr, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	rootCmd.Flags().StringVar(&maxSizeStr, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
	rootCmd.Flags().StringVar(&bwLimitStr, "bwlimit", "", "per-session bandwidth limit (e.g. 100M, 1G)")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// applyConfigDefaults applies config file defaults for flags not
// explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	workers *int,
	serverAddr *string,
	secret *string,
	retries *int,
	journalPath *string,
) {
	if !cmd.Flags().Changed("workers") && defaults.Workers != nil {
		*workers = *defaults.Workers
	}
	if !cmd.Flags().Changed("server") && defaults.Server != nil {
		*serverAddr = *defaults.Server
	}
	if !cmd.Flags().Changed("secret") && defaults.Secret != nil {
		*secret = *defaults.Secret
	}
	if !cmd.Flags().Changed("retries") && defaults.Retries != nil {
		*retries = *defaults.Retries
	}
	if !cmd.Flags().Changed("journal") && defaults.Journal != nil {
		*journalPath = *defaults.Journal
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
