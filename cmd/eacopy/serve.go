package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eacopy/eacopy/internal/config"
	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/eacopy/eacopy/internal/obs"
	"github.com/eacopy/eacopy/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a copy server",
	Long: `Run a copy server that accepts replication sessions over plain TCP.

The server owns a content database mapping file identity keys and content
fingerprints to files under its root directory, so repeated uploads of
identical or near-identical content are satisfied by hardlinks or binary
deltas instead of full transfers. Directories listed with --prime are
scanned in the background at startup to pre-populate the database.

Sessions are gated by a pre-shared secret: a client whose HELLO carries a
different secret fingerprint is rejected before any file exchange. This is
an identity check on a trusted link, not cryptography.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":9876", "listen address (host:port)")
	serveCmd.Flags().String("root", "", "destination root uploads are written under (required)")
	serveCmd.Flags().Int("max-sessions", 64, "max concurrent client sessions")
	serveCmd.Flags().Int("max-history", 0, "content database history bound (0 = unbounded)")
	serveCmd.Flags().String("database", "", "content database snapshot path (loaded at start, written at shutdown)")
	serveCmd.Flags().StringSlice("prime", nil, "directory to prime into the database at startup (repeatable)")
	serveCmd.Flags().String("secret", "", "pre-shared secret clients must present")
	serveCmd.Flags().BoolP("verbose", "v", false, "verbose output")
}

func runServe(cmd *cobra.Command, _ []string) error {
	listenAddr, _ := cmd.Flags().GetString("listen")     //nolint:errcheck // flag name is hardcoded
	root, _ := cmd.Flags().GetString("root")             //nolint:errcheck // flag name is hardcoded
	maxSessions, _ := cmd.Flags().GetInt("max-sessions") //nolint:errcheck // flag name is hardcoded
	maxHistory, _ := cmd.Flags().GetInt("max-history")   //nolint:errcheck // flag name is hardcoded
	dbPath, _ := cmd.Flags().GetString("database")       //nolint:errcheck // flag name is hardcoded
	primeDirs, _ := cmd.Flags().GetStringSlice("prime")  //nolint:errcheck // flag name is hardcoded
	secret, _ := cmd.Flags().GetString("secret")         //nolint:errcheck // flag name is hardcoded
	verbose, _ := cmd.Flags().GetBool("verbose")         //nolint:errcheck // flag name is hardcoded

	fileCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !cmd.Flags().Changed("listen") && fileCfg.Server.Listen != nil {
		listenAddr = *fileCfg.Server.Listen
	}
	if !cmd.Flags().Changed("root") && fileCfg.Server.Root != nil {
		root = *fileCfg.Server.Root
	}
	if !cmd.Flags().Changed("max-sessions") && fileCfg.Server.MaxSessions != nil {
		maxSessions = *fileCfg.Server.MaxSessions
	}
	if !cmd.Flags().Changed("max-history") && fileCfg.Server.MaxHistory != nil {
		maxHistory = *fileCfg.Server.MaxHistory
	}
	if !cmd.Flags().Changed("database") && fileCfg.Server.Database != nil {
		dbPath = *fileCfg.Server.Database
	}
	if !cmd.Flags().Changed("prime") && len(fileCfg.Server.PrimeDirs) > 0 {
		primeDirs = fileCfg.Server.PrimeDirs
	}
	if !cmd.Flags().Changed("secret") && fileCfg.Defaults.Secret != nil {
		secret = *fileCfg.Defaults.Secret
	}

	if root == "" {
		return fmt.Errorf("--root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root directory %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", root)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := obs.New(os.Stderr, level)
	log := logger.Scope("component", "server")

	srvCfg := server.Config{
		Addr:        listenAddr,
		RootDir:     root,
		MaxSessions: maxSessions,
		MaxHistory:  maxHistory,
		PrimeDirs:   primeDirs,
	}
	if secret != "" {
		srvCfg.SecretFingerprint = fingerprint.OfBytes([]byte(secret))
	}

	srv := server.New(srvCfg, log)

	if dbPath != "" {
		if err := srv.DB().ReadFile(dbPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				// Version mismatch or corruption: proceed with an empty
				// database rather than refusing to serve.
				log.Warn("content database restore failed, starting empty", "path", dbPath, "error", err)
			}
		} else {
			log.Info("content database restored", "path", dbPath, "records", srv.DB().Len())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("serving", "addr", listenAddr, "root", root)
	serveErr := srv.Serve(ctx)

	if dbPath != "" {
		if err := srv.DB().WriteFile(dbPath); err != nil {
			log.Error("content database snapshot failed", "path", dbPath, "error", err)
		}
	}
	return serveErr
}
