package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/stashd/internal/config"
	"github.com/austinkregel/local-media/stashd/internal/library"
)

var (
	// global flags
	configDir string
	verbose   bool
	backend   string
)

var rootCmd = &cobra.Command{
	Use:   "stashd",
	Short: "local music player with synchronised lyrics",
	Long: `stashd plays stashes from a local music library and keeps their lyrics
in step with the playback clock. Lyrics can be retimed while listening.

when run without a subcommand, it resumes the last session (or plays the
whole library) in the interactive player.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.SetOutput(io.Discard)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDefault(cmd, args)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "", "configuration directory (default: ~/.config/stashd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "library backend: json or sqlite (overrides config)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is what every command needs: the loaded configuration and the open library
type app struct {
	configMgr *config.Manager
	cfg       *config.Config
	dataDir   string
	lib       library.Library
}

func openApp() (*app, error) {
	dir := configDir
	if dir == "" {
		d, err := config.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	configMgr := config.NewManager(dir)
	if err := configMgr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if backend != "" {
		cfg.Library.Backend = backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	dataDir := configMgr.DataDir()
	lib, err := library.Open(cfg.Library.Backend, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	log.Printf("[LIBRARY] Opened %s library in %s", cfg.Library.Backend, dataDir)

	return &app{configMgr: configMgr, cfg: cfg, dataDir: dataDir, lib: lib}, nil
}

func (a *app) Close() {
	if err := a.lib.Close(); err != nil {
		log.Printf("[LIBRARY] Failed to close library: %v", err)
	}
}
