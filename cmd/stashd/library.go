package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/stashd/internal/audio"
	"github.com/austinkregel/local-media/stashd/internal/library"
	"github.com/austinkregel/local-media/stashd/internal/scanner"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "scan music directories into the library",
	Long: `scan walks the given directories (or the configured library paths), reads
audio tags and merges the tracks into the library. Tracks already known keep
their ids. Paths given on the command line are remembered in the config.`,
	RunE: runScan,
}

var stashesCmd = &cobra.Command{
	Use:   "stashes",
	Short: "list stashes",
	Args:  cobra.NoArgs,
	RunE:  runStashes,
}

var stashDescription string

var stashesCreateCmd = &cobra.Command{
	Use:   "create <name> [track-ids...]",
	Short: "create a stash from library tracks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStashesCreate,
}

func init() {
	stashesCreateCmd.Flags().StringVarP(&stashDescription, "description", "d", "", "stash description")
	stashesCmd.AddCommand(stashesCreateCmd)
	rootCmd.AddCommand(scanCmd, stashesCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	paths := a.cfg.Library.Paths
	if len(args) > 0 {
		paths = args
		for _, p := range args {
			if err := a.configMgr.AddLibraryPath(p); err != nil {
				log.Printf("[SCANNER] Failed to remember %s: %v", p, err)
			}
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("no library paths configured; pass directories to scan")
	}

	var s *scanner.Scanner
	if prober, err := audio.NewProber(); err == nil {
		s = scanner.New(prober)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; durations will be probed at play time\n", err)
		s = scanner.New(nil)
	}

	ctx := commandContext(cmd)
	result, err := s.Scan(ctx, paths)
	if err != nil {
		return err
	}

	existing, err := a.lib.FetchAllTracks(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tracks: %w", err)
	}
	merged, added := scanner.Merge(existing, result.Tracks)
	if err := a.lib.SaveTracks(ctx, merged); err != nil {
		return fmt.Errorf("failed to save tracks: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scanned %d files in %s: %d new, %d in library\n",
		len(result.Tracks), result.Took.Round(time.Millisecond), added, len(merged))
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "%d paths could not be read", len(result.Errors))
		if verbose {
			fmt.Fprintln(out, ":")
			for _, e := range result.Errors {
				fmt.Fprintln(out, "  "+e)
			}
		} else {
			fmt.Fprintln(out, " (use --verbose to list them)")
		}
	}
	return nil
}

func runStashes(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	all, err := a.lib.FetchAllTracks(ctx)
	if err != nil {
		return err
	}
	stashes, err := a.lib.FetchStashes(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, formatStash(library.MasterStash(all), all))
	for _, s := range stashes {
		fmt.Fprintln(out, formatStash(s, all))
	}
	return nil
}

func runStashesCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := strings.TrimSpace(args[0])
	if name == "" || strings.EqualFold(name, types.MasterStashName) {
		return fmt.Errorf("invalid stash name %q", args[0])
	}

	ctx := commandContext(cmd)
	stashes, err := a.lib.FetchStashes(ctx)
	if err != nil {
		return err
	}
	if lo.ContainsBy(stashes, func(s types.Stash) bool { return strings.EqualFold(s.Name, name) }) {
		return fmt.Errorf("stash %q already exists", name)
	}

	all, err := a.lib.FetchAllTracks(ctx)
	if err != nil {
		return err
	}
	known := lo.SliceToMap(all, func(t types.Track) (string, bool) { return t.ID, true })
	ids := lo.Uniq(args[1:])
	if unknown := lo.Reject(ids, func(id string, _ int) bool { return known[id] }); len(unknown) > 0 {
		return fmt.Errorf("unknown tracks: %s: %w", strings.Join(unknown, ", "), library.ErrNotFound)
	}

	stash := types.Stash{
		ID:          uuid.NewString(),
		Name:        name,
		Description: stashDescription,
		Songs:       ids,
	}
	if err := a.lib.SaveStash(ctx, stash); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatStash(stash, all))
	return nil
}

// formatStash renders one listing row; ids missing from the library are not counted
func formatStash(s types.Stash, all []types.Track) string {
	playable := len(library.MapStash(s, all))
	row := fmt.Sprintf("%-24s %4d tracks", s.Name, playable)
	if missing := len(s.Songs) - playable; missing > 0 {
		row += fmt.Sprintf(" (%d missing)", missing)
	}
	if s.ID != "" {
		row += "  id:" + s.ID
	}
	if s.Description != "" {
		row += "  " + s.Description
	}
	return row
}
