package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

var lyricsCmd = &cobra.Command{
	Use:   "lyrics",
	Short: "import, show and export lyric documents",
}

var lyricsImportCmd = &cobra.Command{
	Use:   "import <track-id> <file.lrc>",
	Short: "import an LRC file as the lyrics of a track",
	Args:  cobra.ExactArgs(2),
	RunE:  runLyricsImport,
}

var lyricsSetCmd = &cobra.Command{
	Use:   "set <track-id> <file.txt>",
	Short: "replace the lyrics of a track with plain text, one untimed line per line",
	Long: `set stores a plain text file as the lyrics of a track. Every line starts
untimed; mark them while the track plays in edit mode. The accent colour and
extra keys of an existing document are kept.`,
	Args: cobra.ExactArgs(2),
	RunE: runLyricsSet,
}

var lyricsShowCmd = &cobra.Command{
	Use:   "show <track-id>",
	Short: "print the lyrics of a track",
	Args:  cobra.ExactArgs(1),
	RunE:  runLyricsShow,
}

var lyricsExportCmd = &cobra.Command{
	Use:   "export <track-id> [file.lrc]",
	Short: "write the lyrics of a track as LRC (default: stdout)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLyricsExport,
}

func init() {
	lyricsCmd.AddCommand(lyricsImportCmd, lyricsSetCmd, lyricsShowCmd, lyricsExportCmd)
	rootCmd.AddCommand(lyricsCmd)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runLyricsImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	track, err := a.lib.FetchTrack(ctx, args[0])
	if err != nil {
		return fmt.Errorf("track %s: %w", args[0], err)
	}

	raw, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}
	doc := lyrics.ParseLRC(track.ID, string(raw))
	if len(doc.Lines) == 0 {
		return fmt.Errorf("%s has no timed lines", args[1])
	}

	if err := replaceLyrics(ctx, a, track, doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d lines for %s\n", len(doc.Lines), track.Title())
	return nil
}

func runLyricsSet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	track, err := a.lib.FetchTrack(ctx, args[0])
	if err != nil {
		return fmt.Errorf("track %s: %w", args[0], err)
	}

	raw, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}
	doc := lyrics.Freeform(track.ID, string(raw))
	if len(doc.Lines) == 0 {
		return fmt.Errorf("%s has no lines", args[1])
	}

	if err := replaceLyrics(ctx, a, track, doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "set %d untimed lines for %s\n", len(doc.Lines), track.Title())
	return nil
}

// replaceLyrics saves doc over the track's lyrics, keeping the accent and
// extra keys of the document it replaces
func replaceLyrics(ctx context.Context, a *app, track types.Track, doc *lyrics.Document) error {
	if prev, err := a.lib.FetchLyrics(ctx, track.ID); err == nil {
		doc.MergeMissing(prev)
	}
	if doc.AccentColor == "" {
		if accent, err := accentFor(track); err == nil {
			doc.AccentColor = accent
		} else {
			log.Printf("[LYRICS] No accent for %s: %v", track.ID, err)
		}
	}
	return a.lib.SaveLyrics(ctx, doc)
}

func runLyricsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.lib.FetchLyrics(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("lyrics for %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	if doc.AccentColor != "" {
		fmt.Fprintf(out, "accent: %s\n", doc.AccentColor)
	}
	for i, l := range doc.Lines {
		at := "  --:--"
		if !l.Untimed() {
			at = fmt.Sprintf("%4d:%02d", int(l.At)/60, int(l.At)%60)
		}
		fmt.Fprintf(out, "%3d %s  %s\n", i+1, at, l.Text)
	}
	return nil
}

func runLyricsExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.lib.FetchLyrics(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("lyrics for %s: %w", args[0], err)
	}

	lrc := lyrics.FormatLRC(doc)
	if len(args) == 1 {
		fmt.Fprint(cmd.OutOrStdout(), lrc)
		return nil
	}
	if err := os.WriteFile(args[1], []byte(lrc), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[1], err)
	}
	return nil
}
