package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/stashd/internal/audio"
	"github.com/austinkregel/local-media/stashd/internal/library"
	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/media"
	"github.com/austinkregel/local-media/stashd/internal/player"
	"github.com/austinkregel/local-media/stashd/internal/types"
	"github.com/austinkregel/local-media/stashd/internal/ui"
)

var playCmd = &cobra.Command{
	Use:   "play [stash]",
	Short: "play a stash (default: the whole library)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		return runPlayer(cmd.Context(), func(ctx context.Context, a *app, ctrl *player.Controller) error {
			return playStash(ctx, a, ctrl, ref)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "resume the last playback session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayer(cmd.Context(), resumeSession)
	},
}

func init() {
	rootCmd.AddCommand(playCmd, resumeCmd)
}

// runDefault resumes the last session when configured to, otherwise plays the library
func runDefault(cmd *cobra.Command, args []string) error {
	return runPlayer(cmd.Context(), func(ctx context.Context, a *app, ctrl *player.Controller) error {
		if a.cfg.Behavior.ResumeOnStart {
			err := resumeSession(ctx, a, ctrl)
			if err == nil {
				return nil
			}
			if !errors.Is(err, library.ErrNotFound) {
				log.Printf("[SESSION] Could not resume: %v", err)
			}
		}
		return playStash(ctx, a, ctrl, "")
	})
}

func playStash(ctx context.Context, a *app, ctrl *player.Controller, ref string) error {
	stash, tracks, err := library.ResolveStash(ctx, a.lib, ref)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("stash %q has no playable tracks; run `stashd scan` first", stash.Name)
	}
	if _, err := ctrl.LoadQueue(stash.ID, tracks, ""); err != nil {
		return err
	}
	return ctrl.PlayCurrent(ctx)
}

// resumeSession restores the persisted session; the player stays Loaded until the user presses play
func resumeSession(ctx context.Context, a *app, ctrl *player.Controller) error {
	session, err := a.lib.LoadSession(ctx)
	if err != nil {
		return err
	}
	return ctrl.Restore(session)
}

type startFunc func(ctx context.Context, a *app, ctrl *player.Controller) error

// runPlayer wires the audio backend, the OS media session, the library and
// the lyric view around a controller and runs the TUI until the user quits
func runPlayer(parent context.Context, start startFunc) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// the TUI owns the terminal; logs go to a file instead
	logFile, err := os.OpenFile(filepath.Join(a.dataDir, "stashd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.Printf("stashd version %s starting...", Version)

	decoder, err := audio.NewFFmpegDecoder()
	if err != nil {
		return fmt.Errorf("failed to initialize decoder: %w", err)
	}
	output, err := audio.NewOtoOutput(a.cfg.Audio.SampleRate, a.cfg.Audio.BufferSizeMs)
	if err != nil {
		decoder.Close()
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}
	audioPlayer := audio.NewPlayer(decoder, output, audio.Options{})
	defer audioPlayer.Close()
	if err := audioPlayer.SetVolume(a.cfg.Audio.DefaultVolume); err != nil {
		log.Printf("[PLAYER] Failed to set volume: %v", err)
	}

	mediaSession, err := media.NewSession()
	if err != nil {
		log.Printf("[MEDIA] Warning: failed to initialize media session: %v", err)
		log.Printf("[MEDIA] Continuing without OS media integration")
		mediaSession = media.NewNoOpSession()
	}
	defer mediaSession.Close()

	var store player.Store = a.lib
	if !a.cfg.Behavior.RememberSession {
		store = forgetfulStore{a.lib}
	}

	surface := ui.NewSurface()
	events := ui.NewEvents(64)
	notifier := media.NewNowPlayingNotifier(mediaSession)
	ctrl := player.New(player.Options{
		Store:        store,
		Media:        audioPlayer,
		Notifier:     notifier,
		Surface:      surface,
		SmoothScroll: a.cfg.Lyrics.SmoothScroll,
		NotifyEvery:  a.cfg.Lyrics.NotifyEveryTicks,
		Progress:     notifier.Progress,
		Accent:       accentFor,
		OnEvent:      withNavigation(notifier, events.Handler()),
	})

	audioPlayer.SetOnTick(ctrl.Tick)
	audioPlayer.SetOnEnded(func(token uint64) {
		if err := ctrl.Ended(ctx, token); err != nil {
			log.Printf("[PLAYER] Failed to advance: %v", err)
		}
	})
	mediaSession.SetCommandHandler(ctrl)

	if js, ok := a.lib.(*library.JSONStore); ok && a.cfg.Lyrics.WatchFiles {
		go func() {
			if err := js.Watch(ctx, ctrl.ReloadLyrics); err != nil {
				log.Printf("[LYRICS] Watcher stopped: %v", err)
			}
		}()
	}

	if err := start(ctx, a, ctrl); err != nil {
		ctrl.Close()
		return err
	}

	program := tea.NewProgram(
		ui.NewModel(ui.ModelConfig{Controller: ctrl, Surface: surface, Events: events}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, runErr := program.Run()

	// detach the clock before flushing the final session
	audioPlayer.SetOnTick(nil)
	audioPlayer.SetOnEnded(nil)
	ctrl.Close()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("error running bubble tea: %w", runErr)
	}
	return nil
}

// withNavigation keeps the media session's next/previous controls in step
// with the queue before passing each event on
func withNavigation(notifier *media.NowPlayingNotifier, next player.EventHandler) player.EventHandler {
	return func(ev player.Event) {
		if ev.Kind == player.EventQueueChanged && ev.Queue != nil {
			if err := notifier.Navigation(ev.Queue.Next != nil, ev.Queue.Previous != nil); err != nil {
				log.Printf("[MEDIA] Navigation update failed: %v", err)
			}
		}
		if next != nil {
			next(ev)
		}
	}
}

// forgetfulStore drops session writes when rememberSession is off
type forgetfulStore struct {
	library.Library
}

func (forgetfulStore) PersistSession(context.Context, *types.PlaybackSession) error {
	return nil
}

// accentFor derives a track's accent from its embedded cover, falling back to folder art
func accentFor(track types.Track) (string, error) {
	rgb, err := lyrics.AccentFromFile(track.Location)
	if err != nil {
		art, ok := track.Metadata[types.MetaArtPath].(string)
		if !ok || art == "" {
			return "", err
		}
		if rgb, err = lyrics.AccentFromImageFile(art); err != nil {
			return "", err
		}
	}
	return rgb.String(), nil
}
