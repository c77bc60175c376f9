package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/live-watch/livewatch/internal/config"
	"github.com/live-watch/livewatch/internal/console"
	"github.com/live-watch/livewatch/internal/event"
	"github.com/live-watch/livewatch/internal/live"
	"github.com/live-watch/livewatch/internal/logging"
	"github.com/live-watch/livewatch/internal/mock"
	"github.com/live-watch/livewatch/internal/session"
	"github.com/live-watch/livewatch/internal/settings"
	"github.com/live-watch/livewatch/internal/sink"
	"github.com/live-watch/livewatch/internal/tui"
	"github.com/spf13/cobra"
)

var (
	errMissingRoom   = errors.New("room_unique_id is empty: set it in the settings file or pass --room")
	errSessionFailed = errors.New("session failed")
)

var logger = logging.Module("main")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "livewatch: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "livewatch",
		Short:         "Follow a live room's chat, gifts, likes and follows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "livewatch.yaml", "path to the app config file")

	root.AddCommand(newWatchCmd(&configPath))
	root.AddCommand(newUICmd(&configPath))
	return root
}

func newWatchCmd(configPath *string) *cobra.Command {
	var (
		room    string
		useMock bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the room's events to the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if useMock {
				cfg.Provider = config.ProviderMock
			}
			logging.ToStderr()
			if err := logging.SetLevel(cfg.Log.Level); err != nil {
				return err
			}

			store := settings.NewStore(cfg.SettingsPath)
			sc := store.Load()
			if room != "" {
				sc.RoomID = settings.NormalizeRoomID(room)
				if err := store.Save(sc); err != nil {
					logger.WithError(err).Warn("saving settings failed")
				}
			}
			if sc.RoomID == "" {
				return fmt.Errorf("%w (%s)", errMissingRoom, store.Path())
			}
			return runWatch(cmd, cfg, sc)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room id to watch, with or without the leading @")
	cmd.Flags().BoolVar(&useMock, "mock", false, "use the synthetic event generator")
	return cmd
}

func runWatch(cmd *cobra.Command, cfg *config.Config, sc settings.SessionConfig) error {
	out := cmd.OutOrStdout()
	color := false
	if f, ok := out.(*os.File); ok {
		color = console.IsTerminal(f)
	}
	writer := console.New(out, color)

	q := sink.NewQueue(cfg.Sink.MaxPending)
	ctrl := session.NewController(newFactory(cfg), sink.Tee(q, sink.Log(logging.Module("feed"))), session.Options{
		StopTimeout:    cfg.Session.StopTimeout,
		FlagNewViewers: cfg.FlagNewViewers(true),
	})

	ended := make(chan session.State, 1)
	ctrl.OnStateChange(func(s session.State) {
		if s == session.Disconnected || s == session.Failed {
			select {
			case ended <- s:
			default:
			}
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pumpCtx, stopPump := context.WithCancel(context.Background())
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		writer.Run(pumpCtx, q)
	}()

	q.Write(time.Now(), event.System, fmt.Sprintf("Listening to @%s via %s ...", sc.RoomID, cfg.Provider))
	if err := ctrl.Start(sc.RoomID, sc); err != nil {
		stopPump()
		<-pumpDone
		return err
	}

	var final session.State
	select {
	case <-ctx.Done():
		q.Write(time.Now(), event.System, "Stopped")
	case final = <-ended:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.StopTimeout+time.Second)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("session did not stop cleanly")
	}
	stopPump()
	<-pumpDone

	if final == session.Failed {
		return errSessionFailed
	}
	return nil
}

func newUICmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			dir := cfg.Log.Dir
			if dir == "" {
				dir = logging.DefaultDir()
			}
			if err := logging.ToFiles(dir); err != nil {
				return err
			}
			if err := logging.SetLevel(cfg.Log.Level); err != nil {
				return err
			}

			store := settings.NewStore(cfg.SettingsPath)
			q := sink.NewQueue(cfg.Sink.MaxPending)
			ctrl := session.NewController(newFactory(cfg), sink.Tee(q, sink.Log(logging.Module("feed"))), session.Options{
				StopTimeout:    cfg.Session.StopTimeout,
				FlagNewViewers: cfg.FlagNewViewers(false),
			})

			runErr := tui.Run(ctrl, store, store.Load(), q)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Session.StopTimeout+time.Second)
			defer cancel()
			if err := ctrl.Shutdown(ctx); err != nil {
				logger.WithError(err).Warn("session did not stop cleanly")
			}
			return runErr
		},
	}
}

// newFactory returns the live client constructor for the configured
// provider.
func newFactory(cfg *config.Config) session.ClientFactory {
	switch cfg.Provider {
	case config.ProviderMock:
		return func(room string) (live.Client, error) {
			return mock.NewClient(room, mock.Options{
				Interval:       cfg.Mock.Interval,
				Seed:           cfg.Mock.Seed,
				DropAfter:      cfg.Mock.DropAfter,
				MalformedEvery: cfg.Mock.MalformedEvery,
			}), nil
		}
	case config.ProviderTwitch:
		return func(room string) (live.Client, error) {
			return live.NewTwitchClient(room, cfg.Twitch.Username, cfg.Twitch.OAuthToken), nil
		}
	default:
		return func(room string) (live.Client, error) {
			c, err := live.NewWSClient(cfg.Relay.URL, room, live.WSOptions{
				DialAttempts: cfg.Relay.DialAttempts,
				PingInterval: cfg.Relay.PingInterval,
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
}
