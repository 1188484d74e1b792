package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"obsdock/internal/adapter/primary/web"
	"obsdock/internal/domain"
	"obsdock/internal/logging"
	"obsdock/internal/usecase"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connection state, program scene and outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			// One-shot status has nothing to report without connecting; the
			// shell reports whatever state it is in.
			if active == nil {
				if err := s.ensureConnected(ctx); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			snap, ok := s.dock.Snapshot()

			if asJSON {
				view := map[string]any{"state": s.dock.State()}
				if err := s.dock.LastError(); err != nil {
					view["lastError"] = err.Error()
				}
				if ok {
					view["snapshot"] = snap
				}
				return printJSON(out, view)
			}

			fmt.Fprintf(out, "state:   %s", s.dock.State())
			if addr := s.dock.Address(); addr != "" {
				fmt.Fprintf(out, " (%s)", addr)
			}
			fmt.Fprintln(out)
			if err := s.dock.LastError(); err != nil {
				fmt.Fprintf(out, "error:   %v\n", err)
			}
			if ok {
				printStatus(out, snap)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newScenesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scenes",
		Short: "List scenes and the sources in each",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			if err := s.ensureConnected(ctx); err != nil {
				return err
			}
			snap, err := s.snapshot(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"scenes":     snap.Scenes,
					"sceneItems": snap.SceneItems,
				})
			}
			printScenes(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDoCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "do <type> [key=value ...]",
		Short: "Dispatch one action",
		Long: `Dispatch one action to OBS.

Values that parse as JSON keep their type (true, 3, {"k":"v"}); everything
else is sent as a string. Quote a JSON string to force one: name='"2024"'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := parseActionArgs(args[0], args[1:])
			if err != nil {
				return err
			}

			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			if err := s.ensureConnected(ctx); err != nil {
				return err
			}

			result := s.dock.Dispatch(ctx, action)
			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, result); err != nil {
					return err
				}
			} else if result.Success {
				fmt.Fprintln(out, result.Message)
			}
			if !result.Success {
				return fmt.Errorf("%s: %s", result.Message, result.Error)
			}
			// The shell keeps its snapshot; the next line may name what this one created.
			if active != nil {
				if _, err := s.dock.Refresh(ctx); err != nil {
					logging.Warnf("refresh after %s: %v", action.Type(), err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List every supported action type",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, t := range domain.SupportedActions() {
				fmt.Fprintf(out, "%-36s %s\n", t, t.RequestType())
			}
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-read scenes, sources and outputs from OBS",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			if err := s.ensureConnected(ctx); err != nil {
				return err
			}
			snap, err := s.dock.Refresh(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d scenes at %s\n",
				len(snap.Scenes), snap.FetchedAt.Format(time.TimeOnly))
			return nil
		},
	}
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to OBS and remember the address",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			res, err := s.connect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Close the shell's OBS session",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if active == nil || active.dock.State() == domain.StateDisconnected {
				fmt.Fprintln(out, "not connected")
				return nil
			}
			active.dock.Disconnect()
			fmt.Fprintln(out, "disconnected")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, the event stream and the dock page",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			// OBS may come up after us; POST /api/connect retries later.
			if s.dock.State() != domain.StateConnected {
				if _, err := s.connect(ctx); err != nil {
					logging.Warnf("initial connect failed: %v", err)
				}
			}

			address, password := s.target()
			srv := web.NewServer(s.dock, web.Config{
				Listen:      listen,
				Address:     address,
				Password:    password,
				Metrics:     s.collector.Handler(),
				OnConnected: s.remember,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "obsdock API running at http://%s\n", listen)
			logging.Infof("obsdock API: http://%s", listen)

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logging.Errorf("shutdown: %v", err)
				}
			}()

			return srv.Start()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:7071", "HTTP listen host:port")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the saved preferences",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the saved preferences (JSON)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			prefs, err := s.repo.Load()
			if err != nil {
				return err
			}
			display := map[string]any{
				"path":                  s.path,
				"address":               prefs.Address,
				"passwordSet":           prefs.Password != "",
				"reconnectAttempts":     prefs.Reconnect.MaxAttempts,
				"reconnectDelaySeconds": prefs.Reconnect.BaseDelay.Seconds(),
				"reconnectLinear":       prefs.Reconnect.Linear,
			}
			if !prefs.LastConnected.IsZero() {
				display["lastConnected"] = prefs.LastConnected.Format(time.RFC3339)
			}
			return printJSON(cmd.OutOrStdout(), display)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var (
		attempts int
		delay    time.Duration
		linear   bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the saved preferences",
		Long:  "Update the saved preferences. --address and --password are stored when given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, release, err := acquireSession()
			if err != nil {
				return err
			}
			defer release()

			prefs, err := s.repo.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("address") {
				prefs.Address, _ = flags.GetString("address")
			}
			if flags.Changed("password") {
				prefs.Password, _ = flags.GetString("password")
			}
			if flags.Changed("attempts") {
				prefs.Reconnect.MaxAttempts = attempts
			}
			if flags.Changed("delay") {
				prefs.Reconnect.BaseDelay = delay
			}
			if flags.Changed("linear") {
				prefs.Reconnect.Linear = linear
			}
			if err := prefs.Validate(); err != nil {
				return err
			}
			if err := s.repo.Save(prefs); err != nil {
				return err
			}
			s.prefs = prefs

			fmt.Fprintf(cmd.OutOrStdout(), "saved: address=%s attempts=%d delay=%s linear=%t\n",
				prefs.Address, prefs.Reconnect.MaxAttempts, prefs.Reconnect.BaseDelay, prefs.Reconnect.Linear)
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 5, "reconnect attempts after a dropped connection (1-10)")
	cmd.Flags().DurationVar(&delay, "delay", 2*time.Second, "wait before the first reconnect attempt")
	cmd.Flags().BoolVar(&linear, "linear", true, "grow the wait by --delay per attempt")
	return cmd
}

// reportStateChanges prints connection transitions until ch is closed.
func reportStateChanges(out io.Writer, ch <-chan usecase.Notification) {
	for n := range ch {
		if n.Event != nil {
			continue
		}
		if n.Error != "" {
			fmt.Fprintf(out, "[%s] %s\n", n.State, n.Error)
			continue
		}
		fmt.Fprintf(out, "[%s]\n", n.State)
	}
}

func printStatus(out io.Writer, snap domain.Snapshot) {
	fmt.Fprintf(out, "program: %s\n", snap.CurrentProgramScene)
	if snap.StudioModeEnabled {
		fmt.Fprintf(out, "preview: %s\n", snap.CurrentPreviewScene)
	}
	fmt.Fprintf(out, "stream:  %s\n", outputLine(snap.Stream.Active, false, snap.Stream.Timecode))
	fmt.Fprintf(out, "record:  %s\n", outputLine(snap.Record.Active, snap.Record.Paused, snap.Record.Timecode))
	v := snap.Video
	fmt.Fprintf(out, "video:   %dx%d -> %dx%d @ %d/%d fps\n",
		v.BaseWidth, v.BaseHeight, v.OutputWidth, v.OutputHeight, v.FpsNumerator, v.FpsDenominator)
}

func outputLine(active, paused bool, timecode string) string {
	switch {
	case paused:
		return "paused " + timecode
	case active:
		return "live " + timecode
	default:
		return "off"
	}
}

func printScenes(out io.Writer, snap domain.Snapshot) {
	for _, scene := range snap.Scenes {
		marker := " "
		if scene.Name == snap.CurrentProgramScene {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, scene.Name)
		for _, item := range snap.SceneItems[scene.Name] {
			flags := []string{}
			if !item.Enabled {
				flags = append(flags, "hidden")
			}
			if item.Locked {
				flags = append(flags, "locked")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " (" + strings.Join(flags, ", ") + ")"
			}
			fmt.Fprintf(out, "    #%d %s%s\n", item.SceneItemID, item.SourceName, suffix)
		}
	}
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
