package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wakealert/internal/app"
	"wakealert/internal/channels"
	"wakealert/internal/escalation"
	"wakealert/internal/push"
	"wakealert/internal/storage"
	"wakealert/pkg/systemd"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "wakealert",
		Short:         "Alert delivery and permission escalation engine (reference host)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newClassifyCmd(),
		newChannelsCmd(),
		newStateCmd(&cfgPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the host: MQTT push intake, engine, config hot reload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			a, err := app.NewApp(*cfgPath)
			if err != nil {
				return err
			}
			return runHost(ctx, a, sigs)
		},
	}
}

// runHost starts a and blocks until a signal or a fatal error, then stops
// it. A failed start is cleaned up as well.
func runHost(ctx context.Context, a *app.App, sigs <-chan os.Signal) error {
	stop := func(reason app.StopReason) {
		_, _ = systemd.Stopping()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx, reason)
	}

	if err := a.Start(ctx); err != nil {
		stop(app.StopFatalError)
		return err
	}
	_, _ = systemd.Ready()
	go func() { _ = systemd.Watchdog(ctx) }()

	reason := app.StopUnknown
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	stop(reason)
	return a.Err()
}

func newClassifyCmd() *cobra.Command {
	var locale, landing string
	cmd := &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Classify one push message (JSON) and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var m push.Message
			if err := json.NewDecoder(in).Decode(&m); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			c := push.Classifier{Locale: locale, LandingRoute: landing}
			return writeJSON(cmd.OutOrStdout(), c.Classify(m))
		},
	}
	cmd.Flags().StringVar(&locale, "locale", push.DefaultLocale, "locale for missing title and body")
	cmd.Flags().StringVar(&landing, "landing-route", push.DefaultLandingRoute, "route used when the message has none")
	return cmd
}

type channelRow struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Importance  string `json:"importance"`
	Sound       string `json:"sound"`
	Fingerprint string `json:"fingerprint"`
}

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Print the canonical alert channel set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set := channels.Canonical()
			if err := channels.ValidateSet(set); err != nil {
				return err
			}
			rows := make([]channelRow, 0, len(set))
			for _, d := range set {
				rows = append(rows, channelRow{
					ID:          d.ID,
					Role:        d.Role.String(),
					Importance:  d.Importance.String(),
					Sound:       d.Sound,
					Fingerprint: d.Fingerprint(),
				})
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}

type stepRow struct {
	Key        string `json:"key"`
	Permission string `json:"permission"`
	Applies    bool   `json:"applies"`
	Resolved   bool   `json:"resolved"`
}

type registration struct {
	ID         string `json:"id"`
	Registered bool   `json:"registered"`
}

type stateReport struct {
	Profile  any                  `json:"profile"`
	Grants   map[string]bool      `json:"grants"`
	Steps    []stepRow            `json:"steps"`
	Channels []registration       `json:"channels"`
	Flags    []storage.FlagRecord `json:"flags"`
}

func newStateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the device profile, escalation progress and persisted flags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := app.NewApp(*cfgPath, app.WithAdapter(offlineAdapter{}))
			if err != nil {
				return err
			}
			defer a.Store().Close()

			prof := a.Engine().Profile(ctx)
			st, err := escalation.NewStoreState(a.Store()).Load(ctx)
			if err != nil {
				return err
			}
			flags, err := a.Store().Flags(ctx, "")
			if err != nil {
				return err
			}
			rep := stateReport{Profile: prof, Grants: map[string]bool{}, Flags: flags}
			for _, p := range []escalation.Permission{
				escalation.PermBattery, escalation.PermOverlay, escalation.PermFullScreen,
				escalation.PermAutostart, escalation.PermPopup,
			} {
				ok, err := a.Device().Granted(ctx, p)
				if err != nil {
					return err
				}
				rep.Grants[string(p)] = ok
			}
			for _, d := range a.Engine().Channels().Descriptors() {
				recs, err := a.Store().Flags(ctx, "channel."+d.ID+".")
				if err != nil {
					return err
				}
				rep.Channels = append(rep.Channels, registration{ID: d.ID, Registered: len(recs) > 0})
			}
			for _, s := range a.Engine().Steps() {
				rep.Steps = append(rep.Steps, stepRow{
					Key:        s.Key,
					Permission: string(s.Permission),
					Applies:    s.AppliesTo == nil || s.AppliesTo(prof),
					Resolved:   st.Resolved(s.Key),
				})
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
