package migratord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/surrealdb/migrator/contrib/eventstream"
)

const shutdownTimeout = 10 * time.Second

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Config string
}

// NewRootCommand creates the migratord command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "migratord",
		Short:         "Serve the country catalogue through a migration facade",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to the TOML configuration file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPhaseCommand())
	cmd.AddCommand(NewCheckConfigCommand(opts))
	cmd.AddCommand(NewWatchCommand())
	return cmd
}

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := LoadConfig(opts.Config)
			if err != nil {
				return err
			}
			log, closer, err := NewLogger(conf, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := New(ctx, conf, log)
			if err != nil {
				return err
			}
			return app.Serve(ctx)
		},
	}
}

// Serve listens on the configured address until ctx ends, then shuts the
// server down and closes the app.
func (a *App) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.conf.Listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	a.log.Info("serving", "listen", a.conf.Listen, "decision", a.conf.Decision, "phase", a.currentPhase())

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(err, server.Shutdown(shutdownCtx), a.Close(shutdownCtx))
}

// NewPhaseCommand reads or moves the phase of a running service.
func NewPhaseCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "phase [new-phase]",
		Short: "Show or change the migration phase of a running service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 10 * time.Second}
			url := addr + "/api/admin/phase"

			var (
				resp *http.Response
				err  error
			)
			if len(args) == 0 {
				resp, err = client.Get(url)
			} else {
				body, _ := json.Marshal(phaseRequest{Phase: args[0]})
				resp, err = client.Post(url, "application/json", bytes.NewReader(body))
			}
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printPhase(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "base URL of the service")
	return cmd
}

func printPhase(w io.Writer, resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s", resp.Status, e.Error)
	}
	var p phaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, p.Phase)
	return err
}

func NewCheckConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := LoadConfig(opts.Config)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), conf.Summary())
			return err
		},
	}
}

// NewWatchCommand prints the event stream of a running service, one JSON
// object per line.
func NewWatchCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the facade events of a running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			url := "ws" + strings.TrimPrefix(addr, "http") + "/api/events"
			enc := json.NewEncoder(cmd.OutOrStdout())
			return eventstream.NewSubscriber(url).Run(ctx, func(m eventstream.Message) error {
				return enc.Encode(m)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "base URL of the service")
	return cmd
}
