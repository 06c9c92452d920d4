package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
	"github.com/collaborator-ai/seedvault-sub000/internal/localapi"
	"github.com/collaborator-ai/seedvault-sub000/internal/supervisor"
)

// httpShutdownGrace bounds how long the local API server waits for
// in-flight requests (notably an open SSE stream) to drain on shutdown.
const httpShutdownGrace = 5 * time.Second

func newDaemonCmd() *cobra.Command {
	var addr string
	var enableSocket bool

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the seedvault sync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			configPath := cmd.Flag("config").Value.String()
			if !cmd.Flag("config").Changed {
				if envPath := os.Getenv("SEEDVAULT_CONFIG_PATH"); envPath != "" {
					configPath = envPath
				} else {
					configPath = config.DefaultConfigPath
				}
			}

			slog.Info("seedvaultd starting", "config", configPath, "addr", addr)

			sup := supervisor.New(configPath)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind local api: %w", err)
			}

			httpServer := &http.Server{Handler: localapi.NewRouter(sup)}

			var changeStream *localapi.ChangeStream
			if enableSocket {
				changeStream = localapi.NewChangeStream(sup, configPath)
			}

			eg, egCtx := errgroup.WithContext(cmd.Context())

			eg.Go(func() error {
				err := sup.Start(egCtx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})

			eg.Go(func() error {
				if changeStream == nil {
					return nil
				}
				if err := changeStream.Start(); err != nil {
					return fmt.Errorf("start change stream: %w", err)
				}
				<-egCtx.Done()
				return changeStream.Stop()
			})

			eg.Go(func() error {
				slog.Info("local api listening", "addr", ln.Addr().String())
				err := httpServer.Serve(ln)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})

			eg.Go(func() error {
				<-egCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownGrace)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			defer slog.Info("seedvaultd stopped")
			if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				if errors.Is(err, supervisor.ErrAuthFailed) {
					slog.Error("seedvaultd: authentication rejected, refusing to start", "error", err)
					return err
				}
				slog.Error("seedvaultd exited with error", "error", err)
				return err
			}
			return nil
		},
	}

	daemonCmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:7938", "address to bind the local control API")
	daemonCmd.Flags().BoolVarP(&enableSocket, "uds", "u", false, "expose the headless Unix-domain-socket change stream")

	return daemonCmd
}
