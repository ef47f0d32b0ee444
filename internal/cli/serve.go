package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/platform"
	"github.com/tubescribe/tubescribe/internal/server"
)

func newServeCmd(app *appState) *cobra.Command {
	var addr string
	var maxJobs int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local HTTP API that accepts download jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				app.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("max-jobs") {
				app.cfg.Server.MaxJobs = maxJobs
			}
			return app.runServe(cmd.Context())
		},
	}

	bindFetchFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindTranscriptionFlags(cmd, app)
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8977", "Listen address")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 2, "Maximum concurrent jobs")
	return cmd
}

// runServe blocks until the context is canceled, then shuts the HTTP server
// down, cancels jobs that are still running, and waits for them to unwind.
func (a *appState) runServe(ctx context.Context) error {
	logger := a.log()

	runner, store, cleanup, err := a.buildRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	modelDir, err := platform.ResolveModelDir(a.cfg.ModelDir)
	if err != nil {
		return err
	}

	manager := jobs.NewManager(runner, a.cfg.Server.MaxJobs, logger)

	srv := server.New(server.Config{
		Addr:     a.cfg.Server.Addr,
		ModelDir: modelDir,
		Defaults: a.buildRequest(""),
	}, manager, store, logger)

	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(a.outWriter(), "Listening on http://%s\n", srv.Addr())

	<-ctx.Done()
	logger.Info("shutting down")

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}

	for _, job := range manager.List() {
		if job.Terminal() {
			continue
		}
		if cancelErr := manager.Cancel(job.ID); cancelErr != nil {
			logger.Debug("cancel job on shutdown", zap.String("job", job.ID), zap.Error(cancelErr))
		}
	}
	manager.Wait()

	return nil
}
