package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/manifest"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/monitoring"
)

var batchManifest string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process a manifest of filings through the extraction cascade",
	Long:  "Runs every filing in the manifest to a terminal state. Re-running the same manifest resumes from checkpoints: already-terminal documents are no-ops.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := manifest.Load(batchManifest)
		if err != nil {
			return err
		}
		docs, err := m.Documents(batchManifest)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			zap.L().Info("manifest has no filings")
			return nil
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		zap.L().Info("processing batch",
			zap.Int("documents", len(docs)),
			zap.Int("concurrency", cfg.Batch.Concurrency),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return e.Processor.Run(gctx)
		})

		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			if _, err := e.Processor.Submit(doc); err != nil {
				return err
			}
			ids = append(ids, doc.Meta.ID)
		}
		e.Processor.Close()

		states, err := e.Processor.AwaitBatch(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "await batch")
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch workers")
		}

		var accepted, escalated int
		for _, st := range states {
			switch st.Status {
			case model.StatusAccepted:
				accepted++
			case model.StatusEscalated:
				escalated++
			}
		}
		zap.L().Info("batch complete",
			zap.Int("accepted", accepted),
			zap.Int("escalated", escalated),
		)

		snap := e.Recorder.Snapshot()
		if fired, msg := monitoring.CheckEscalationRate(snap, cfg.Alerts); fired {
			zap.L().Warn("batch quality degraded", zap.String("alert", msg))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "filings.yaml", "path to the filings manifest")
	rootCmd.AddCommand(batchCmd)
}
