package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airframesio/report-archiver/cmd/pipeline"
	"github.com/airframesio/report-archiver/cmd/report"
)

// ErrResumeNotConfirmed is returned when purge-resume runs without --confirm
var ErrResumeNotConfirmed = errors.New("purge-resume deletes rows permanently; pass --confirm to proceed")

var purgeResumeCmd = &cobra.Command{
	Use:   "purge-resume",
	Short: "Finish an interrupted close-cycle purge from its archive",
	Long: `Read the session identifiers back from a close-cycle archive and delete the
ones still present in the database. Use the archive key reported by the
failed close-cycle.`,
	Example: `  report-archiver purge-resume --kind work_performance \
    --archive-key archives/work_performance/2024/02/backup_work_performance_2024-01-01_2024-01-31_1706756400000.csv --confirm`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlags(cmd.Flags(), backendFlagBindings)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		archiveKey, _ := cmd.Flags().GetString("archive-key")
		confirm, _ := cmd.Flags().GetBool("confirm")
		return runPurgeResume(kind, archiveKey, confirm)
	},
}

func init() {
	addBackendFlags(purgeResumeCmd)

	flags := purgeResumeCmd.Flags()
	flags.String("kind", string(report.KindWorkPerformance), "report kind of the archive")
	flags.String("archive-key", "", "object key of the close-cycle archive")
	flags.Bool("confirm", false, "confirm the irreversible deletion")
	_ = purgeResumeCmd.MarkFlagRequired("archive-key")
}

func runPurgeResume(kindName, archiveKey string, confirm bool) error {
	config := loadConfig()
	initLogger(config.Debug, config.LogFormat, nil)

	if !confirm {
		return ErrResumeNotConfirmed
	}
	kind, err := report.ParseKind(kindName)
	if err != nil {
		return err
	}
	if err := config.ValidateForResume(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	b, err := openBackends(ctx, config)
	if err != nil {
		return err
	}
	defer b.Close()

	p, err := pipeline.New(b.source, b.store, b.locker, logger, config.pipelineOptions())
	if err != nil {
		return err
	}
	p.SetObserver(pipeline.ObserverFunc(func(e pipeline.Event) {
		if e.State == pipeline.StatePurging && e.BatchesCompleted > 0 {
			logger.Info(fmt.Sprintf("🗑️  Batch %d/%d purged", e.BatchesCompleted, e.BatchesTotal))
		}
	}))

	logger.Info(fmt.Sprintf("📦 Resuming purge from %s", b.store.Location(archiveKey)))
	result, err := p.Resume(ctx, kind, archiveKey)
	if err != nil {
		var purgeErr *pipeline.PurgeError
		if errors.As(err, &purgeErr) {
			logger.Error(fmt.Sprintf("❌ %d of %d batches completed; run purge-resume again to continue", purgeErr.Completed, purgeErr.Total))
		}
		return err
	}

	logger.Info("")
	logger.Info(titleStyle.Render("Purge Summary"))
	logger.Info(fmt.Sprintf("  Archived rows:      %d", result.Archived))
	logger.Info(fmt.Sprintf("  Still present:      %d", result.Remaining))
	logger.Info(fmt.Sprintf("  Purged:             %d", result.Purged))
	logger.Info(fmt.Sprintf("✅ Purge resumed from %s completed", archiveKey))
	return nil
}
