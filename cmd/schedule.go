package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run periodic feed imports on a cron schedule",
	Long:  "Triggers an import per the schedule.cron expression (seconds-first cron syntax, descriptors like @daily also work). Overlapping triggers queue behind a single worker so runs never interleave.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("schedule"); err != nil {
			return err
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		log := zap.L().With(zap.String("component", "schedule"))

		// Single worker drains the trigger queue, one import at a time. A
		// trigger that fires while the queue is full is dropped: an import
		// is already pending.
		triggers := make(chan time.Time, 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			// lastETag skips the import entirely when the feed has not
			// been republished since the previous trigger.
			var lastETag string
			for {
				select {
				case <-ctx.Done():
					return
				case firedAt := <-triggers:
					version := fmt.Sprintf("%s-%s", cfg.Feed.VersionPrefix, firedAt.UTC().Format("20060102-150405"))
					run, etag, err := env.importer.RunIfChanged(ctx, cfg.Feed.URL, version, lastETag)
					lastETag = etag
					if err != nil {
						log.Error("scheduled import failed", zap.Error(err))
						continue
					}
					if run == nil {
						log.Info("feed unchanged, import skipped", zap.String("etag", etag))
						continue
					}
					log.Info("scheduled import complete",
						zap.Int64("run_id", run.ID),
						zap.Int("total", run.Total),
						zap.Int("added", run.Added),
						zap.Int("updated", run.Updated),
					)
				}
			}
		}()

		c := cron.New()
		err = c.AddFunc(cfg.Schedule.Cron, func() {
			select {
			case triggers <- time.Now():
			default:
				log.Warn("import already queued, skipping trigger")
			}
		})
		if err != nil {
			return eris.Wrapf(err, "schedule: parse cron %q", cfg.Schedule.Cron)
		}

		c.Start()
		log.Info("scheduler started",
			zap.String("cron", cfg.Schedule.Cron),
			zap.String("feed", cfg.Feed.URL),
		)

		<-ctx.Done()
		c.Stop()
		<-done
		log.Info("scheduler stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
