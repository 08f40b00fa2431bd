package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/contentdata"
	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/jobs"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/publication"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var sweepInterval time.Duration

func init() {
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "Watch the public directory for orphans and serve metrics",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			defer logging.LogPanics(nil)
			logging.Info().Msg("Starting the publication watcher")

			var wg sync.WaitGroup

			conn := db.NewConnPool()
			defer conn.Close()
			store := &contentdata.PublicationStore{Conn: conn}

			wg.Add(1)
			backgroundJobs := jobs.Jobs{
				publication.PeriodicallyReportOrphans(config.Config.Content, store, sweepInterval),
			}

			wg.Add(1)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			server := http.Server{
				Addr:    config.Config.MetricsAddr,
				Handler: mux,
			}
			go func() {
				logging.Info().Str("addr", config.Config.MetricsAddr).Msg("Serving metrics")
				serverErr := server.ListenAndServe()
				if !errors.Is(serverErr, http.ErrServerClosed) {
					logging.Error().Err(serverErr).Msg("Metrics server shut down unexpectedly")
				}
			}()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt)
			go func() {
				<-signals
				logging.Info().Msg("Shutting down")

				go func() {
					unfinished := backgroundJobs.CancelAndWait(10 * time.Second)
					if len(unfinished) == 0 {
						logging.Info().Msg("Background jobs closed gracefully")
					} else {
						logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
					}
					wg.Done()
				}()

				go func() {
					timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := server.Shutdown(timeoutCtx); err != nil {
						logging.Warn().Err(err).Msg("Metrics server did not shut down gracefully")
					}
					wg.Done()
				}()

				<-signals
				logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed the watcher")
				os.Exit(1)
			}()

			wg.Wait()
		},
	}
	runCommand.Flags().DurationVar(&sweepInterval, "sweep-interval", time.Hour, "How often to look for orphaned public directories")
	RootCommand.AddCommand(runCommand)
}
