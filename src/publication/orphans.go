package publication

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/jobs"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/utils"
)

/*
Lists the directories of the public root that no publication record points
to, sorted. They are left behind by a publication that crashed before its
record was written, or by an unpublication that crashed after deleting it.
*/
func FindOrphans(ctx context.Context, cfg config.ContentConfig, store Store) ([]string, error) {
	entries, err := os.ReadDir(cfg.RepoPublicPath)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, oops.New(err, "failed to list public contents")
	}

	published, err := store.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(published))
	for _, p := range published {
		live[p.ContentPublicSlug] = true
	}

	var orphans []string
	for _, e := range entries {
		if e.IsDir() && !live[e.Name()] {
			orphans = append(orphans, filepath.Join(cfg.RepoPublicPath, e.Name()))
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

// Logs the orphaned public directories every interval, starting right away.
// Nothing is deleted; a republication or an admin takes care of them.
func PeriodicallyReportOrphans(cfg config.ContentConfig, store Store, interval time.Duration) *jobs.Job {
	return jobs.Go("orphan sweeper", func(ctx context.Context) error {
		log := logging.ExtractLogger(ctx)
		t := utils.NewInstaTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				orphans, err := FindOrphans(ctx, cfg, store)
				if err != nil {
					log.Error().Err(err).Msg("failed to look for orphaned public directories")
					continue
				}
				orphanDirectories.Set(float64(len(orphans)))
				for _, dir := range orphans {
					log.Warn().Str("dir", dir).Msg("public directory has no publication record")
				}
			}
		}
	})
}
