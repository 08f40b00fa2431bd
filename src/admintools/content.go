package admintools

import (
	"context"
	"errors"
	"os"
	"sync"

	"git.handmade.network/hmn/edu/src/contentdata"
	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/drafts"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/manifest"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/publication"
	"git.handmade.network/hmn/edu/src/vcs"
	"golang.org/x/sync/errgroup"
)

// What the commands read from and write to the database, besides the
// publication records the publisher takes care of.
type Source interface {
	Content(ctx context.Context, id int) (*models.Content, error)
	Published(ctx context.Context, q contentdata.PublishedQuery) ([]*models.PublishedContent, error)
	SetCharCount(ctx context.Context, publishedID, charCount int) error
	SetPublicVersion(ctx context.Context, contentID int, publishedID *int) error
}

type dbSource struct {
	conn db.ConnOrTx
}

func (s dbSource) Content(ctx context.Context, id int) (*models.Content, error) {
	return contentdata.FetchContent(ctx, s.conn, id)
}

func (s dbSource) Published(ctx context.Context, q contentdata.PublishedQuery) ([]*models.PublishedContent, error) {
	return contentdata.FetchPublished(ctx, s.conn, q)
}

func (s dbSource) SetCharCount(ctx context.Context, publishedID, charCount int) error {
	return contentdata.SetCharCount(ctx, s.conn, publishedID, charCount)
}

func (s dbSource) SetPublicVersion(ctx context.Context, contentID int, publishedID *int) error {
	return contentdata.SetPublicVersion(ctx, s.conn, contentID, publishedID)
}

/*
Runs work on every published content, a few at a time. A failure is logged
against its content and does not stop the others; all of them come back
joined.
*/
func forEachPublished(ctx context.Context, published []*models.PublishedContent, workers int, work func(ctx context.Context, p *models.PublishedContent) error) error {
	var mu sync.Mutex
	var errs []error

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, p := range published {
		g.Go(func() error {
			logger := logging.ExtractLogger(ctx).With().Int("content", p.ContentID).Str("slug", p.ContentPublicSlug).Logger()
			if err := work(logging.AttachLoggerToContext(&logger, ctx), p); err != nil {
				logger.Error().Err(err).Msg("failed to process content")
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// Rewrites the Markdown export of the given published contents, or of all of
// them when ids is empty.
func GenerateMarkdown(ctx context.Context, src Source, pub *publication.Publisher, ids []int) error {
	published, err := src.Published(ctx, contentdata.PublishedQuery{ContentIDs: ids})
	if err != nil {
		return err
	}
	return forEachPublished(ctx, published, pub.Config.Workers, func(ctx context.Context, p *models.PublishedContent) error {
		content, err := src.Content(ctx, p.ContentID)
		if err != nil {
			return err
		}
		return pub.GenerateMarkdown(ctx, content, p)
	})
}

// Builds the print formats of the given published contents. Ids that are not
// published are skipped.
func GeneratePrintFormats(ctx context.Context, src Source, pub *publication.Publisher, ids []int) error {
	published, err := src.Published(ctx, contentdata.PublishedQuery{ContentIDs: ids})
	if err != nil {
		return err
	}
	if len(published) == 0 {
		logging.ExtractLogger(ctx).Info().Ints("ids", ids).Msg("nothing published to build")
		return nil
	}
	return forEachPublished(ctx, published, pub.Config.Workers, func(ctx context.Context, p *models.PublishedContent) error {
		failed, err := pub.GeneratePrintFormats(ctx, p)
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			return oops.New(nil, "failed to build %v", failed)
		}
		return nil
	})
}

// Fills in the character count of every publication that has none.
func AdjustCharCount(ctx context.Context, src Source, pub *publication.Publisher) error {
	published, err := src.Published(ctx, contentdata.PublishedQuery{MissingCharCount: true})
	if err != nil {
		return err
	}
	return forEachPublished(ctx, published, pub.Config.Workers, func(ctx context.Context, p *models.PublishedContent) error {
		count, err := publication.CharCount(pub.Config, p)
		if err != nil {
			return err
		}
		return src.SetCharCount(ctx, p.ID, count)
	})
}

/*
Rewrites v1 manifests in place as current ones. Files that are not v1
manifests are left alone. Returns the number of files upgraded.
*/
func UpgradeManifests(ctx context.Context, files []string, licences manifest.LicenceLookup) (int, error) {
	logger := logging.ExtractLogger(ctx)
	var errs []error
	upgraded := 0
	for _, filename := range files {
		data, err := os.ReadFile(filename)
		if err != nil {
			errs = append(errs, oops.New(err, "failed to read %s", filename))
			continue
		}
		newData, err := manifest.UpgradeV1(data, licences)
		if errors.Is(err, manifest.ErrNotV1) {
			logger.Info().Str("file", filename).Msg("manifest is already up to date")
			continue
		} else if err != nil {
			errs = append(errs, oops.New(err, "failed to upgrade %s", filename))
			continue
		}
		if err := os.WriteFile(filename, newData, 0644); err != nil {
			errs = append(errs, oops.New(err, "failed to write %s", filename))
			continue
		}
		upgraded++
	}
	return upgraded, errors.Join(errs...)
}

// Publishes the current draft of a content and points the content at the
// new publication.
func Publish(ctx context.Context, src Source, pub *publication.Publisher, contentID int) (*models.PublishedContent, error) {
	content, err := src.Content(ctx, contentID)
	if err != nil {
		return nil, err
	}
	repo, err := vcs.Open(drafts.RepoPath(pub.Config.RepoPrivatePath, content))
	if err != nil {
		return nil, err
	}
	draft, err := drafts.Load(repo, content.ShaDraft, pub.ParseOptions(content.ID))
	if err != nil {
		return nil, err
	}

	published, err := pub.PublishContent(ctx, content, draft)
	if err != nil {
		return nil, err
	}
	if err := src.SetPublicVersion(ctx, content.ID, &published.ID); err != nil {
		return nil, err
	}
	content.PublicVersionID = &published.ID
	return published, nil
}

func Unpublish(ctx context.Context, src Source, pub *publication.Publisher, contentID int, moderator *models.User) (int, error) {
	content, err := src.Content(ctx, contentID)
	if err != nil {
		return 0, err
	}
	return pub.UnpublishContent(ctx, content, moderator)
}
