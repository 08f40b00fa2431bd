package publication

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/drafts"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/manifest"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/perf"
	"git.handmade.network/hmn/edu/src/publicators"
	"git.handmade.network/hmn/edu/src/slugs"
	"git.handmade.network/hmn/edu/src/utils"
	"git.handmade.network/hmn/edu/src/vcs"
	"git.handmade.network/hmn/edu/src/versioned"
	"github.com/rs/zerolog"
)

var ErrStaleDraft = errors.New("draft is not at the content's current version")

const (
	buildingSuffix = "__building"
	oldSuffix      = "__old"
)

// Publication records. Lookups of a single record return db.NotFound when
// there is none.
type Store interface {
	PublishedFor(ctx context.Context, contentID int) (*models.PublishedContent, error)
	// Creates the record of published.ContentID, or updates it in place.
	SavePublished(ctx context.Context, published *models.PublishedContent) (*models.PublishedContent, error)
	// Deletes the record of a content and solves the open alerts about it, in
	// one transaction. Returns the number of records deleted.
	DeletePublished(ctx context.Context, contentID int, moderator *models.User) (int, error)
	ListPublished(ctx context.Context) ([]*models.PublishedContent, error)
}

// A copy of the public output somewhere else, kept up to date on a best
// effort basis.
type Mirror interface {
	Upload(ctx context.Context, dir, prefix string) error
	Remove(ctx context.Context, prefix string) error
}

/*
Turns drafts into public output and keeps their records in sync.

Publishing never sets Content.PublicVersionID. Callers point the content at
the returned record themselves once publication has succeeded, so a retried
publication cannot assign it twice.
*/
type Publisher struct {
	Config      config.ContentConfig
	Store       Store
	Publicators *publicators.Registry
	Locker      Locker
	// Optional.
	Mirror Mirror

	now func() time.Time
}

func (p *Publisher) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func NewPublisher(cfg config.ContentConfig, store Store, registry *publicators.Registry) *Publisher {
	return &Publisher{
		Config:      cfg,
		Store:       store,
		Publicators: registry,
		Locker:      NewLocalLocker(),
		now:         time.Now,
	}
}

func (p *Publisher) publicDir(slug string) string {
	return filepath.Join(p.Config.RepoPublicPath, slug)
}

func (p *Publisher) exportPath(dir, slug string) string {
	return filepath.Join(dir, p.Config.ExtraContentsDirname, slug+".md")
}

// Options for reading the drafts of a content under the configured limits.
func (p *Publisher) ParseOptions(contentID int) manifest.ParseOptions {
	return manifest.ParseOptions{
		ContentID:      contentID,
		MaxTitleLength: p.Config.MaxTitleLength,
		MaxSlugSize:    p.Config.MaximumSlugSize,
		MaxTreeDepth:   p.Config.MaxTreeDepth,
	}
}

/*
Publishes draft, which must have been loaded from the current version of
content. Containers that are not ready to publish are left out of every
output, along with everything beneath them.

The output is built next to the public directory of the content and swapped
in once complete; the record is written after that. A crash in between leaves
a directory with no record, which FindOrphans reports, and publishing again
fixes it.
*/
func (p *Publisher) PublishContent(ctx context.Context, content *models.Content, draft *versioned.Content) (published *models.PublishedContent, err error) {
	defer func() { recordOutcome("publish", err) }()

	if draft.CurrentVersion == "" || draft.CurrentVersion != content.ShaDraft {
		return nil, oops.New(ErrStaleDraft, "draft at %q, content at %q", draft.CurrentVersion, content.ShaDraft)
	}
	err = versioned.Walk(&draft.Container, func(n versioned.Node) error {
		return slugs.Validate(n.Info().Slug, p.Config.MaximumSlugSize)
	})
	if err != nil {
		return nil, err
	}

	unlock, err := p.Locker.Lock(ctx, content.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := logging.ExtractLogger(ctx).With().Int("content", content.ID).Str("slug", draft.Slug).Logger()
	run := perf.NewRun("publish")
	ctx = perf.AttachToContext(ctx, run)
	defer func() {
		run.Finish()
		run.Observe(stepDuration)
		run.Log(&logger)
	}()

	previous, err := p.Store.PublishedFor(ctx, content.ID)
	if err != nil && !errors.Is(err, db.NotFound) {
		return nil, err
	}
	publicationDate := p.clock()
	if previous != nil {
		publicationDate = previous.PublicationDate
	}

	tree := versioned.Prune(draft)
	b := builder{
		dir:  p.publicDir(tree.Slug + buildingSuffix),
		tree: tree,
		info: contentInfo(content, tree, publicationDate),
	}
	if err := os.RemoveAll(b.dir); err != nil {
		return nil, oops.New(err, "failed to clear build directory")
	}
	defer os.RemoveAll(b.dir)

	run.StartBlock("BUILD", "markdown export")
	export, err := GenerateMarkdownExport(tree, b.info)
	if err != nil {
		return nil, err
	}
	mdPath := p.exportPath(b.dir, tree.Slug)
	if err := writeFile(mdPath, export); err != nil {
		return nil, err
	}
	charCount, err := countChars(export)
	if err != nil {
		return nil, err
	}
	run.EndBlock()

	run.StartBlock("BUILD", "pages")
	if err := b.writePages(); err != nil {
		return nil, err
	}
	run.EndBlock()

	failed := p.runPublicators(ctx, &logger, mdPath, func(format string) bool {
		return p.Config.BuildPDFWhenPublished || !publicators.IsPrintFormat(format)
	})
	run.Checkpoint("PUBLICATOR", fmt.Sprintf("%d format(s) failed", len(failed)))

	if err := writePublicManifest(b.dir, tree); err != nil {
		return nil, err
	}

	run.StartBlock("STORAGE", "swap")
	finalDir := p.publicDir(tree.Slug)
	if err := swapDir(b.dir, finalDir); err != nil {
		return nil, err
	}
	run.EndBlock()

	record := &models.PublishedContent{
		ContentID:         content.ID,
		ContentPK:         content.ID,
		ContentType:       tree.Type,
		ContentPublicSlug: tree.Slug,
		ShaPublic:         draft.CurrentVersion,
		CharCount:         &charCount,
		PublicationDate:   publicationDate,
		MustReindex:       true,
	}
	if previous != nil {
		record.ID = previous.ID
		now := p.clock()
		record.UpdateDate = &now
	}
	published, err = p.Store.SavePublished(ctx, record)
	if err != nil {
		return nil, err
	}

	if previous != nil && previous.ContentPublicSlug != tree.Slug {
		if err := os.RemoveAll(p.publicDir(previous.ContentPublicSlug)); err != nil {
			logger.Error().Err(err).Str("old slug", previous.ContentPublicSlug).Msg("failed to remove previous public directory")
		}
		p.removeMirror(ctx, &logger, previous.ContentPublicSlug)
	}
	if p.Mirror != nil {
		run.StartBlock("STORAGE", "mirror")
		if err := p.Mirror.Upload(ctx, finalDir, tree.Slug); err != nil {
			logger.Error().Err(err).Msg("failed to mirror public directory")
		}
		run.EndBlock()
	}

	logger.Info().Str("sha", published.ShaPublic).Int("chars", charCount).Msg("published content")
	return published, nil
}

// Runs the included publicators on the export at mdPath. Failures are logged
// and counted, never returned.
func (p *Publisher) runPublicators(ctx context.Context, logger *zerolog.Logger, mdPath string, include func(format string) bool) (failed []string) {
	base := mdPath[:len(mdPath)-len(filepath.Ext(mdPath))]
	run := perf.ExtractRun(ctx)
	for _, e := range p.Publicators.All() {
		if !include(e.Format) {
			continue
		}
		run.StartBlock("PUBLICATOR", e.Format)
		err := publishFormat(ctx, e.Publicator, mdPath, base)
		run.EndBlock()
		if err != nil {
			publicatorFailures.WithLabelValues(e.Format).Inc()
			logger.Error().Err(err).Str("format", e.Format).Msg("failed to build download")
			failed = append(failed, e.Format)
		}
	}
	return failed
}

// A publicator that panics fails its own format only.
func publishFormat(ctx context.Context, pub publicators.Publicator, mdPath, base string) (err error) {
	defer utils.RecoverPanicAsError(&err)
	return pub.Publish(ctx, mdPath, base, publicators.Options{})
}

/*
Removes the publication of content: its record, its open alerts (solved on
behalf of moderator, who may be nil), then its public output. Readers only
find output through the record, so the record goes first.

Returns the number of records deleted. Unpublishing a content that is not
published does nothing and returns 0.
*/
func (p *Publisher) UnpublishContent(ctx context.Context, content *models.Content, moderator *models.User) (n int, err error) {
	defer func() { recordOutcome("unpublish", err) }()

	unlock, err := p.Locker.Lock(ctx, content.ID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	logger := logging.ExtractLogger(ctx).With().Int("content", content.ID).Logger()

	previous, err := p.Store.PublishedFor(ctx, content.ID)
	if errors.Is(err, db.NotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	n, err = p.Store.DeletePublished(ctx, content.ID, moderator)
	if err != nil {
		return 0, err
	}
	// The foreign key clears it in the database.
	content.PublicVersionID = nil

	if err := os.RemoveAll(p.publicDir(previous.ContentPublicSlug)); err != nil {
		return n, oops.New(err, "failed to remove public directory of content %d", content.ID)
	}
	p.removeMirror(ctx, &logger, previous.ContentPublicSlug)

	logger.Info().Str("slug", previous.ContentPublicSlug).Msg("unpublished content")
	return n, nil
}

func (p *Publisher) removeMirror(ctx context.Context, logger *zerolog.Logger, slug string) {
	if p.Mirror == nil {
		return
	}
	if err := p.Mirror.Remove(ctx, slug); err != nil {
		logger.Error().Err(err).Str("slug", slug).Msg("failed to remove mirrored copy")
	}
}

/*
Rewrites the Markdown export of a published content from its draft
repository, as of the published version.
*/
func (p *Publisher) GenerateMarkdown(ctx context.Context, content *models.Content, published *models.PublishedContent) error {
	unlock, err := p.Locker.Lock(ctx, content.ID)
	if err != nil {
		return err
	}
	defer unlock()

	repo, err := vcs.Open(drafts.RepoPath(p.Config.RepoPrivatePath, content))
	if err != nil {
		return err
	}
	draft, err := drafts.Load(repo, published.ShaPublic, p.ParseOptions(content.ID))
	if err != nil {
		return err
	}
	tree := versioned.Prune(draft)

	export, err := GenerateMarkdownExport(tree, contentInfo(content, tree, published.PublicationDate))
	if err != nil {
		return err
	}
	dir := p.publicDir(published.ContentPublicSlug)
	return writeFile(p.exportPath(dir, published.ContentPublicSlug), export)
}

/*
Builds the print formats of a published content from its Markdown export,
whatever the config says about building them on publication. Returns the
formats that failed.
*/
func (p *Publisher) GeneratePrintFormats(ctx context.Context, published *models.PublishedContent) ([]string, error) {
	unlock, err := p.Locker.Lock(ctx, published.ContentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := logging.ExtractLogger(ctx).With().Int("content", published.ContentID).Logger()
	mdPath := p.exportPath(p.publicDir(published.ContentPublicSlug), published.ContentPublicSlug)
	if _, err := os.Stat(mdPath); err != nil {
		return nil, oops.New(err, "no markdown export for content %d", published.ContentID)
	}

	return p.runPublicators(ctx, &logger, mdPath, publicators.IsPrintFormat), nil
}

// Replaces dst with src. Whatever was at dst is gone afterwards.
func swapDir(src, dst string) error {
	old := dst + oldSuffix
	if err := os.RemoveAll(old); err != nil {
		return oops.New(err, "failed to clear %s", old)
	}
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return oops.New(err, "failed to move %s aside", dst)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		if _, statErr := os.Stat(old); statErr == nil {
			if restoreErr := os.Rename(old, dst); restoreErr != nil {
				return oops.New(errors.Join(err, restoreErr), "failed to move %s into place and to restore %s", src, dst)
			}
		}
		return oops.New(err, "failed to move %s into place", src)
	}
	if err := os.RemoveAll(old); err != nil {
		return oops.New(err, "failed to remove %s", old)
	}
	return nil
}
