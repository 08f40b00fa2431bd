package migration

import (
	"context"
	"fmt"

	"git.handmade.network/hmn/edu/src/commands"
	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/drafts"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/utils"
	"git.handmade.network/hmn/edu/src/vcs"
	"git.handmade.network/hmn/edu/src/versioned"
	lorem "github.com/HandmadeNetwork/golorem"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

func init() {
	seedCommand := &cobra.Command{
		Use:   "seed",
		Short: "Migrate the database and fill it with sample contents for local dev",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return SampleSeed(cmd.Context(), config.Config)
		},
	}
	commands.RootCommand.AddCommand(seedCommand)
}

var sampleLicences = []models.Licence{
	{Code: "CC BY", Title: "Licence CC BY"},
	{Code: "CC BY-SA", Title: "Licence CC BY-SA"},
	{Code: "Tous droits réservés", Title: "Tous droits réservés"},
}

/*
Seeds the database with sample data for local dev: licences, a bot account,
a few authors and one draft of each content type, committed to its
repository. Nothing is published; use the publish command for that.
*/
func SampleSeed(ctx context.Context, cfg config.EduConfig) error {
	conn := db.NewConnWithConfig(cfg.Postgres)
	defer conn.Close(context.Background())

	if err := Migrate(ctx, conn, LatestVersion()); err != nil {
		return err
	}

	return runInTransaction(ctx, conn, func(tx pgx.Tx) error {
		if err := ensureNoContent(ctx, tx); err != nil {
			return err
		}

		fmt.Println("Creating licences...")
		var licences []*models.Licence
		for _, l := range sampleLicences {
			licence, err := db.QueryOne[models.Licence](ctx, tx,
				`
				INSERT INTO licence (code, title)
				VALUES ($1, $2)
				RETURNING $columns
				`,
				l.Code, l.Title,
			)
			if err != nil {
				return oops.New(err, "failed to create licence")
			}
			licences = append(licences, licence)
		}

		fmt.Println("Creating users...")
		bot, err := seedUser(ctx, tx, models.User{Username: cfg.Content.BotAccount, IsStaff: true})
		if err != nil {
			return err
		}
		alice, err := seedUser(ctx, tx, models.User{Username: "alice"})
		if err != nil {
			return err
		}
		bob, err := seedUser(ctx, tx, models.User{Username: "bob"})
		if err != nil {
			return err
		}

		fmt.Println("Creating contents...")
		samples := []struct {
			tree    *versioned.Content
			authors []*models.User
		}{
			{SampleTree("Un article pour commencer", models.ContentTypeArticle, 0, 3), []*models.User{alice}},
			{SampleTree("Un petit tutoriel", models.ContentTypeTutorial, 1, 3), []*models.User{alice, bob}},
			{SampleTree("Un gros tutoriel", models.ContentTypeTutorial, 2, 2), []*models.User{bob}},
			{SampleTree("Mon avis sur la question", models.ContentTypeOpinion, 0, 1), []*models.User{bob}},
		}
		for i, sample := range samples {
			sample.tree.Licence = licences[i%len(licences)].Title
			err := seedContent(ctx, tx, cfg.Content, sample.tree, &licences[i%len(licences)].ID, sample.authors, *bot)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureNoContent(ctx context.Context, conn db.ConnOrTx) error {
	existing, err := db.QueryOneScalar[int](ctx, conn, `SELECT COUNT(*) FROM content`)
	if err != nil {
		return oops.New(err, "failed to count existing contents")
	}
	if existing > 0 {
		return oops.New(nil, "the database already has %d content(s); seed an empty database", existing)
	}
	return nil
}

func seedUser(ctx context.Context, conn db.ConnOrTx, input models.User) (*models.User, error) {
	user, err := db.QueryOne[models.User](ctx, conn,
		`
		INSERT INTO edu_user (username, email, is_staff)
		VALUES ($1, $2, $3)
		RETURNING $columns
		`,
		input.Username,
		utils.OrDefault(input.Email, fmt.Sprintf("%s@example.com", input.Username)),
		input.IsStaff,
	)
	if err != nil {
		return nil, oops.New(err, "failed to create user %s", input.Username)
	}
	return user, nil
}

func seedContent(ctx context.Context, conn db.ConnOrTx, cfg config.ContentConfig, tree *versioned.Content, licenceID *int, authors []*models.User, bot models.User) error {
	content, err := db.QueryOne[models.Content](ctx, conn,
		`
		INSERT INTO content (title, slug, type, description, licence_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING $columns
		`,
		tree.Title, tree.Slug, tree.Type, tree.Description, licenceID,
	)
	if err != nil {
		return oops.New(err, "failed to create content %q", tree.Title)
	}
	for _, author := range authors {
		_, err := conn.Exec(ctx,
			`INSERT INTO content_author (content_id, user_id) VALUES ($1, $2)`,
			content.ID, author.ID,
		)
		if err != nil {
			return oops.New(err, "failed to add author to content %q", tree.Title)
		}
	}

	repo, err := vcs.OpenOrInit(drafts.RepoPath(cfg.RepoPrivatePath, content))
	if err != nil {
		return err
	}
	sha, err := drafts.Save(repo, tree, "Création du contenu", vcs.CommitAuthor(authors[0], bot))
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, `UPDATE content SET sha_draft = $2 WHERE id = $1`, content.ID, sha)
	if err != nil {
		return oops.New(err, "failed to set draft version of content %q", tree.Title)
	}
	return nil
}

/*
Builds a tree of placeholder text. Depth 0 puts the extracts right under the
root, depth 1 adds a level of chapters, depth 2 parts holding chapters. Every
container gets width children.
*/
func SampleTree(title string, contentType models.ContentType, depth, width int) *versioned.Content {
	tree := versioned.NewContent(title, "", contentType)
	tree.Description = lorem.Sentence(4, 10)
	tree.Introduction = lorem.Paragraph(1, 3)
	tree.Conclusion = lorem.Paragraph(1, 2)
	fillSample(&tree.Container, depth, width)
	return tree
}

func fillSample(c *versioned.Container, depth, width int) {
	for i := 1; i <= width; i++ {
		if depth == 0 {
			utils.Must(c.AddExtract(versioned.NewExtract(fmt.Sprintf("Extrait %d", i), lorem.Paragraph(2, 5))))
			continue
		}
		title := fmt.Sprintf("Chapitre %d", i)
		if depth > 1 {
			title = fmt.Sprintf("Partie %d", i)
		}
		child := versioned.NewContainer(title)
		child.Introduction = lorem.Paragraph(1, 2)
		utils.Must(c.AddContainer(child))
		fillSample(child, depth-1, width)
	}
}
