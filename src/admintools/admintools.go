package admintools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"git.handmade.network/hmn/edu/src/commands"
	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/contentdata"
	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/mirror"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/publication"
	"git.handmade.network/hmn/edu/src/publicators"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func init() {
	generateMarkdownCommand := &cobra.Command{
		Use:   "generatemarkdown [content id]",
		Short: "Rebuild the Markdown export of one published content, or of all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(e *env) error {
				return GenerateMarkdown(cmd.Context(), e.source, e.publisher, ids)
			})
		},
	}
	commands.RootCommand.AddCommand(generateMarkdownCommand)

	generatePDFCommand := &cobra.Command{
		Use:   "generatepdf [id=<content id>]",
		Short: "Build the print formats of one published content, or of all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []int
			if len(args) > 0 {
				id, ok := strings.CutPrefix(args[0], "id=")
				if !ok {
					return fmt.Errorf("expected id=<content id>, got %q", args[0])
				}
				var err error
				if ids, err = parseIDs([]string{id}); err != nil {
					return err
				}
			}
			return withEnv(cmd.Context(), func(e *env) error {
				return GeneratePrintFormats(cmd.Context(), e.source, e.publisher, ids)
			})
		},
	}
	commands.RootCommand.AddCommand(generatePDFCommand)

	adjustCharCountCommand := &cobra.Command{
		Use:   "adjustcharcount",
		Short: "Count the characters of the published contents that have no count yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(e *env) error {
				return AdjustCharCount(cmd.Context(), e.source, e.publisher)
			})
		},
	}
	commands.RootCommand.AddCommand(adjustCharCountCommand)

	upgradeManifestCommand := &cobra.Command{
		Use:   "upgrademanifest <file>...",
		Short: "Rewrite v1 manifests as current ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn := db.NewConn()
			defer conn.Close(context.Background())

			licences, err := contentdata.FetchLicences(ctx, conn)
			if err != nil {
				return err
			}
			n, err := UpgradeManifests(ctx, args, func(code string) (string, bool) {
				l, ok := licences[code]
				if !ok {
					return "", false
				}
				return l.Title, true
			})
			fmt.Printf("Upgraded %d of %d manifests\n", n, len(args))
			return err
		},
	}
	commands.RootCommand.AddCommand(upgradeManifestCommand)

	publishCommand := &cobra.Command{
		Use:   "publish <content id>",
		Short: "Publish the current draft of a content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(e *env) error {
				published, err := Publish(cmd.Context(), e.source, e.publisher, ids[0])
				if errors.Is(err, db.NotFound) {
					fmt.Printf("No content with id %d\n", ids[0])
					return nil
				} else if err != nil {
					return err
				}
				fmt.Printf("Published content %d at version %s\n", published.ContentID, published.ShaPublic)
				return nil
			})
		},
	}
	commands.RootCommand.AddCommand(publishCommand)

	unpublishCommand := &cobra.Command{
		Use:   "unpublish <content id>",
		Short: "Take a content offline and solve the alerts about it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(e *env) error {
				n, err := Unpublish(cmd.Context(), e.source, e.publisher, ids[0], nil)
				if errors.Is(err, db.NotFound) {
					fmt.Printf("No content with id %d\n", ids[0])
					return nil
				} else if err != nil {
					return err
				}
				fmt.Printf("Removed %d publication(s)\n", n)
				return nil
			})
		},
	}
	commands.RootCommand.AddCommand(unpublishCommand)

	orphansCommand := &cobra.Command{
		Use:   "orphans",
		Short: "List the public directories that no publication points to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(e *env) error {
				orphans, err := publication.FindOrphans(cmd.Context(), e.publisher.Config, e.publisher.Store)
				if err != nil {
					return err
				}
				for _, dir := range orphans {
					fmt.Println(dir)
				}
				return nil
			})
		},
	}
	commands.RootCommand.AddCommand(orphansCommand)
}

func parseIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid content id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Everything a command needs to publish contents, built from the config.
type env struct {
	conn      *pgxpool.Pool
	redis     *redis.Client
	registry  *publicators.Registry
	source    Source
	publisher *publication.Publisher
}

func withEnv(ctx context.Context, f func(e *env) error) error {
	e, err := newEnv(ctx, config.Config)
	if err != nil {
		return err
	}
	defer e.close()
	return f(e)
}

func newEnv(ctx context.Context, cfg config.EduConfig) (*env, error) {
	e := &env{
		conn:     db.NewConnPoolWithConfig(cfg.Postgres),
		registry: publicators.DefaultRegistry(cfg.Content),
	}
	e.source = dbSource{conn: e.conn}
	e.publisher = publication.NewPublisher(cfg.Content, &contentdata.PublicationStore{Conn: e.conn}, e.registry)

	if cfg.Redis.Addr != "" {
		e.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		e.publisher.Locker = publication.NewRedisLocker(e.redis, cfg.Redis.KeyPrefix)
	}

	if cfg.Mirror.Enabled() {
		m, err := mirror.New(ctx, cfg.Mirror)
		if err != nil {
			e.close()
			return nil, oops.New(err, "failed to set up mirror")
		}
		e.publisher.Mirror = m
	}
	return e, nil
}

func (e *env) close() {
	if err := e.registry.Close(); err != nil {
		logging.Error().Err(err).Msg("failed to close publicators")
	}
	if e.redis != nil {
		e.redis.Close()
	}
	e.conn.Close()
}
