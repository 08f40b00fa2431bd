package migration

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.handmade.network/hmn/edu/src/commands"
	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/migration/migrations"
	"git.handmade.network/hmn/edu/src/migration/types"
	"git.handmade.network/hmn/edu/src/oops"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var listMigrations bool

func init() {
	migrateCommand := &cobra.Command{
		Use:   "migrate [target migration id]",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listMigrations {
				ListMigrations(cmd.Context())
				return nil
			}

			targetVersion := time.Time{}
			if len(args) > 0 {
				var err error
				targetVersion, err = time.Parse(time.RFC3339, args[0])
				if err != nil {
					return oops.New(err, "bad version string")
				}
			}

			conn := db.NewConn()
			defer conn.Close(context.Background())

			return Migrate(cmd.Context(), conn, types.MigrationVersion(targetVersion))
		},
	}
	migrateCommand.Flags().BoolVar(&listMigrations, "list", false, "List available migrations")

	makeMigrationCommand := &cobra.Command{
		Use:   "makemigration <name> <description>...",
		Short: "Create a new database migration file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			description := strings.Join(args[1:], " ")

			path, err := MakeMigration(filepath.Join("src", "migration", "migrations"), name, description, time.Now())
			if err != nil {
				return err
			}
			fmt.Println("Successfully created migration file:")
			fmt.Println(path)
			return nil
		},
	}

	commands.RootCommand.AddCommand(migrateCommand)
	commands.RootCommand.AddCommand(makeMigrationCommand)
}

func getSortedMigrationVersions(all map[types.MigrationVersion]types.Migration) []types.MigrationVersion {
	var allVersions []types.MigrationVersion
	for migrationTime := range all {
		allVersions = append(allVersions, migrationTime)
	}
	sort.Slice(allVersions, func(i, j int) bool {
		return allVersions[i].Before(allVersions[j])
	})

	return allVersions
}

func LatestVersion() types.MigrationVersion {
	allVersions := getSortedMigrationVersions(migrations.All)
	return allVersions[len(allVersions)-1]
}

func getCurrentVersion(ctx context.Context, conn db.ConnOrTx) (types.MigrationVersion, error) {
	var currentVersion time.Time
	row := conn.QueryRow(ctx, "SELECT version FROM edu_migration")
	err := row.Scan(&currentVersion)
	if err != nil {
		return types.MigrationVersion{}, err
	}
	currentVersion = currentVersion.UTC()

	return types.MigrationVersion(currentVersion), nil
}

func ListMigrations(ctx context.Context) {
	var currentVersion types.MigrationVersion
	func() {
		defer func() {
			recover()
		}()
		conn := db.NewConn()
		defer conn.Close(ctx)
		currentVersion, _ = getCurrentVersion(ctx, conn)
	}()

	for _, version := range getSortedMigrationVersions(migrations.All) {
		migration := migrations.All[version]
		indicator := "  "
		if version.Equal(currentVersion) {
			indicator = "✔ "
		}
		fmt.Printf("%s%v (%s: %s)\n", indicator, version, migration.Name(), migration.Description())
	}
}

// Rolls the database forward or back to targetVersion, one transaction per
// migration. A zero target means the latest migration.
func Migrate(ctx context.Context, conn db.ConnOrTx, targetVersion types.MigrationVersion) error {
	return migrate(ctx, conn, migrations.All, targetVersion)
}

func migrate(ctx context.Context, conn db.ConnOrTx, all map[types.MigrationVersion]types.Migration, targetVersion types.MigrationVersion) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS edu_migration (
			version		TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return oops.New(err, "failed to create migration table")
	}

	// ensure there is a row
	var numRows int
	err = conn.QueryRow(ctx, "SELECT COUNT(*) FROM edu_migration").Scan(&numRows)
	if err != nil {
		return oops.New(err, "failed to count migration rows")
	}
	if numRows < 1 {
		_, err := conn.Exec(ctx, "INSERT INTO edu_migration (version) VALUES ($1)", time.Time{})
		if err != nil {
			return oops.New(err, "failed to insert initial migration row")
		}
	}

	currentVersion, err := getCurrentVersion(ctx, conn)
	if err != nil {
		return oops.New(err, "failed to get current version")
	}
	if currentVersion.IsZero() {
		logging.Info().Msg("This is the first time you have run database migrations.")
	} else {
		logging.Info().Stringer("version", currentVersion).Msg("Current version")
	}

	allVersions := getSortedMigrationVersions(all)
	if len(allVersions) == 0 {
		return nil
	}
	if targetVersion.IsZero() {
		targetVersion = allVersions[len(allVersions)-1]
	}

	currentIndex := -1
	targetIndex := -1
	for i, version := range allVersions {
		if currentVersion.Equal(version) {
			currentIndex = i
		}
		if targetVersion.Equal(version) {
			targetIndex = i
		}
	}

	if targetIndex < 0 {
		return oops.New(nil, "could not find migration with version %v", targetVersion)
	}

	if currentIndex < targetIndex {
		for i := currentIndex + 1; i <= targetIndex; i++ {
			version := allVersions[i]
			migration := all[version]
			logging.Info().Stringer("version", version).Str("name", migration.Name()).Msg("Applying migration")

			err := runInTransaction(ctx, conn, func(tx pgx.Tx) error {
				if err := migration.Up(ctx, tx); err != nil {
					return oops.New(err, "migration %v failed", version)
				}
				_, err := tx.Exec(ctx, "UPDATE edu_migration SET version = $1", time.Time(version))
				return err
			})
			if err != nil {
				return err
			}
		}
	} else if currentIndex > targetIndex {
		for i := currentIndex; i > targetIndex; i-- {
			version := allVersions[i]
			previousVersion := types.MigrationVersion{}
			if i > 0 {
				previousVersion = allVersions[i-1]
			}
			migration := all[version]
			logging.Info().Stringer("version", version).Str("name", migration.Name()).Msg("Rolling back migration")

			err := runInTransaction(ctx, conn, func(tx pgx.Tx) error {
				if err := migration.Down(ctx, tx); err != nil {
					return oops.New(err, "rollback of %v failed", version)
				}
				_, err := tx.Exec(ctx, "UPDATE edu_migration SET version = $1", time.Time(previousVersion))
				return err
			})
			if err != nil {
				return err
			}
		}
	} else {
		logging.Info().Msg("Already migrated; nothing to do.")
	}

	return nil
}

func runInTransaction(ctx context.Context, conn db.ConnOrTx, f func(tx pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if err := f(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

//go:embed migrationTemplate.txt
var migrationTemplate string

// Writes a new migration file into dir and returns its path.
func MakeMigration(dir, name, description string, now time.Time) (string, error) {
	result := migrationTemplate
	result = strings.ReplaceAll(result, "%NAME%", name)
	result = strings.ReplaceAll(result, "%DESCRIPTION%", fmt.Sprintf("%#v", description))

	now = now.UTC()
	nowConstructor := fmt.Sprintf("time.Date(%d, %d, %d, %d, %d, %d, 0, time.UTC)", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
	result = strings.ReplaceAll(result, "%DATE%", nowConstructor)

	safeVersion := strings.ReplaceAll(types.MigrationVersion(now).String(), ":", "")
	filename := fmt.Sprintf("%v_%v.go", safeVersion, name)
	path := filepath.Join(dir, filename)

	err := os.WriteFile(path, []byte(result), 0644)
	if err != nil {
		return "", oops.New(err, "failed to write migration file")
	}
	return path, nil
}
