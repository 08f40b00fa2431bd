package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/edu/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddContentPublication{})
}

type AddContentPublication struct{}

func (m AddContentPublication) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2024, 9, 2, 8, 15, 0, 0, time.UTC))
}

func (m AddContentPublication) Name() string {
	return "AddContentPublication"
}

func (m AddContentPublication) Description() string {
	return "Add contents, their publications, reactions, reads and alerts"
}

func (m AddContentPublication) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE edu_user (
			id SERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			is_staff BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE UNIQUE INDEX edu_user_username ON edu_user (LOWER(username));

		CREATE TABLE licence (
			id SERIAL PRIMARY KEY,
			code VARCHAR(20) NOT NULL UNIQUE,
			title VARCHAR(80) NOT NULL
		);

		CREATE TABLE content (
			id SERIAL PRIMARY KEY,
			title VARCHAR(80) NOT NULL,
			slug VARCHAR(150) NOT NULL,
			type VARCHAR(10) NOT NULL CHECK (type IN ('ARTICLE', 'TUTORIAL', 'OPINION')),
			description VARCHAR(200) NOT NULL DEFAULT '',
			sha_draft VARCHAR(80) NOT NULL DEFAULT '',
			licence_id INT REFERENCES licence (id) ON DELETE SET NULL,
			last_note_id INT,
			creation_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			update_date TIMESTAMP WITH TIME ZONE
		);

		CREATE TABLE content_author (
			content_id INT NOT NULL REFERENCES content (id) ON DELETE CASCADE,
			user_id INT NOT NULL REFERENCES edu_user (id) ON DELETE CASCADE,
			PRIMARY KEY (content_id, user_id)
		);

		CREATE TABLE published_content (
			id SERIAL PRIMARY KEY,
			content_id INT NOT NULL UNIQUE REFERENCES content (id) ON DELETE CASCADE,
			content_pk INT NOT NULL,
			content_type VARCHAR(10) NOT NULL,
			content_public_slug VARCHAR(150) NOT NULL,
			sha_public VARCHAR(80) NOT NULL,
			char_count INT,
			publication_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			update_date TIMESTAMP WITH TIME ZONE,
			must_reindex BOOLEAN NOT NULL DEFAULT TRUE
		);

		ALTER TABLE content
			ADD COLUMN public_version_id INT REFERENCES published_content (id) ON DELETE SET NULL;

		CREATE TABLE content_reaction (
			id SERIAL PRIMARY KEY,
			content_id INT NOT NULL REFERENCES content (id) ON DELETE CASCADE,
			author_id INT NOT NULL REFERENCES edu_user (id) ON DELETE CASCADE,
			position INT NOT NULL,
			text TEXT NOT NULL,
			text_html TEXT NOT NULL,
			pub_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (content_id, position)
		);

		ALTER TABLE content
			ADD CONSTRAINT content_last_note_fkey
				FOREIGN KEY (last_note_id) REFERENCES content_reaction (id) ON DELETE SET NULL;

		CREATE TABLE content_read (
			id SERIAL PRIMARY KEY,
			content_id INT NOT NULL REFERENCES content (id) ON DELETE CASCADE,
			user_id INT NOT NULL REFERENCES edu_user (id) ON DELETE CASCADE,
			reaction_id INT NOT NULL REFERENCES content_reaction (id) ON DELETE CASCADE,
			UNIQUE (content_id, user_id)
		);

		CREATE TABLE alert (
			id SERIAL PRIMARY KEY,
			scope VARCHAR(10) NOT NULL,
			content_id INT REFERENCES content (id) ON DELETE CASCADE,
			reaction_id INT REFERENCES content_reaction (id) ON DELETE CASCADE,
			author_id INT NOT NULL REFERENCES edu_user (id) ON DELETE CASCADE,
			text VARCHAR(255) NOT NULL,
			pub_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			solved BOOLEAN NOT NULL DEFAULT FALSE,
			moderator_id INT REFERENCES edu_user (id) ON DELETE SET NULL,
			resolve_reason TEXT NOT NULL DEFAULT '',
			solved_date TIMESTAMP WITH TIME ZONE
		);
		CREATE INDEX alert_open_by_content ON alert (content_id) WHERE NOT solved;
		`,
	)
	return err
}

func (m AddContentPublication) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE alert;
		DROP TABLE content_read;
		ALTER TABLE content DROP CONSTRAINT content_last_note_fkey;
		DROP TABLE content_reaction;
		ALTER TABLE content DROP COLUMN public_version_id;
		DROP TABLE published_content;
		DROP TABLE content_author;
		DROP TABLE content;
		DROP TABLE licence;
		DROP TABLE edu_user;
		`,
	)
	return err
}
