/*
This package contains lowish-level APIs for making database queries to the Postgres database that tracks contents and their publications. It streamlines the process of mapping query results to Go types, while allowing you to write arbitrary SQL queries.

The primary functions are Query and QueryIterator. See the package and function examples for detailed usage.

# Query syntax

This package allows a few small extensions to SQL syntax to streamline the interaction between Go and Postgres.

Arguments can be provided using placeholders like $1, $2, etc. All arguments will be safely escaped and mapped from their Go type to the correct Postgres type. (This is a direct proxy to pgx.)

	contentIDs, err := db.QueryScalar[int](ctx, conn,
		`
		SELECT id
		FROM content
		WHERE
			slug = ANY($1)
			AND type = $2
		`,
		[]string{"zest-de-citron", "les-bases-de-go"},
		models.ContentTypeTutorial,
	)

(This also demonstrates a useful tip: if you want to use a slice in your query, use Postgres arrays instead of IN.)

When querying individual fields, you can simply select the field like so:

	ids, err := db.QueryScalar[int](ctx, conn, `SELECT id FROM content`)

To query multiple columns at once, you may use a struct type with `db:"column_name"` tags, and the special $columns placeholder:

	type Content struct {
		ID           int       `db:"id"`
		Slug         string    `db:"slug"`
		CreationDate time.Time `db:"creation_date"`
	}
	contents, err := db.Query[Content](ctx, conn, `SELECT $columns FROM content`)
	// Resulting query:
	// SELECT id, slug, creation_date FROM content

Sometimes a table name prefix is required on each column to disambiguate between column names, especially when performing a JOIN. In those situations, you can include the prefix in the $columns placeholder like $columns{prefix}:

	unpublished, err := db.Query[Content](ctx, conn, `
		SELECT $columns{c}
		FROM
			content AS c
			LEFT JOIN published_content AS p ON p.content_id = c.id
		WHERE
			p.id IS NULL
	`)
	// Resulting query:
	// SELECT c.id, c.slug, c.creation_date FROM ...

Struct-typed fields with a db tag are flattened, using the tag as the table
qualifier. This is the usual way to load two joined rows at once:

	type Row struct {
		Content   models.Content          `db:"content"`
		Published models.PublishedContent `db:"published"`
	}
	rows, err := db.Query[Row](ctx, conn, `
		SELECT $columns
		FROM
			content
			JOIN published_content AS published ON published.content_id = content.id
	`)

# Query names

A comment line of the form "---- Name" names a query in logs and perf output.
*/
package db
