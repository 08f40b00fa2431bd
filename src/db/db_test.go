package db

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	type CustomInt int
	type S struct {
		I   int        `db:"I"`
		PI  *int       `db:"PI"`
		CI  CustomInt  `db:"CI"`
		PCI *CustomInt `db:"PCI"`
		B   bool       `db:"B"`
		PB  *bool      `db:"PB"`

		NoTag int
	}
	type Nested struct {
		S  S  `db:"S"`
		PS *S `db:"PS"`

		NoTag S
	}

	names, paths, err := getColumnNamesAndPaths(reflect.TypeOf(Nested{}), nil, "")
	if assert.Nil(t, err) {
		assert.Equal(t, []string{
			"S.I", "S.PI",
			"S.CI", "S.PCI",
			"S.B", "S.PB",
			"PS.I", "PS.PI",
			"PS.CI", "PS.PCI",
			"PS.B", "PS.PB",
		}, names)
		assert.Equal(t, []fieldPath{
			{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}, {0, 5},
			{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5},
		}, paths)
	}

	testStruct := Nested{}
	for i, path := range paths {
		val, field := followPathThroughStructs(reflect.ValueOf(&testStruct), path)
		assert.True(t, val.IsValid())
		assert.True(t, strings.Contains(names[i], field.Name))
	}
}

func TestCompileQuery(t *testing.T) {
	type Row struct {
		ID   int    `db:"id"`
		Slug string `db:"slug"`
	}

	t.Run("columns", func(t *testing.T) {
		compiled, err := compileQuery(`SELECT $columns FROM content`, reflect.TypeOf(Row{}))
		require.Nil(t, err)
		assert.Equal(t, `SELECT id, slug FROM content`, compiled.query)
	})
	t.Run("prefixed columns", func(t *testing.T) {
		compiled, err := compileQuery(`SELECT $columns{c} FROM content AS c`, reflect.TypeOf(Row{}))
		require.Nil(t, err)
		assert.Equal(t, `SELECT c.id, c.slug FROM content AS c`, compiled.query)
	})
	t.Run("columns into a scalar", func(t *testing.T) {
		_, err := compileQuery(`SELECT $columns FROM content`, reflect.TypeOf(0))
		assert.NotNil(t, err)
	})
	t.Run("no placeholder", func(t *testing.T) {
		compiled, err := compileQuery(`SELECT id FROM content`, reflect.TypeOf(0))
		require.Nil(t, err)
		assert.Equal(t, `SELECT id FROM content`, compiled.query)
	})
}

func TestQueryBuilder(t *testing.T) {
	var qb QueryBuilder
	qb.Add(`SELECT id FROM content WHERE type = $?`, "TUTORIAL")
	qb.Add(`AND id = ANY($?) AND slug <> $?`, []int{1, 2}, "x")

	assert.Equal(t, "SELECT id FROM content WHERE type = $1\nAND id = ANY($2) AND slug <> $3\n", qb.String())
	assert.Equal(t, []any{"TUTORIAL", []int{1, 2}, "x"}, qb.Args())

	assert.Panics(t, func() {
		qb.Add(`AND slug = $?`)
	})
}

type contentType string

type testContent struct {
	ID        int         `db:"id"`
	Slug      string      `db:"slug"`
	Type      contentType `db:"type"`
	ShaPublic *string     `db:"sha_public"`
	Created   time.Time   `db:"creation_date"`
	Token     uuid.UUID   `db:"token"`
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	token := uuid.New()

	t.Run("structs", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		sha := "f00d"
		mock.ExpectQuery(`SELECT id, slug, type, sha_public, creation_date, token FROM content`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "type", "sha_public", "creation_date", "token"}).
				AddRow(int32(1), "zest", "TUTORIAL", &sha, created, [16]byte(token)).
				AddRow(int32(2), "citron", "ARTICLE", nil, created, [16]byte(token)))

		contents, err := Query[testContent](ctx, mock, `SELECT $columns FROM content`)
		require.NoError(t, err)
		require.Len(t, contents, 2)

		assert.Equal(t, 1, contents[0].ID)
		assert.Equal(t, "zest", contents[0].Slug)
		assert.Equal(t, contentType("TUTORIAL"), contents[0].Type)
		if assert.NotNil(t, contents[0].ShaPublic) {
			assert.Equal(t, "f00d", *contents[0].ShaPublic)
		}
		assert.Equal(t, created, contents[0].Created)
		assert.Equal(t, token, contents[0].Token)
		assert.Nil(t, contents[1].ShaPublic)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("scalars", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id FROM content`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)).AddRow(int64(9)))

		ids, err := QueryScalar[int](ctx, mock, `SELECT id FROM content`)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 9}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id FROM content WHERE slug`).
			WithArgs("nope").
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		_, err = QueryOneScalar[int](ctx, mock, `SELECT id FROM content WHERE slug = $1`, "nope")
		assert.ErrorIs(t, err, NotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetQueryName(t *testing.T) {
	name, ok := GetQueryName("\n---- Load published content\nSELECT 1")
	assert.True(t, ok)
	assert.Equal(t, "Load published content", name)

	_, ok = GetQueryName("SELECT 1")
	assert.False(t, ok)
}
