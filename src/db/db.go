package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/oops"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

/*
Performs a SQL query and returns a slice of all the result rows. The query is just plain SQL, but make sure to read the package documentation for details. You must explicitly provide the type argument - this is how it knows what Go type to map the results to, and it cannot be inferred.

Any SQL query may be performed, including INSERT and UPDATE - as long as it returns a result set, you can use this. If the query does not return a result set, or you simply do not care about the result set, call Exec directly on your pgx connection.

This function always returns pointers to the values. This is convenient for structs, but for other types, you may wish to use QueryScalar.
*/
func Query[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]*T, error) {
	it, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	return it.ToSlice()
}

/*
Identical to Query, but returns only the first result row. If there are no
rows in the result set, returns NotFound.
*/
func QueryOne[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*T, error) {
	rows, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, hasRow, err := rows.Next()
	if err != nil {
		return nil, err
	}
	if !hasRow {
		if err := rows.Err(); err != nil {
			return nil, oops.New(err, "error while reading db result")
		}
		return nil, NotFound
	}

	return result, nil
}

/*
Identical to Query, but returns concrete values instead of pointers. More convenient
for primitive types.
*/
func QueryScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]T, error) {
	ptrs, err := Query[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(ptrs))
	for _, p := range ptrs {
		result = append(result, *p)
	}
	return result, nil
}

/*
Identical to QueryScalar, but returns only the first result value. If there are
no rows in the result set, returns NotFound.
*/
func QueryOneScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (T, error) {
	result, err := QueryOne[T](ctx, conn, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return *result, nil
}

/*
Identical to Query, but returns the Iterator instead of automatically converting the results to a slice. The iterator must be closed after use.
*/
func QueryIterator[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*Iterator[T], error) {
	var destExample T
	destType := reflect.TypeOf(destExample)

	compiled, err := compileQuery(query, destType)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, compiled.query, args...)
	if err != nil {
		return nil, err
	}

	it := &Iterator[T]{
		fieldPaths:       compiled.fieldPaths,
		rows:             rows,
		destType:         compiled.destType,
		destTypeIsScalar: typeIsQueryable(compiled.destType),
		closed:           make(chan struct{}, 1),
	}

	// Iterators must not hold a connection past the end of the operation that
	// opened them.
	go func() {
		done := ctx.Done()
		if done == nil {
			return
		}
		select {
		case <-done:
			it.Close()
		case <-it.closed:
		}
	}()

	return it, nil
}

type compiledQuery struct {
	query      string
	destType   reflect.Type
	fieldPaths []fieldPath
}

var reColumnsPlaceholder = regexp.MustCompile(`\$columns({(.*?)})?`)

func compileQuery(query string, destType reflect.Type) (compiledQuery, error) {
	columnsMatch := reColumnsPlaceholder.FindStringSubmatch(query)
	if columnsMatch == nil {
		return compiledQuery{
			query:    query,
			destType: destType,
		}, nil
	}

	if destType.Kind() != reflect.Struct {
		return compiledQuery{}, oops.New(nil, "$columns can only be used when querying into a struct, not %v", destType)
	}

	columnNames, fieldPaths, err := getColumnNamesAndPaths(destType, nil, columnsMatch[2])
	if err != nil {
		return compiledQuery{}, err
	}

	return compiledQuery{
		query:      reColumnsPlaceholder.ReplaceAllString(query, strings.Join(columnNames, ", ")),
		destType:   destType,
		fieldPaths: fieldPaths,
	}, nil
}

/*
Walks the `db` tags of a struct. A tagged field of a queryable type becomes one
column; a tagged struct field contributes all its own columns, qualified by the
struct field's tag:

	type Row struct {
		Content models.Content `db:"c"`
		Sha     *string        `db:"p.sha_public"`
	}
	// c.id, c.slug, ..., p.sha_public

Structs nested deeper than one level join their tags with underscores to form
the qualifier, so that the query can alias tables to match.
*/
func getColumnNamesAndPaths(destType reflect.Type, pathSoFar []int, prefix string) (names []string, paths []fieldPath, err error) {
	if destType.Kind() == reflect.Ptr {
		destType = destType.Elem()
	}
	if destType.Kind() != reflect.Struct {
		return nil, nil, oops.New(nil, "can only get column names and paths from a struct, got type '%v' (at prefix '%v')", destType, prefix)
	}

	for i := 0; i < destType.NumField(); i++ {
		field := destType.Field(i)
		columnName := field.Tag.Get("db")
		if columnName == "" {
			continue
		}

		path := make(fieldPath, len(pathSoFar), len(pathSoFar)+1)
		copy(path, pathSoFar)
		path = append(path, i)

		fieldType := field.Type
		if fieldType.Kind() == reflect.Ptr {
			fieldType = fieldType.Elem()
		}

		if typeIsQueryable(fieldType) {
			name := columnName
			if prefix != "" {
				name = prefix + "." + columnName
			}
			names = append(names, name)
			paths = append(paths, path)
		} else if fieldType.Kind() == reflect.Struct {
			subPrefix := columnName
			if prefix != "" {
				subPrefix = prefix + "_" + columnName
			}
			subNames, subPaths, err := getColumnNamesAndPaths(fieldType, path, subPrefix)
			if err != nil {
				return nil, nil, err
			}
			names = append(names, subNames...)
			paths = append(paths, subPaths...)
		} else {
			return nil, nil, oops.New(nil, "field '%s' in type %s has invalid type '%s'", field.Name, destType, field.Type)
		}
	}

	return names, paths, nil
}

/*
Values of these kinds are ok to query even if they are not a type pgx knows by
name. This is common for custom types like:

	type ContentType string
*/
var queryableKinds = []reflect.Kind{
	reflect.Int,
	reflect.Int16,
	reflect.Int32,
	reflect.Int64,
	reflect.Float64,
	reflect.String,
	reflect.Bool,
}

var queryableStructs = []reflect.Type{
	reflect.TypeOf(time.Time{}),
	reflect.TypeOf(uuid.UUID{}),
}

/*
Checks if we are able to handle a particular type in a database query. This applies only to
primitive types and not structs, since the database only returns individual primitive types
and it is our job to stitch them back together into structs later.
*/
func typeIsQueryable(t reflect.Type) bool {
	for _, qt := range queryableStructs {
		if t == qt {
			return true
		}
	}

	k := t.Kind()
	for _, qk := range queryableKinds {
		if k == qk {
			return true
		}
	}
	return false
}

// A path to a particular field in query's destination type. Each index in the slice
// corresponds to a field index for use with Field on a reflect.Type or reflect.Value.
type fieldPath []int

type Iterator[T any] struct {
	fieldPaths       []fieldPath
	rows             pgx.Rows
	destType         reflect.Type
	destTypeIsScalar bool
	closed           chan struct{}
}

// Returns the next row. When there are no rows left, the iterator is closed
// and the second return value is false; check Err afterwards.
func (it *Iterator[T]) Next() (*T, bool, error) {
	hasNext := it.rows.Next()
	if !hasNext {
		it.Close()
		return nil, false, nil
	}

	result := reflect.New(it.destType)

	vals, err := it.rows.Values()
	if err != nil {
		return nil, false, oops.New(err, "failed to read row values")
	}

	if it.destTypeIsScalar {
		if len(vals) != 1 {
			return nil, false, oops.New(nil, "tried to query a scalar value, but got %v values in the row", len(vals))
		}
		if vals[0] != nil {
			if err := setValueFromDB(result.Elem(), reflect.ValueOf(vals[0])); err != nil {
				return nil, false, err
			}
		}
		return result.Interface().(*T), true, nil
	}

	if len(vals) != len(it.fieldPaths) {
		return nil, false, oops.New(nil, "query returned %d columns but %v has %d db fields", len(vals), it.destType, len(it.fieldPaths))
	}

	for i, val := range vals {
		if val == nil {
			continue
		}

		field, structField := followPathThroughStructs(result, it.fieldPaths[i])
		if field.Kind() == reflect.Ptr {
			field.Set(reflect.New(field.Type().Elem()))
			field = field.Elem()
		}

		valReflected := reflect.ValueOf(val)
		if valReflected.Kind() == reflect.Ptr {
			valReflected = valReflected.Elem()
		}

		if err := setValueFromDB(field, valReflected); err != nil {
			logging.Error().
				Int("index", i).
				Str("field name", structField.Name).
				Stringer("field type", structField.Type).
				Stringer("value type", valReflected.Type()).
				Msg("failed to set field from db")
			return nil, false, oops.New(err, "failed to set field '%s'", structField.Name)
		}
	}

	return result.Interface().(*T), true, nil
}

func setValueFromDB(dest reflect.Value, value reflect.Value) error {
	switch {
	case value.Type().AssignableTo(dest.Type()):
		dest.Set(value)
	case value.Type().ConvertibleTo(dest.Type()) && value.Kind() != reflect.String && isNumericOrMatching(dest.Kind(), value.Kind()):
		dest.Set(value.Convert(dest.Type()))
	case dest.Kind() == reflect.String && value.Kind() == reflect.String:
		dest.SetString(value.String())
	default:
		return fmt.Errorf("cannot assign %v to %v", value.Type(), dest.Type())
	}
	return nil
}

// Guards against reflect's int-to-string conversion, which produces runes.
func isNumericOrMatching(dest, value reflect.Kind) bool {
	if dest == value {
		return true
	}
	switch dest {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Array:
		return value == reflect.Array
	}
	return false
}

func (it *Iterator[T]) Err() error {
	return it.rows.Err()
}

func (it *Iterator[T]) Close() {
	it.rows.Close()
	select {
	case it.closed <- struct{}{}:
	default:
	}
}

/*
Pulls all the remaining values into a slice, and closes the iterator.
*/
func (it *Iterator[T]) ToSlice() ([]*T, error) {
	defer it.Close()
	var result []*T
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := it.rows.Err(); err != nil {
				return nil, oops.New(err, "error while iterating through db results")
			}
			break
		}
		result = append(result, row)
	}
	return result, nil
}

func followPathThroughStructs(structPtrVal reflect.Value, path []int) (reflect.Value, reflect.StructField) {
	if len(path) < 1 {
		panic(oops.New(nil, "can't follow an empty path"))
	}

	if structPtrVal.Kind() != reflect.Ptr || structPtrVal.Elem().Kind() != reflect.Struct {
		panic(oops.New(nil, "structPtrVal must be a pointer to a struct; got value of type %s", structPtrVal.Type()))
	}

	var field reflect.StructField
	val := structPtrVal
	for _, i := range path {
		if val.Kind() == reflect.Ptr && val.Type().Elem().Kind() == reflect.Struct {
			if val.IsNil() {
				val.Set(reflect.New(val.Type().Elem()))
			}
			val = val.Elem()
		}
		field = val.Type().Field(i)
		val = val.Field(i)
	}
	return val, field
}
