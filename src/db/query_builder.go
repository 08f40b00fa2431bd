package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Assembles a query out of chunks whose placeholders are numbered as they are
// added. Used where a filter is only known at runtime:
//
//	var qb db.QueryBuilder
//	qb.Add(`SELECT $columns FROM content WHERE TRUE`)
//	if len(ids) > 0 {
//		qb.Add(`AND id = ANY($?)`, ids)
//	}
type QueryBuilder struct {
	sql  strings.Builder
	args []any
}

/*
Adds the given SQL and arguments to the query. Any occurrences
of `$?` will be replaced with the correct argument number.

foo $? bar $? baz $?
foo ARG1 bar ARG2 baz $?
foo ARG1 bar ARG2 baz ARG3
*/
func (qb *QueryBuilder) Add(sql string, args ...any) {
	chunks := strings.Split(sql, "$?")
	if len(chunks)-1 != len(args) {
		panic(fmt.Errorf("cannot add chunk to query; expected %d arguments but got %d", len(chunks)-1, len(args)))
	}

	for i, chunk := range chunks {
		qb.sql.WriteString(chunk)
		if i < len(args) {
			qb.args = append(qb.args, args[i])
			qb.sql.WriteString("$")
			qb.sql.WriteString(strconv.Itoa(len(qb.args)))
		}
	}
	qb.sql.WriteString("\n")
}

func (qb *QueryBuilder) String() string {
	return qb.sql.String()
}

func (qb *QueryBuilder) Args() []any {
	return qb.args
}
