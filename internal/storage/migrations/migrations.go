// Package migrations holds the schema history of the records database as
// goose Go migrations.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"slices"

	"github.com/pressly/goose/v3"
)

var registered []*goose.Migration

func register(version int64, up, down func(context.Context, *sql.Tx) error) {
	registered = append(registered, goose.NewGoMigration(
		version,
		&goose.GoFunc{RunTx: up},
		&goose.GoFunc{RunTx: down},
	))
}

// All returns every migration in version order.
func All() []*goose.Migration {
	all := slices.Clone(registered)
	slices.SortFunc(all, func(a, b *goose.Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return all
}

// Latest returns the highest migration version.
func Latest() int64 {
	var v int64
	for _, m := range registered {
		v = max(v, m.Version)
	}
	return v
}
