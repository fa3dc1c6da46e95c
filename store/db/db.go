// Package db selects and opens the store.Driver backing a deployment,
// following the teacher's driver-dispatch convention of a single
// NewDBDriver switch over profile.Driver.
package db

import (
	"context"
	"fmt"

	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/store"
	"github.com/hrygo/taskgraph/store/db/postgres"
	"github.com/hrygo/taskgraph/store/db/sqlite"
)

// NewDBDriver opens the store.Driver named by p.Driver ("postgres" or
// "sqlite"); p.Validate is expected to have already rejected any other
// value.
func NewDBDriver(ctx context.Context, p *profile.Profile) (store.Driver, error) {
	switch p.Driver {
	case "postgres":
		return postgres.NewDB(ctx, p)
	case "sqlite":
		return sqlite.NewDB(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported driver %q: must be postgres or sqlite", p.Driver)
	}
}
