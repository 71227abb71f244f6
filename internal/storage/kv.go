package storage

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/CosmWasm/hostapi/types"
)

// OpenDB opens the key/value store named name for the configured backend.
func OpenDB(opts types.StorageOptions, name string) (dbm.DB, error) {
	switch opts.Backend {
	case types.BackendMemDB, "":
		return dbm.NewMemDB(), nil
	case types.BackendGoLevelDB:
		db, err := dbm.NewGoLevelDB(name, opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("%w: opening goleveldb %s in %s: %w", types.ErrBackendInit, name, opts.Dir, err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", types.ErrBackendInit, opts.Backend)
}
