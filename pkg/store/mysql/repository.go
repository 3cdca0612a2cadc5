package mysql

import (
	"fmt"

	"mteval/pkg/config"
	"mteval/pkg/interfaces"
)

var _ interfaces.Store = (*Repository)(nil)

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	*WorkerRepository
	*JobRepository
	*CatalogRepository
}

// NewRepository connects to MySQL and builds every sub-repository
func NewRepository(cfg config.MySQLConfig) (*Repository, error) {
	ds, err := NewDatastore(BuildDSN(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := ds.Migrate(); err != nil {
			_ = ds.Close()
			return nil, fmt.Errorf("mysql: %w", err)
		}
	}
	return newRepository(ds), nil
}

func newRepository(ds *Datastore) *Repository {
	return &Repository{
		ds:                ds,
		WorkerRepository:  NewWorkerRepository(ds),
		JobRepository:     NewJobRepository(ds),
		CatalogRepository: NewCatalogRepository(ds),
	}
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
