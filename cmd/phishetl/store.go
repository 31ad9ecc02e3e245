package main

import (
	"context"
	"fmt"

	phishetl "github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/internal/config"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/mongostore"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/pgstore"
	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/store/sqlitestore"
)

// provisionedStore is what the command needs from every driver.
type provisionedStore interface {
	phishetl.Store
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// mongoStore adapts the context-taking Close of mongostore.
type mongoStore struct {
	*mongostore.Store
}

func (s mongoStore) Close() error { return s.Store.Close(context.Background()) }

func openStore(ctx context.Context, c config.StoreConfig) (provisionedStore, error) {
	switch c.Driver {
	case config.DriverMongo:
		s, err := mongostore.Connect(ctx, c.URI, c.Database, c.Collection)
		if err != nil {
			return nil, err
		}
		return mongoStore{s}, nil
	case config.DriverPostgres:
		s, err := pgstore.Open(ctx, c.URI, c.Table, 0)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlitestore.Open(ctx, c.URI, c.Table)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Driver)
}
