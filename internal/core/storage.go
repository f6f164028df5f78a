package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"workpal/internal/blob"
	"workpal/internal/infra/codec/xlsx"
	"workpal/internal/infra/persistence/memory"
	"workpal/internal/infra/persistence/postgres"
	"workpal/internal/infra/persistence/sqlite"
	tablememory "workpal/internal/infra/tables/memory"
	"workpal/internal/infra/tables/workbook"
	"workpal/pkg/domain"
)

// StorageDriver identifies a rule repository implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// TableDriver identifies a table store implementation.
type TableDriver string

const (
	TablesMemory   TableDriver = "memory"   // process memory, lost on restart
	TablesWorkbook TableDriver = "workbook" // one .xlsx per department in the blob store
)

// StorageOptions selects the rule repository and table store backends.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	Tables      TableDriver
	Blob        blob.Options
}

// StorageOptionsFromEnv reads storage options from the environment.
//
//	WORKPAL_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	WORKPAL_SQLITE_PATH: path to sqlite file (default ./workpal.db)
//	WORKPAL_POSTGRES_DSN: postgres DSN when driver=postgres
//	WORKPAL_TABLE_DRIVER: memory|workbook (default workbook)
//	WORKPAL_BLOB_*: see blob.OptionsFromEnv
func StorageOptionsFromEnv() StorageOptions {
	return StorageOptions{
		Driver:      StorageDriver(strings.ToLower(os.Getenv("WORKPAL_STORAGE_DRIVER"))),
		SQLitePath:  os.Getenv("WORKPAL_SQLITE_PATH"),
		PostgresDSN: os.Getenv("WORKPAL_POSTGRES_DSN"),
		Tables:      TableDriver(strings.ToLower(os.Getenv("WORKPAL_TABLE_DRIVER"))),
		Blob:        blob.OptionsFromEnv(),
	}
}

// OpenRuleRepository opens the configured rule repository. Defaults to sqlite.
func OpenRuleRepository(ctx context.Context, opts StorageOptions) (domain.RuleRepository, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenTableStore opens the configured table store. Defaults to workbooks on the
// configured blob store.
func OpenTableStore(ctx context.Context, opts StorageOptions) (domain.TableStore, error) {
	driver := opts.Tables
	if driver == "" {
		driver = TablesWorkbook
	}
	switch driver {
	case TablesMemory:
		return tablememory.NewStore(), nil
	case TablesWorkbook:
		blobs, err := blob.Open(ctx, opts.Blob)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return workbook.New(blobs, xlsx.New()), nil
	default:
		return nil, fmt.Errorf("unknown table driver %s", driver)
	}
}
