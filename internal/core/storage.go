package core

import (
	"fmt"
	"os"

	"journeycore/internal/infra/persistence/memory"
	"journeycore/internal/infra/persistence/postgres"
	"journeycore/internal/infra/persistence/redis"
	"journeycore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // Redis snapshot store
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	JOURNEYCORE_STORAGE_DRIVER: memory|sqlite|postgres|redis (default sqlite)
//	JOURNEYCORE_SQLITE_PATH: path to sqlite file (default ./journeycore.db)
//	JOURNEYCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	JOURNEYCORE_REDIS_URL: redis URL when driver=redis
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("JOURNEYCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("JOURNEYCORE_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("JOURNEYCORE_POSTGRES_DSN"), engine)
	case StorageRedis:
		return redis.NewStore(os.Getenv("JOURNEYCORE_REDIS_URL"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
