// Package all registers every storage backend with the factory.
// The config selects which dialect to use, but the binary carries all of them.
package all

import (
	_ "priceimporter/internal/storage/mssql"
	_ "priceimporter/internal/storage/postgres"
	_ "priceimporter/internal/storage/sqlite"
)
