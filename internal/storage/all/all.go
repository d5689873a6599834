// Package all registers every storage backend with the factory. Import
// it for side effects from binaries that select the backend via config.
package all

import (
	_ "sparkify/internal/storage/mssql"
	_ "sparkify/internal/storage/postgres"
	_ "sparkify/internal/storage/sqlite"
)
