package postgres

import "sparkify/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
