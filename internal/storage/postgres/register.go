package postgres

import "priceimporter/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", NewRepo)
}
