package storage

import (
	"github.com/flowcraft/orchestrator/pkg/storage"
)

// InitStore opens a database-backed Store. provider currently only
// recognizes "postgres" (an empty provider is treated the same); any other
// value is an error — callers fall back
// to storage.NewFileStore themselves when no database is configured.
func InitStore(provider, connStr string) (storage.Store, error) {
	switch provider {
	case "postgres", "":
		return NewPostgresStore(connStr)
	default:
		return nil, &unsupportedProviderError{provider}
	}
}

type unsupportedProviderError struct {
	provider string
}

func (e *unsupportedProviderError) Error() string {
	return "unsupported database provider: " + e.provider
}
