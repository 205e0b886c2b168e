package handlers

import (
	"github.com/zfogg/pulsefeed/backend/internal/trends"
)

// Handlers bundles the trend engine services the HTTP layer exposes.
type Handlers struct {
	store *trends.Store
	job   *trends.Job
	query *trends.Query
}

// NewHandlers creates the handler set.
func NewHandlers(store *trends.Store, job *trends.Job, query *trends.Query) *Handlers {
	return &Handlers{
		store: store,
		job:   job,
		query: query,
	}
}
