// Package vault holds the batch model and its lifecycle: staging items per owner,
// committing them under a short code, retrieving, deleting and grouping them
// into delivery clusters.
//
// Persistence is behind Store; internal/storage provides the drivers.
package vault
