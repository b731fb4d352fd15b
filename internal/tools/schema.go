// ABOUTME: Cached introspection of the pipeline tables for tool authors
// ABOUTME: Explicit value+expiry pair; refreshed on demand when stale

package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

var schemaTables = []string{"opportunities", "opportunity_notes"}

// SchemaCache holds a snapshot of table metadata with an expiry.
// Concurrent refreshes are tolerated; the last writer wins.
type SchemaCache struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	columns map[string][]store.Column
	expiry  time.Time
}

func NewSchemaCache(st store.Store, ttl time.Duration) *SchemaCache {
	return &SchemaCache{
		store:  st,
		ttl:    ttl,
		logger: slog.Default().With("component", "schema"),
	}
}

// Columns returns the cached snapshot, refreshing it when expired.
func (c *SchemaCache) Columns(ctx context.Context) (map[string][]store.Column, error) {
	c.mu.Lock()
	if c.columns != nil && time.Now().Before(c.expiry) {
		cached := c.columns
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	fresh := make(map[string][]store.Column, len(schemaTables))
	for _, table := range schemaTables {
		cols, err := c.store.TableColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		fresh[table] = cols
	}

	c.mu.Lock()
	c.columns = fresh
	c.expiry = time.Now().Add(c.ttl)
	c.mu.Unlock()

	c.logger.Debug("schema cache refreshed", "tables", len(fresh))
	return fresh, nil
}

// HandleSchema serves the snapshot as JSON.
func (c *SchemaCache) HandleSchema(w http.ResponseWriter, r *http.Request) {
	columns, err := c.Columns(r.Context())
	if err != nil {
		c.logger.Error("schema introspection failed", "error", err)
		http.Error(w, "failed to introspect schema", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"tables": columns})
}
