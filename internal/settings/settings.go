// Package settings implements the distinguished `_settings` singleton
// entity, cached in memory with an admin-guarded read/update surface.
package settings

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/entity"
)

// Values is the typed view over the `_settings` singleton row.
type Values struct {
	AppName                   string `json:"appName"`
	BaseURL                   string `json:"baseUrl"`
	MaintenanceMode           bool   `json:"maintenanceMode"`
	MaxFileSize               int    `json:"maxFileSize"`
	AllowRegistration         bool   `json:"allowRegistration"`
	EmailVerificationRequired bool   `json:"emailVerificationRequired"`
	SessionTimeout            int    `json:"sessionTimeout"`
	AdminSessionTimeout       int    `json:"adminSessionTimeout"`
	Mode                      string `json:"mode"`
}

// Defaults returns the baked-in settings defaults.
func Defaults() Values {
	return Values{
		AppName:                   "ACME Project",
		BaseURL:                   "https://acme.example.com",
		MaintenanceMode:           false,
		MaxFileSize:               10,
		AllowRegistration:         true,
		EmailVerificationRequired: false,
		SessionTimeout:            86400,
		AdminSessionTimeout:       3600,
		Mode:                      "PROD",
	}
}

// Cache is the in-memory singleton cache over the `_settings` entity. The
// `_settings` table only ever holds one row; RowID tracks its generated id
// so Update knows which row to write.
type Cache struct {
	mu     sync.RWMutex
	values Values
	RowID  string
	ent    *entity.Entity
}

// NewCache builds a Cache backed by ent, seeding the `_settings` row with
// defaults on first boot if no row exists yet.
func NewCache(ctx context.Context, ent *entity.Entity) (*Cache, error) {
	c := &Cache{ent: ent}

	records, _, err := ent.List(ctx, entity.ListOptions{PageIndex: 1, PerPage: 1})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		asMap, err := toMap(Defaults())
		if err != nil {
			return nil, err
		}

		rec, err := ent.Create(ctx, map[string]any{"value": asMap})
		if err != nil {
			return nil, err
		}

		c.RowID, _ = rec["id"].(string)
		c.values = Defaults()

		return c, nil
	}

	rec := records[0]
	c.RowID, _ = rec["id"].(string)
	c.values = valuesFromRecord(rec)

	return c, nil
}

func toMap(v Values) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out map[string]any

	return out, json.Unmarshal(b, &out)
}

func valuesFromRecord(rec entity.Record) Values {
	defaults := Defaults()

	raw, ok := rec["value"]
	if !ok {
		return defaults
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return defaults
	}

	var v Values
	if err := json.Unmarshal(b, &v); err != nil {
		return defaults
	}

	return v
}

// Get returns the current cached settings.
func (c *Cache) Get() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.values
}

// Update persists new values and refreshes the cache. Callers are
// responsible for enforcing the admin-only guard at the router layer.
func (c *Cache) Update(ctx context.Context, v Values) error {
	asMap, err := toMap(v)
	if err != nil {
		return apperr.NewInternal(err)
	}

	if _, err := c.ent.Update(ctx, c.RowID, map[string]any{"value": asMap}); err != nil {
		return err
	}

	c.mu.Lock()
	c.values = v
	c.mu.Unlock()

	return nil
}
