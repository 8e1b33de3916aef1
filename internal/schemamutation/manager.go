// Package schemamutation implements runtime entity add/update/remove and
// keeps the in-memory entityMap, the route registry, and the `_tables` row
// synchronized. A single sync.RWMutex serializes mutations against the
// same entityMap (see DESIGN.md for the rationale).
package schemamutation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/entity"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/jwtauth"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/router"
	"github.com/allankoechke/mantis/internal/schema"
)

// Manager owns the entityMap and synchronizes it with the DB, the route
// registry, and the schema cache on every mutation.
type Manager struct {
	mu sync.RWMutex

	entityMap map[string]*entity.Entity
	tablesEnt *entity.Entity // the `_tables` system entity, used to persist schema rows

	pool   *dbpool.Pool
	store  *files.Store
	router *router.Router
	deps   *router.Deps
	issuer *jwtauth.Issuer
	log    mlog.Logger
}

// New builds a Manager. Call LoadSystem before any other method — it
// populates the `_tables` handle every other mutation depends on.
func New(pool *dbpool.Pool, store *files.Store, rtr *router.Router, deps *router.Deps, issuer *jwtauth.Issuer, log mlog.Logger) *Manager {
	return &Manager{
		entityMap: make(map[string]*entity.Entity),
		pool:      pool,
		store:     store,
		router:    rtr,
		deps:      deps,
		issuer:    issuer,
		log:       log,
	}
}

// Get returns the Entity handle for name. entityMap is always consistent
// with _tables once a schema mutation commits.
func (m *Manager) Get(name string) (*entity.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entityMap[name]
	return e, ok
}

// put registers ent in the entityMap under exclusive lock. Callers must
// already hold m.mu.
func (m *Manager) put(s schema.Schema, ent *entity.Entity) {
	m.entityMap[s.Name] = ent
}

// LoadSystem materializes the three system entities directly, without
// going through `_tables` (it's the table that stores everyone else), and
// wires their routes. `_admins` gets the normal entity CRUD + auth
// surface; `_tables` gets the schema-mutating surface in tables.go;
// `_settings` is left unrouted here — adminbootstrap wires its
// singleton, cache-backed GET/PATCH directly.
func (m *Manager) LoadSystem() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tablesSchema schema.Schema

	for _, s := range dbpool.SystemSchemas() {
		ent := entity.New(s, m.pool, m.store, m.log)
		m.put(s, ent)

		switch s.Name {
		case "_tables":
			m.tablesEnt = ent
			tablesSchema = s
		case "_admins":
			m.registerRoutes(s, ent)
		}
	}

	m.RegisterTableRoutes(tablesSchema)
}

// LoadUserEntities scans `_tables` and materializes an Entity + route set
// for every row.
func (m *Manager) LoadUserEntities(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, _, err := m.tablesEnt.List(ctx, entity.ListOptions{PageIndex: 1, PerPage: 10000})
	if err != nil {
		return err
	}

	for _, rec := range records {
		s, err := schemaFromRecord(rec)
		if err != nil {
			m.log.Warnf("skipping malformed _tables row: %v", err)
			continue
		}

		ent := entity.New(s, m.pool, m.store, m.log)
		m.put(s, ent)
		m.registerRoutes(s, ent)
	}

	return nil
}

func schemaFromRecord(rec entity.Record) (schema.Schema, error) {
	var s schema.Schema

	name, _ := rec["name"].(string)
	typ, _ := rec["type"].(string)

	raw, ok := rec["schema"]
	if !ok {
		return s, fmt.Errorf("row %v missing schema column", rec["id"])
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return s, err
	}

	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}

	s.Name = name
	s.Type = schema.EntityType(typ)

	if hasAPI, ok := rec["has_api"].(bool); ok {
		s.HasAPI = hasAPI
	}

	return s, nil
}

// routeTuples returns the (method, path) tuples that compose name's route
// set.
func routeTuples(name string, typ schema.EntityType) [][2]string {
	tuples := [][2]string{
		{"GET", "/api/v1/" + name},
		{"GET", "/api/v1/" + name + "/:id"},
	}

	if typ != schema.TypeView {
		tuples = append(tuples,
			[2]string{"POST", "/api/v1/" + name},
			[2]string{"PATCH", "/api/v1/" + name + "/:id"},
			[2]string{"DELETE", "/api/v1/" + name + "/:id"},
		)
	}

	if typ == schema.TypeAuth {
		tuples = append(tuples, [2]string{"POST", "/api/v1/" + name + "/auth-with-password"})
	}

	return tuples
}

// registerRoutes installs the full route set for s. Callers must already
// hold m.mu for writing.
func (m *Manager) registerRoutes(s schema.Schema, ent *entity.Entity) {
	m.router.Get("/api/v1/"+s.Name, handleList(ent), router.RuleMiddleware(m.deps, s.ListRule))
	m.router.Get("/api/v1/"+s.Name+"/:id", handleRead(ent), router.RuleMiddleware(m.deps, s.GetRule))

	if s.Type != schema.TypeView {
		m.router.Post("/api/v1/"+s.Name, handleCreate(ent, m.store), router.RuleMiddleware(m.deps, s.AddRule))
		m.router.Patch("/api/v1/"+s.Name+"/:id", handleUpdate(ent, m.store), router.RuleMiddleware(m.deps, s.UpdateRule))
		m.router.Delete("/api/v1/"+s.Name+"/:id", handleDelete(ent), router.RuleMiddleware(m.deps, s.DeleteRule))
	}

	if s.Type == schema.TypeAuth {
		m.router.Post("/api/v1/"+s.Name+"/auth-with-password", handleAuthWithPassword(ent, m.issuer))
	}
}

// withdrawRoutes removes every (method, path) tuple for name/typ.
func (m *Manager) withdrawRoutes(name string, typ schema.EntityType) {
	m.router.Registry.RemoveAll(routeTuples(name, typ))
}

// AddEntity creates the table, persists its `_tables` row, and registers
// its routes, in that order; a DDL failure leaves no trace in `_tables`
// or the registry.
func (m *Manager) AddEntity(ctx context.Context, s schema.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entityMap[s.Name]; exists {
		return apperr.NewInvalidArgument("entity %s already exists", s.Name)
	}

	sess, err := m.pool.Checkout(ctx)
	if err != nil {
		return apperr.NewInternal(err)
	}

	ddl := m.pool.Dialect.CreateTableDDL(s)
	_, execErr := sess.DB.ExecContext(ctx, ddl)
	m.pool.Return(sess)

	if execErr != nil {
		return apperr.NewInternal(execErr)
	}

	asMap, err := schemaToMap(s)
	if err != nil {
		return apperr.NewInternal(err)
	}

	if _, err := m.tablesEnt.Create(ctx, map[string]any{
		"name":    s.Name,
		"type":    string(s.Type),
		"schema":  asMap,
		"has_api": s.HasAPI,
	}); err != nil {
		return err
	}

	ent := entity.New(s, m.pool, m.store, m.log)
	m.put(s, ent)
	m.registerRoutes(s, ent)

	return nil
}

func schemaToMap(s schema.Schema) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	var out map[string]any

	return out, json.Unmarshal(b, &out)
}

// RemoveEntity drops name's table, its `_tables` row, and its routes.
// System entities may not be removed.
func (m *Manager) RemoveEntity(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if schema.IsSystem(name) {
		return apperr.NewInvalidArgument("%s is a system entity and cannot be removed", name)
	}

	ent, exists := m.entityMap[name]
	if !exists {
		return apperr.NewNotFound(name)
	}

	row, found, err := m.tablesEnt.QueryFromCols(ctx, name, []string{"name"})
	if err != nil {
		return err
	}

	sess, err := m.pool.Checkout(ctx)
	if err != nil {
		return apperr.NewInternal(err)
	}

	_, execErr := sess.DB.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name))
	m.pool.Return(sess)

	if execErr != nil {
		return apperr.NewInternal(execErr)
	}

	if found {
		id, _ := row["id"].(string)
		if err := m.tablesEnt.Remove(ctx, id); err != nil {
			return err
		}
	}

	m.withdrawRoutes(name, ent.Schema.Type)
	delete(m.entityMap, name)

	return nil
}

// RenameEntity renames oldName to newSchema.Name. The table is renamed,
// the id is recomputed, and the route set is withdrawn and re-registered.
// A registry write-lock (m.mu) is held for the whole swap so no concurrent
// request observes a partial route set.
func (m *Manager) RenameEntity(ctx context.Context, oldName string, newSchema schema.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if schema.IsSystem(oldName) {
		return apperr.NewInvalidArgument("%s is a system entity and cannot be renamed", oldName)
	}

	oldEnt, exists := m.entityMap[oldName]
	if !exists {
		return apperr.NewNotFound(oldName)
	}

	newSchema.ID = schema.DeriveID(newSchema.Name)

	sess, err := m.pool.Checkout(ctx)
	if err != nil {
		return apperr.NewInternal(err)
	}

	renameDDL := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldName, newSchema.Name)
	_, execErr := sess.DB.ExecContext(ctx, renameDDL)
	m.pool.Return(sess)

	if execErr != nil {
		return apperr.NewInternal(execErr)
	}

	row, found, err := m.tablesEnt.QueryFromCols(ctx, oldName, []string{"name"})
	if err != nil {
		return err
	}

	if found {
		asMap, err := schemaToMap(newSchema)
		if err != nil {
			return apperr.NewInternal(err)
		}

		id, _ := row["id"].(string)
		if _, err := m.tablesEnt.Update(ctx, id, map[string]any{
			"name":   newSchema.Name,
			"type":   string(newSchema.Type),
			"schema": asMap,
		}); err != nil {
			return err
		}
	}

	m.withdrawRoutes(oldName, oldEnt.Schema.Type)
	delete(m.entityMap, oldName)

	ent := entity.New(newSchema, m.pool, m.store, m.log)
	m.put(newSchema, ent)
	m.registerRoutes(newSchema, ent)

	return nil
}

// UpdateSchemaCache applies any column-level DDL a field-list edit requires
// (add/drop/type-change), then refreshes the cached Schema for name. Used
// for in-place PATCH /api/v1/_tables/:id edits that keep the same name,
// including rules-only edits whose field diff is empty.
func (m *Manager) UpdateSchemaCache(ctx context.Context, name string, newSchema schema.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldEnt, exists := m.entityMap[name]
	if !exists {
		return apperr.NewNotFound(name)
	}

	if err := m.applyFieldDiff(ctx, name, oldEnt.Schema.Fields, newSchema.Fields); err != nil {
		return err
	}

	row, found, err := m.tablesEnt.QueryFromCols(ctx, name, []string{"name"})
	if err != nil {
		return err
	}

	if found {
		asMap, err := schemaToMap(newSchema)
		if err != nil {
			return apperr.NewInternal(err)
		}

		id, _ := row["id"].(string)
		if _, err := m.tablesEnt.Update(ctx, id, map[string]any{"schema": asMap}); err != nil {
			return err
		}
	}

	ent := entity.New(newSchema, m.pool, m.store, m.log)
	m.put(newSchema, ent)

	m.withdrawRoutes(name, newSchema.Type)
	m.registerRoutes(newSchema, ent)

	return nil
}

// applyFieldDiff compares oldFields against newFields by name and issues
// the ADD COLUMN/DROP COLUMN/ALTER COLUMN statements needed to bring
// table's physical schema in line: fields new to newFields are added,
// fields missing from it are dropped, and fields present in both with a
// changed type are altered. A no-op diff issues no statements and no
// checkout.
func (m *Manager) applyFieldDiff(ctx context.Context, table string, oldFields, newFields []schema.Field) error {
	oldByName := make(map[string]schema.Field, len(oldFields))
	for _, f := range oldFields {
		oldByName[f.Name] = f
	}

	newByName := make(map[string]schema.Field, len(newFields))
	for _, f := range newFields {
		newByName[f.Name] = f
	}

	var stmts []string

	for _, f := range newFields {
		if _, existed := oldByName[f.Name]; !existed {
			stmts = append(stmts, m.pool.Dialect.AddColumnDDL(table, f))
		}
	}

	for _, f := range oldFields {
		if _, stays := newByName[f.Name]; !stays {
			stmts = append(stmts, m.pool.Dialect.DropColumnDDL(table, f.Name))
		}
	}

	for _, f := range newFields {
		old, existed := oldByName[f.Name]
		if existed && old.Type != f.Type {
			ddl, err := m.pool.Dialect.AlterColumnDDL(table, f.Name, f.Type)
			if err != nil {
				return err
			}
			stmts = append(stmts, ddl)
		}
	}

	if len(stmts) == 0 {
		return nil
	}

	sess, err := m.pool.Checkout(ctx)
	if err != nil {
		return apperr.NewInternal(err)
	}
	defer m.pool.Return(sess)

	for _, stmt := range stmts {
		if _, err := sess.DB.ExecContext(ctx, stmt); err != nil {
			return apperr.NewInternal(err)
		}
	}

	return nil
}
