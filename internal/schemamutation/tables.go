package schemamutation

import (
	"encoding/json"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/router"
	"github.com/allankoechke/mantis/internal/schema"
)

// tableRequest is the body shape accepted by the `_tables` create/update
// endpoints: an EntitySchema plus the bare field list a caller declares.
type tableRequest struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Fields     []schema.Field `json:"fields"`
	ListRule   string         `json:"list_rule"`
	GetRule    string         `json:"get_rule"`
	AddRule    string         `json:"add_rule"`
	UpdateRule string         `json:"update_rule"`
	DeleteRule string         `json:"delete_rule"`
	ViewQuery  string         `json:"view_query"`
	HasAPI     bool           `json:"has_api"`
}

func (t tableRequest) toSchema() schema.Schema {
	typ := schema.EntityType(t.Type)
	if typ == "" {
		typ = schema.TypeBase
	}

	s := schema.New(t.Name, typ, t.Fields)
	s.ListRule = t.ListRule
	s.GetRule = t.GetRule
	s.AddRule = t.AddRule
	s.UpdateRule = t.UpdateRule
	s.DeleteRule = t.DeleteRule
	s.ViewQuery = t.ViewQuery
	s.HasAPI = t.HasAPI

	return s
}

// RegisterTableRoutes wires `_tables`'s CRUD surface to real schema
// mutations rather than plain row writes: POST creates a live table, PATCH
// renames/redefines one, DELETE drops it. GET stays a plain read over the
// `_tables` rows, since listing/reading metadata needs no mutation.
func (m *Manager) RegisterTableRoutes(tablesSchema schema.Schema) {
	ent := m.tablesEnt

	m.router.Get("/api/v1/_tables", handleList(ent), router.RuleMiddleware(m.deps, tablesSchema.ListRule))
	m.router.Get("/api/v1/_tables/:id", handleRead(ent), router.RuleMiddleware(m.deps, tablesSchema.GetRule))
	m.router.Post("/api/v1/_tables", m.handleCreateTable(), router.RuleMiddleware(m.deps, tablesSchema.AddRule))
	m.router.Patch("/api/v1/_tables/:id", m.handleUpdateTable(), router.RuleMiddleware(m.deps, tablesSchema.UpdateRule))
	m.router.Delete("/api/v1/_tables/:id", m.handleDeleteTable(), router.RuleMiddleware(m.deps, tablesSchema.DeleteRule))
}

func (m *Manager) handleCreateTable() router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		var body tableRequest
		if err := json.Unmarshal(req.Body(), &body); err != nil {
			return apperr.NewInvalidArgument("malformed JSON body: %v", err)
		}

		if body.Name == "" {
			return apperr.NewInvalidArgument("name is required")
		}

		if schema.IsSystem(body.Name) {
			return apperr.NewInvalidArgument("%s is a reserved entity name", body.Name)
		}

		s := body.toSchema()

		ctx := req.Ctx.Context()
		if err := m.AddEntity(ctx, s); err != nil {
			return err
		}

		rec, found, err := m.tablesEnt.QueryFromCols(ctx, s.Name, []string{"name"})
		if err != nil {
			return err
		}
		if !found {
			return apperr.NewInternal(errRowVanished(s.Name))
		}

		return resp.SendJSON(201, rec, "", nil)
	}
}

func (m *Manager) handleUpdateTable() router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		id := req.Param("id")
		ctx := req.Ctx.Context()

		row, found, err := m.tablesEnt.Read(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NewNotFound("_tables")
		}

		oldName, _ := row["name"].(string)

		var body tableRequest
		if err := json.Unmarshal(req.Body(), &body); err != nil {
			return apperr.NewInvalidArgument("malformed JSON body: %v", err)
		}
		if body.Name == "" {
			body.Name = oldName
		}

		newSchema := body.toSchema()

		if newSchema.Name != oldName {
			if err := m.RenameEntity(ctx, oldName, newSchema); err != nil {
				return err
			}
		} else if err := m.UpdateSchemaCache(ctx, oldName, newSchema); err != nil {
			return err
		}

		rec, found, err := m.tablesEnt.QueryFromCols(ctx, newSchema.Name, []string{"name"})
		if err != nil {
			return err
		}
		if !found {
			return apperr.NewInternal(errRowVanished(newSchema.Name))
		}

		return resp.SendJSON(200, rec, "", nil)
	}
}

func (m *Manager) handleDeleteTable() router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		id := req.Param("id")
		ctx := req.Ctx.Context()

		row, found, err := m.tablesEnt.Read(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NewNotFound("_tables")
		}

		name, _ := row["name"].(string)

		if err := m.RemoveEntity(ctx, name); err != nil {
			return err
		}

		return resp.SendEmpty()
	}
}

func errRowVanished(name string) error {
	return apperr.NewInternal(notFoundAfterWrite{name})
}

type notFoundAfterWrite struct{ name string }

func (e notFoundAfterWrite) Error() string {
	return "no _tables row for " + e.name + " immediately after write"
}
