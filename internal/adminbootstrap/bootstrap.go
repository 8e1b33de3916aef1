// Package adminbootstrap wires the three system entities (`_admins`,
// `_tables`, `_settings`) and the miscellaneous endpoints onto a Router on
// boot.
package adminbootstrap

import (
	"context"
	"encoding/json"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/config"
	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/jwtauth"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/router"
	"github.com/allankoechke/mantis/internal/ruleengine"
	"github.com/allankoechke/mantis/internal/schemamutation"
	"github.com/allankoechke/mantis/internal/settings"
)

// Result bundles the collaborators a running server needs to keep alive
// for the rest of the process lifetime.
type Result struct {
	Manager  *schemamutation.Manager
	Settings *settings.Cache
	Router   *router.Router
	Issuer   *jwtauth.Issuer
}

// Run ensures the system tables exist, builds the Manager and Router, and
// registers every system and user-defined entity's routes plus the
// miscellaneous endpoints.
func Run(ctx context.Context, cfg *config.Config, pool *dbpool.Pool, log mlog.Logger) (*Result, error) {
	if err := dbpool.Bootstrap(ctx, pool, log); err != nil {
		return nil, err
	}

	store := files.NewStore(cfg.DataDir, log)
	issuer := jwtauth.NewIssuer(cfg.JWTSecret)
	evaluator := ruleengine.New()

	deps := &router.Deps{Issuer: issuer, Evaluator: evaluator}

	rtr := router.New(deps, log)

	mgr := schemamutation.New(pool, store, rtr, deps, issuer, log)
	mgr.LoadSystem()

	deps.UserLookup = buildUserLookup(mgr)

	if err := mgr.LoadUserEntities(ctx); err != nil {
		return nil, err
	}

	settingsEnt, ok := mgr.Get("_settings")
	if !ok {
		return nil, apperr.NewInternal(errMissingSystemEntity("_settings"))
	}

	cache, err := settings.NewCache(ctx, settingsEnt)
	if err != nil {
		return nil, err
	}

	registerSettingsRoutes(rtr, deps, cache)

	rtr.RegisterHealthcheck()
	rtr.RegisterFileRoute(cfg.DataDir)
	rtr.MountStatic(cfg.PublicDir, cfg.PublicDir+"/admin")

	return &Result{Manager: mgr, Settings: cache, Router: rtr, Issuer: issuer}, nil
}

// buildUserLookup resolves a verified token's (table, id) claim pair to a
// hydrated, password-redacted user row for the g2 HydrateContextData
// middleware.
func buildUserLookup(mgr *schemamutation.Manager) router.UserLookup {
	return func(table, id string) (map[string]any, bool) {
		ent, ok := mgr.Get(table)
		if !ok {
			return nil, false
		}

		rec, found, err := ent.Read(context.Background(), id)
		if err != nil || !found {
			return nil, false
		}

		return rec, true
	}
}

// registerSettingsRoutes wires the `_settings` singleton's cache-backed
// GET/PATCH surface directly, bypassing the generic Entity CRUD path
// since there is only ever one row.
func registerSettingsRoutes(rtr *router.Router, deps *router.Deps, cache *settings.Cache) {
	adminOnly := "auth.table == '_admins'"

	rtr.Get("/api/v1/_settings", func(req *router.Request, resp *router.Response) error {
		return resp.SendJSON(200, cache.Get(), "", nil)
	}, router.RuleMiddleware(deps, adminOnly))

	rtr.Patch("/api/v1/_settings", func(req *router.Request, resp *router.Response) error {
		current := cache.Get()
		if err := decodeSettingsBody(req, &current); err != nil {
			return err
		}

		if err := cache.Update(req.Ctx.Context(), current); err != nil {
			return err
		}

		return resp.SendJSON(200, cache.Get(), "", nil)
	}, router.RuleMiddleware(deps, adminOnly))
}

func decodeSettingsBody(req *router.Request, into *settings.Values) error {
	if len(req.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Body(), into); err != nil {
		return apperr.NewInvalidArgument("malformed JSON body: %v", err)
	}
	return nil
}

type errMissingSystemEntity string

func (e errMissingSystemEntity) Error() string { return string(e) + " entity not registered" }
