package router

import (
	"github.com/allankoechke/mantis/internal/jwtauth"
	"github.com/allankoechke/mantis/internal/ruleengine"
)

// UserLookup resolves a hydrated, password-redacted user row by the
// (table, id) pair carried in a verified token's claims.
type UserLookup func(table, id string) (map[string]any, bool)

// AuthKey is the Request context-map key global middlewares store the
// resolved auth object under.
const AuthKey = "auth"

// Deps bundles the shared collaborators the global and per-route
// middlewares need.
type Deps struct {
	Issuer     *jwtauth.Issuer
	Evaluator  *ruleengine.Evaluator
	UserLookup UserLookup
}

// GetAuthToken is global middleware (g1): it reads the bearer token (if
// any) and writes a preliminary `auth` object into the request context,
// rejecting outright if a token was presented but failed verification.
func GetAuthToken(deps *Deps) MiddlewareFn {
	return func(req *Request, resp *Response) Result {
		token, ok := req.GetBearerTokenAuth()
		if !ok {
			req.Set(AuthKey, ruleengine.AuthContext{Type: "guest"})
			return Pending
		}

		result := deps.Issuer.Verify(token)
		if !result.Verified {
			req.Set(AuthKey, ruleengine.AuthContext{Type: "guest", Token: token})
			_ = resp.SendError(403, result.Error)
			return Handled
		}

		req.Set(AuthKey, ruleengine.AuthContext{
			Type:  "user",
			Token: token,
			ID:    result.ID,
			Table: result.Table,
		})

		return Pending
	}
}

// HydrateContextData is global middleware (g2): it resolves the verified
// token's claims to a user row and stores the redacted user in the `auth`
// context value.
func HydrateContextData(deps *Deps) MiddlewareFn {
	return func(req *Request, resp *Response) Result {
		v, _ := req.Get(AuthKey)

		auth, ok := v.(ruleengine.AuthContext)
		if !ok || auth.Type != "user" || deps.UserLookup == nil {
			return Pending
		}

		user, found := deps.UserLookup(auth.Table, auth.ID)
		if found {
			auth.User = user
			req.Set(AuthKey, auth)
		}

		return Pending
	}
}

// currentAuth returns the auth context previously stored by the global
// middlewares, defaulting to a guest identity.
func currentAuth(req *Request) ruleengine.AuthContext {
	v, ok := req.Get(AuthKey)
	if !ok {
		return ruleengine.AuthContext{Type: "guest"}
	}

	auth, ok := v.(ruleengine.AuthContext)
	if !ok {
		return ruleengine.AuthContext{Type: "guest"}
	}

	return auth
}

// RuleMiddleware builds the per-route middleware that evaluates rule
// against the current request's auth/req context. A deny writes a 403
// envelope and returns Handled; an evaluation error is also treated as
// deny, with the error surfaced in the response body.
func RuleMiddleware(deps *Deps, rule string) MiddlewareFn {
	return func(req *Request, resp *Response) Result {
		auth := currentAuth(req)

		remoteAddr, remotePort := req.RemoteAddr()
		localAddr, localPort := req.LocalAddr()

		reqCtx := ruleengine.RequestContext{
			RemoteAddr: remoteAddr,
			RemotePort: remotePort,
			LocalAddr:  localAddr,
			LocalPort:  localPort,
		}

		allowed, err := deps.Evaluator.Allow(rule, auth, reqCtx)
		if err != nil {
			_ = resp.SendError(403, err.Error())
			return Handled
		}

		if !allowed {
			_ = resp.SendError(403, "access denied by rule")
			return Handled
		}

		return Pending
	}
}
