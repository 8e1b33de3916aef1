// Package ruleengine evaluates the boolean rule expressions attached to
// each entity route against a token map of `auth`/`req` variables.
package ruleengine

import (
	"strings"

	"github.com/expr-lang/expr"
)

// AuthContext is the `auth` variable exposed to rule expressions: the
// hydrated, password-redacted caller identity.
type AuthContext struct {
	Type  string         `json:"type"` // "guest" or "user"
	Token string         `json:"token,omitempty"`
	ID    string         `json:"id,omitempty"`
	Table string         `json:"table,omitempty"`
	User  map[string]any `json:"user,omitempty"`
}

// RequestContext is the `req` variable exposed to rule expressions.
type RequestContext struct {
	RemoteAddr string         `json:"remoteAddr"`
	RemotePort int            `json:"remotePort"`
	LocalAddr  string         `json:"localAddr"`
	LocalPort  int            `json:"localPort"`
	Body       map[string]any `json:"body,omitempty"`
}

// Evaluator compiles and evaluates rule expressions.
type Evaluator struct{}

// New builds an Evaluator.
func New() *Evaluator { return &Evaluator{} }

// tokenMap builds the `map[string]any` environment passed to expr.Eval,
// built directly from typed Go values instead of round-tripping through
// JSON.
func tokenMap(auth AuthContext, req RequestContext) map[string]any {
	authMap := map[string]any{
		"type":  auth.Type,
		"token": auth.Token,
		"id":    auth.ID,
		"table": auth.Table,
	}
	if auth.User != nil {
		for k, v := range auth.User {
			authMap[k] = v
		}
		authMap["user"] = auth.User
	}

	reqMap := map[string]any{
		"remoteAddr": req.RemoteAddr,
		"remotePort": req.RemotePort,
		"localAddr":  req.LocalAddr,
		"localPort":  req.LocalPort,
	}
	if req.Body != nil {
		reqMap["body"] = req.Body
	}

	return map[string]any{
		"auth": authMap,
		"req":  reqMap,
	}
}

// Allow evaluates rule against (auth, req):
//   - an empty (after trim) rule requires auth.table == "_admins";
//   - otherwise the expression is evaluated and coerced to bool;
//   - any evaluation error is treated as deny, with the error returned.
func (e *Evaluator) Allow(rule string, auth AuthContext, req RequestContext) (bool, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return auth.Table == "_admins", nil
	}

	env := tokenMap(auth, req)

	program, err := expr.Compile(trimmed, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := out.(bool)
	if !ok {
		return false, nil
	}

	return result, nil
}
