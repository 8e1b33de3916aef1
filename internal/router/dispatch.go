package router

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/mlog"
)

// Router is the top-level wrapper around the dynamic route table: it owns
// the fiber HTTP transport and delegates every request into the dynamic
// Registry so route sets can be added and withdrawn without restarting the
// listener.
type Router struct {
	App      *fiber.App
	Registry *Registry
	Global   []MiddlewareFn
	Log      mlog.Logger
}

// New builds a Router with global middlewares wired and the two
// registry-backed wildcard routes mounted.
func New(deps *Deps, log mlog.Logger) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(Envelope{
				Status: fiber.StatusInternalServerError,
				Error:  err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
		AllowHeaders: "Content-Type, Authorization",
		MaxAge:       86400,
	}))

	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-Correlation-ID") == "" {
			c.Set("X-Correlation-ID", uuid.NewString())
		}
		return c.Next()
	})

	r := &Router{
		App:      app,
		Registry: NewRegistry(),
		Global:   []MiddlewareFn{GetAuthToken(deps), HydrateContextData(deps)},
		Log:      log,
	}

	app.All("/api/v1/*", r.dispatch)
	app.All("/api/files/*", r.dispatch)
	app.Options("/*", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	return r
}

// Get registers a GET route.
func (r *Router) Get(path string, handler HandlerFn, middlewares ...MiddlewareFn) {
	r.Registry.Add("GET", path, handler, middlewares...)
}

// Post registers a POST route.
func (r *Router) Post(path string, handler HandlerFn, middlewares ...MiddlewareFn) {
	r.Registry.Add("POST", path, handler, middlewares...)
}

// Patch registers a PATCH route.
func (r *Router) Patch(path string, handler HandlerFn, middlewares ...MiddlewareFn) {
	r.Registry.Add("PATCH", path, handler, middlewares...)
}

// Delete registers a DELETE route.
func (r *Router) Delete(path string, handler HandlerFn, middlewares ...MiddlewareFn) {
	r.Registry.Add("DELETE", path, handler, middlewares...)
}

// dispatch implements the single-request lifecycle: route lookup, global
// middleware, per-route middleware, handler, response.
func (r *Router) dispatch(c *fiber.Ctx) error {
	start := time.Now()

	method := c.Method()
	path := c.Path()

	resp := NewResponse(c)

	entry, params, found := r.Registry.Find(method, path)
	if !found {
		_ = resp.SendError(fiber.StatusNotFound, "route not found")
		r.logLine(method, path, resp, time.Since(start))
		return nil
	}

	req := NewRequest(c, params)

	for _, mw := range r.Global {
		if mw(req, resp) == Handled {
			r.logLine(method, path, resp, time.Since(start))
			return nil
		}
	}

	for _, mw := range entry.Middlewares {
		if mw(req, resp) == Handled {
			r.logLine(method, path, resp, time.Since(start))
			return nil
		}
	}

	if err := entry.Handler(req, resp); err != nil {
		status := apperr.StatusCode(err)
		_ = resp.SendError(status, err.Error())
	} else if !resp.Written() {
		_ = resp.SendEmpty()
	}

	r.logLine(method, path, resp, time.Since(start))

	return nil
}

// logLine emits the single-line request summary in Apache-CLF style. On an
// error status with a non-empty body it also decompresses and appends the
// body, since an error handler may have set Content-Encoding on the
// envelope before the logger ever sees it.
func (r *Router) logLine(method, path string, resp *Response, elapsed time.Duration) {
	if resp.status < 400 {
		r.Log.Infof("%s %s %d %dms", method, path, resp.status, elapsed.Milliseconds())
		return
	}

	body := errorBody(resp.Ctx)
	if body == "" {
		r.Log.Infof("%s %s %d %dms", method, path, resp.status, elapsed.Milliseconds())
		return
	}

	r.Log.Infof("%s %s %d %dms %s", method, path, resp.status, elapsed.Milliseconds(), body)
}

// errorBody returns c's response body as plain text, transparently
// decompressing it per its Content-Encoding header (gzip, deflate, br,
// zstd). Returns "" if the body is empty or fails to decompress.
func errorBody(c *fiber.Ctx) string {
	raw := c.Response().Body()
	if len(raw) == 0 {
		return ""
	}

	switch strings.ToLower(string(c.Response().Header.Peek(fiber.HeaderContentEncoding))) {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return ""
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return ""
		}
		return string(out)
	case "deflate":
		zr := flate.NewReader(bytes.NewReader(raw))
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return ""
		}
		return string(out)
	case "br":
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return ""
		}
		return string(out)
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return ""
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return ""
		}
		return string(out)
	default:
		return string(raw)
	}
}

// Listen starts the HTTP server on addr.
func (r *Router) Listen(addr string) error {
	return r.App.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (r *Router) Shutdown() error {
	return r.App.Shutdown()
}
