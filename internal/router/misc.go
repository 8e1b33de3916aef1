package router

import (
	"mime"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthcheck wires `GET /api/v1/healthcheck`.
func (r *Router) RegisterHealthcheck() {
	r.Get("/api/v1/healthcheck", func(req *Request, resp *Response) error {
		return resp.SendJSON(200, map[string]any{"status": "ok"}, "", nil)
	})
}

// FileServer serves uploaded files under `/api/files/:entity/:file`.
type FileServer struct {
	DataDir string
}

// RegisterFileRoute wires `GET /api/files/:entity/:file`, resolving MIME
// type via the stdlib mime table (see DESIGN.md for why this one spot
// stays on the standard library).
func (r *Router) RegisterFileRoute(dataDir string) {
	r.Get("/api/files/:entity/:file", func(req *Request, resp *Response) error {
		entity := req.Param("entity")
		file := req.Param("file")

		path := filepath.Join(dataDir, "files", entity, file)

		ct := mime.TypeByExtension(filepath.Ext(file))
		if ct != "" {
			resp.Ctx.Set(fiber.HeaderContentType, ct)
		}

		return resp.SetFileContent(path)
	})
}

// MountStatic maps `/` to publicDir and, when spaDir is set, `/admin` to
// the on-disk directory spaDir, serving spaDir/index.html for any other
// `/admin/*` path. No SPA bundle is embedded in the binary.
func (r *Router) MountStatic(publicDir, spaDir string) {
	r.App.Static("/", publicDir)

	if spaDir != "" {
		r.App.Static("/admin", spaDir)
		r.App.Get("/admin/*", func(c *fiber.Ctx) error {
			return c.SendFile(filepath.Join(spaDir, "index.html"))
		})
	}
}
