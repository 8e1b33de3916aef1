package router

import (
	"github.com/gofiber/fiber/v2"
)

// Envelope is the fixed JSON shape every API endpoint returns.
type Envelope struct {
	Status     int    `json:"status"`
	Error      string `json:"error"`
	Data       any    `json:"data"`
	Pagination any    `json:"pagination,omitempty"`
}

// Response wraps the raw HTTP response with the envelope writers.
type Response struct {
	Ctx       *fiber.Ctx
	status    int
	written   bool
}

// NewResponse builds a Response defaulting to status 200.
func NewResponse(c *fiber.Ctx) *Response {
	return &Response{Ctx: c, status: 200}
}

// SetStatus overrides the response status without writing a body.
func (r *Response) SetStatus(code int) {
	r.status = code
}

// Written reports whether a handler/middleware already wrote the body.
func (r *Response) Written() bool { return r.written }

// SendJSON writes the envelope {status, error, data, pagination?}.
func (r *Response) SendJSON(status int, data any, errMsg string, pagination any) error {
	r.status = status
	r.written = true

	return r.Ctx.Status(status).JSON(Envelope{
		Status:     status,
		Error:      errMsg,
		Data:       data,
		Pagination: pagination,
	})
}

// SendEmpty writes a bare 200 envelope with null data.
func (r *Response) SendEmpty() error {
	return r.SendJSON(200, nil, "", nil)
}

// SendError writes an error envelope at the given status.
func (r *Response) SendError(status int, message string) error {
	return r.SendJSON(status, nil, message, nil)
}

// SetContent writes raw bytes with the given MIME type.
func (r *Response) SetContent(content []byte, mime string) error {
	r.written = true
	r.Ctx.Set(fiber.HeaderContentType, mime)
	return r.Ctx.Status(r.status).Send(content)
}

// SetFileContent streams the file at path as the response body.
func (r *Response) SetFileContent(path string) error {
	r.written = true
	return r.Ctx.SendFile(path)
}
