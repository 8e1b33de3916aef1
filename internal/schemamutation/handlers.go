package schemamutation

import (
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/entity"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/jwtauth"
	"github.com/allankoechke/mantis/internal/router"
	"github.com/allankoechke/mantis/internal/schema"
)

// bodyToMap parses a request body into a map, reading either a JSON body
// or, for multipart/form-data, the form fields plus any uploaded files
// staged under the entity's upload directory.
func bodyToMap(req *router.Request, s schema.Schema, store *files.Store) (map[string]any, []string, error) {
	if !req.IsMultipartFormData() {
		var data map[string]any
		if len(req.Ctx.Body()) > 0 {
			if err := json.Unmarshal(req.Ctx.Body(), &data); err != nil {
				return nil, nil, apperr.NewInvalidArgument("malformed JSON body: %v", err)
			}
		}
		if data == nil {
			data = map[string]any{}
		}
		return data, nil, nil
	}

	form, err := req.Ctx.MultipartForm()
	if err != nil {
		return nil, nil, apperr.NewInvalidArgument("malformed multipart body: %v", err)
	}

	data := map[string]any{}
	var written []string

	for name, values := range form.Value {
		if len(values) == 0 {
			continue
		}

		f, ok := s.FieldByName(name)
		if !ok {
			continue
		}

		data[name] = coerceScalar(f.Type, values[0])
	}

	for fieldName, headers := range form.File {
		f, ok := s.FieldByName(fieldName)
		if !ok || !schema.IsFileType(f.Type) {
			continue
		}

		var names []string

		for _, fh := range headers {
			file, err := fh.Open()
			if err != nil {
				store.RemoveAll(s.Name, written)
				return nil, nil, apperr.NewInternal(err)
			}

			sanitized, err := store.Write(s.Name, fh.Filename, file)
			file.Close()

			if err != nil {
				store.RemoveAll(s.Name, written)
				return nil, nil, apperr.NewInternal(err)
			}

			names = append(names, sanitized)
			written = append(written, sanitized)
		}

		if f.Type == schema.FieldFile {
			if len(names) > 0 {
				data[fieldName] = names[0]
			}
		} else {
			data[fieldName] = names
		}
	}

	return data, written, nil
}

func coerceScalar(t schema.FieldType, raw string) any {
	switch t {
	case schema.FieldBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return raw
		}
		return b
	case schema.FieldInt8, schema.FieldUint8, schema.FieldInt16, schema.FieldUint16,
		schema.FieldInt32, schema.FieldUint32, schema.FieldInt64, schema.FieldUint64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return raw
		}
		return n
	case schema.FieldDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return f
	case schema.FieldJSON, schema.FieldFiles:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return raw
		}
		return v
	default:
		return raw
	}
}

func paginationFromQuery(req *router.Request) entity.ListOptions {
	return entity.ListOptions{
		PageIndex:  req.QueryInt("page", 1),
		PerPage:    req.QueryInt("perPage", 20),
		CountPages: req.QueryBool("countPages", false),
	}
}

// handleList implements `GET /api/v1/{name}`.
func handleList(ent *entity.Entity) router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		opts := paginationFromQuery(req)

		records, pagination, err := ent.List(req.Ctx.Context(), opts)
		if err != nil {
			return err
		}

		return resp.SendJSON(200, records, "", pagination)
	}
}

// handleRead implements `GET /api/v1/{name}/:id`.
func handleRead(ent *entity.Entity) router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		id := req.Param("id")

		rec, found, err := ent.Read(req.Ctx.Context(), id)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NewNotFound(ent.Schema.Name)
		}

		return resp.SendJSON(200, rec, "", nil)
	}
}

// handleCreate implements `POST /api/v1/{name}`.
func handleCreate(ent *entity.Entity, store *files.Store) router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		data, written, err := bodyToMap(req, ent.Schema, store)
		if err != nil {
			return err
		}

		if ent.Schema.Type == schema.TypeAuth {
			if err := hashPasswordField(data); err != nil {
				store.RemoveAll(ent.Schema.Name, written)
				return err
			}
		}

		rec, err := ent.Create(req.Ctx.Context(), data)
		if err != nil {
			store.RemoveAll(ent.Schema.Name, written)
			return err
		}

		return resp.SendJSON(201, rec, "", nil)
	}
}

// handleUpdate implements `PATCH /api/v1/{name}/:id`.
func handleUpdate(ent *entity.Entity, store *files.Store) router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		id := req.Param("id")

		data, written, err := bodyToMap(req, ent.Schema, store)
		if err != nil {
			return err
		}

		if ent.Schema.Type == schema.TypeAuth {
			if err := hashPasswordField(data); err != nil {
				store.RemoveAll(ent.Schema.Name, written)
				return err
			}
		}

		rec, err := ent.Update(req.Ctx.Context(), id, data)
		if err != nil {
			store.RemoveAll(ent.Schema.Name, written)
			return err
		}

		return resp.SendJSON(200, rec, "", nil)
	}
}

// handleDelete implements `DELETE /api/v1/{name}/:id`.
func handleDelete(ent *entity.Entity) router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		id := req.Param("id")

		if err := ent.Remove(req.Ctx.Context(), id); err != nil {
			return err
		}

		return resp.SendEmpty()
	}
}

// handleAuthWithPassword implements `POST /api/v1/{name}/auth-with-password`.
func handleAuthWithPassword(ent *entity.Entity, issuer *jwtauth.Issuer) router.HandlerFn {
	return func(req *router.Request, resp *router.Response) error {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}

		if err := json.Unmarshal(req.Body(), &body); err != nil {
			return apperr.NewInvalidArgument("malformed JSON body: %v", err)
		}

		rec, found, err := ent.QueryFromColsUnredacted(req.Ctx.Context(), body.Email, []string{"email"})
		if err != nil {
			return err
		}

		if !found {
			// hash something anyway so a missing-email lookup takes the same
			// time as a wrong-password one.
			_, _ = bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
			return apperr.NewUnauthorized("invalid email or password")
		}

		storedHash, _ := rec["password"].(string)
		if storedHash == "" {
			return apperr.NewUnauthorized("invalid email or password")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(body.Password)); err != nil {
			return apperr.NewUnauthorized("invalid email or password")
		}

		id, _ := rec["id"].(string)

		token, err := issuer.Issue(id, ent.Schema.Name)
		if err != nil {
			return apperr.NewInternal(err)
		}

		return resp.SendJSON(200, map[string]any{"token": token}, "", nil)
	}
}

func hashPasswordField(data map[string]any) error {
	raw, ok := data["password"]
	if !ok {
		return nil
	}

	pw, ok := raw.(string)
	if !ok || pw == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return apperr.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	data["password"] = string(hash)

	return nil
}
