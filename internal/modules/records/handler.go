// Package records exposes the CRUD engine over HTTP. It parses payloads and
// multipart uploads, stores files ahead of the engine call, and maps engine
// errors to transport status codes.
package records

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"catalogapi/internal/crud"
	"catalogapi/internal/filestore"
	"catalogapi/internal/pkg/response"
)

// filesField is the multipart field carrying new attachments.
const filesField = "files"

type Handler struct {
	engine   *crud.Engine
	registry *crud.Registry
	files    *filestore.Store
}

func NewHandler(engine *crud.Engine, registry *crud.Registry, files *filestore.Store) *Handler {
	return &Handler{engine: engine, registry: registry, files: files}
}

func (h *Handler) List(c *gin.Context) {
	rows, err := h.engine.List(c.Request.Context(), c.Param("table"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

func (h *Handler) Create(c *gin.Context) {
	payload, uploaded, _, err := h.parseRequest(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	rec, err := h.engine.Create(c.Request.Context(), c.Param("table"), payload, principal(c), uploaded)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, rec)
}

func (h *Handler) Update(c *gin.Context) {
	id, err := recordID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	payload, uploaded, retained, err := h.parseRequest(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	rec, err := h.engine.Update(c.Request.Context(), c.Param("table"), id, payload, principal(c), uploaded, retained)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rec)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := recordID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.engine.Delete(c.Request.Context(), c.Param("table"), id, principal(c)); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": id})
}

// parseRequest builds the raw payload plus the uploaded and retained
// reference sets. Multipart requests may carry files; JSON requests may
// carry a retained list inline. Files are stored before the engine runs —
// the engine owns their cleanup from that point on.
func (h *Handler) parseRequest(c *gin.Context) (payload map[string]any, uploaded, retained []string, err error) {
	table := c.Param("table")
	spec, _ := h.registry.Get(table)
	retainedField := ""
	if spec.FileColumn != "" {
		retainedField = spec.FileColumn + "_retained"
	}

	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %v", crud.ErrValidation, err)
		}

		payload = make(map[string]any, len(form.Value))
		for field, values := range form.Value {
			if field == retainedField && retainedField != "" {
				retained = retainedValues(values)
				continue
			}
			if len(values) > 0 {
				payload[field] = values[0]
			}
		}

		uploaded, err = h.storeAll(table, form.File[filesField])
		if err != nil {
			return nil, nil, nil, err
		}
		return payload, uploaded, retained, nil
	}

	payload = make(map[string]any)
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: malformed JSON body", crud.ErrValidation)
		}
	}
	if retainedField != "" {
		if raw, ok := payload[retainedField]; ok {
			retained = crud.RefList(raw)
			if retained == nil {
				retained = []string{}
			}
			delete(payload, retainedField)
		}
	}
	return payload, nil, retained, nil
}

// storeAll persists every incoming file. On a mid-batch failure the files
// already stored are removed again; no reference has reached the engine yet.
func (h *Handler) storeAll(table string, headers []*multipart.FileHeader) ([]string, error) {
	var refs []string
	for _, fh := range headers {
		ref, err := h.files.Save(table, fh)
		if err != nil {
			for _, stored := range refs {
				_ = h.files.Delete(stored)
			}
			switch {
			case errors.Is(err, filestore.ErrEmptyFile),
				errors.Is(err, filestore.ErrFileTooLarge),
				errors.Is(err, filestore.ErrInvalidMimeType):
				return nil, fmt.Errorf("%w: %s: %v", crud.ErrValidation, fh.Filename, err)
			default:
				return nil, err
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// retainedValues keeps the presence of an empty retained field observable:
// sending the field with no values means "retain nothing".
func retainedValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, crud.ErrUnknownTable):
		response.Error(c, http.StatusNotFound, "TABLE_NOT_FOUND", "Unknown table")
	case errors.Is(err, crud.ErrReadOnlyTable):
		response.Error(c, http.StatusBadRequest, "READ_ONLY", "Table does not accept mutations")
	case errors.Is(err, crud.ErrReferenceNotFound):
		response.Error(c, http.StatusBadRequest, "REFERENCE_NOT_FOUND", err.Error())
	case errors.Is(err, crud.ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, crud.ErrEmptyUpdate):
		response.Error(c, http.StatusBadRequest, "EMPTY_UPDATE", "Nothing to update")
	case errors.Is(err, crud.ErrConflict):
		response.Error(c, http.StatusConflict, "CONFLICT", "Record conflicts with an existing record")
	case errors.Is(err, crud.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Record not found")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "Internal server error")
	}
}

func recordID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid record id", crud.ErrValidation)
	}
	return id, nil
}

func principal(c *gin.Context) crud.Principal {
	return crud.Principal{
		ID:   c.GetInt64("user_id"),
		Name: c.GetString("username"),
	}
}
