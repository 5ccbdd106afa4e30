package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/application/session"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// SessionHandler serves asynchronous search sessions.
type SessionHandler struct {
	svc session.Service
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc session.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// RegisterRoutes mounts the handler under rg.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.Create)
	rg.GET("/sessions/:id", h.Status)
	rg.GET("/sessions/:id/results", h.Results)
	rg.DELETE("/sessions/:id", h.Delete)
}

// CreateSessionRequest is the JSON form of a session upload.
type CreateSessionRequest struct {
	Filename string                  `json:"filename"`
	Content  []byte                  `json:"content,omitempty"`
	Text     string                  `json:"text,omitempty"`
	Metadata *legalcase.CaseMetadata `json:"metadata,omitempty"`
	Options  similarity.Options      `json:"options"`
}

// Create handles POST /sessions.  Multipart uploads take search options from
// the query string; JSON bodies carry them inline.  Answers 202 while the
// search runs in the background.
func (h *SessionHandler) Create(c *gin.Context) {
	req := &session.CreateRequest{}
	if isMultipart(c) {
		opts, err := parseOptions(c)
		if err != nil {
			respondError(c, err)
			return
		}
		name, data, err := readUpload(c)
		if err != nil {
			respondError(c, err)
			return
		}
		req.Filename, req.Content, req.Options = name, data, opts
		if raw := c.PostForm("metadata"); raw != "" {
			var meta legalcase.CaseMetadata
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "metadata must be a JSON object"))
				return
			}
			req.Metadata = &meta
		}
	} else {
		var body CreateSessionRequest
		if !bindJSON(c, &body) {
			return
		}
		if err := body.Options.Validate(); err != nil {
			respondError(c, err)
			return
		}
		req.Filename, req.Content, req.Text = body.Filename, body.Content, body.Text
		req.Metadata, req.Options = body.Metadata, body.Options
	}

	s, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/api/v1/sessions/"+s.ID)
	respond(c, http.StatusAccepted, statusView(s))
}

// Status handles GET /sessions/:id.
func (h *SessionHandler) Status(c *gin.Context) {
	s, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, statusView(s))
}

// Results handles GET /sessions/:id/results?top_k=&threshold=.  A session
// that has not completed answers 409.
func (h *SessionHandler) Results(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.svc.Results(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// Delete handles DELETE /sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// statusView drops the cached ranking, which only the results route serves.
func statusView(s *session.Session) *session.Session {
	v := *s
	v.Ranking = nil
	return &v
}

//Personal.AI order the ending
