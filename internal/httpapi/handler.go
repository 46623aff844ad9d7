// Package httpapi exposes the chat session over HTTP.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
	"github.com/stupiduntilnot/lyra/internal/persona"
	"github.com/stupiduntilnot/lyra/internal/session"
	"github.com/stupiduntilnot/lyra/internal/transcript"
)

// maxImportBytes bounds an uploaded transcript.
const maxImportBytes = 32 << 20

// Session is the subset of *session.Session the API drives.
type Session interface {
	Submit(ctx context.Context, text string) (string, error)
	Reset(ctx context.Context) error
	Import(ctx context.Context, records []transcript.Record, mode transcript.Mode) error
	Export() []ctxpkg.Message
	Dialog() []ctxpkg.Message
	LastMeta() (modelpkg.CallMeta, bool)
	Busy() bool
	Persona() persona.Persona
}

type Handler struct {
	session Session
}

func NewHandler(s Session) *Handler {
	return &Handler{session: s}
}

func (h *Handler) Transcript(c *gin.Context) {
	msgs := h.session.Dialog()
	if msgs == nil {
		msgs = []ctxpkg.Message{}
	}
	c.JSON(http.StatusOK, TranscriptResponse{Busy: h.session.Busy(), Messages: msgs})
}

func (h *Handler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.session.Submit(ctx, req.Text)
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be empty"})
		return
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "a reply is still being generated"})
		return
	case err != nil:
		slog.ErrorContext(ctx, "submit failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit"})
		return
	}

	resp := SubmitResponse{Reply: reply}
	if meta, ok := h.session.LastMeta(); ok {
		resp.Meta = &meta
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Reset(c *gin.Context) {
	if err := h.session.Reset(c.Request.Context()); err != nil {
		h.writeSessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Export downloads the full transcript in the import format.
func (h *Handler) Export(c *gin.Context) {
	data, err := transcript.Encode(h.session.Export())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "encode transcript failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export transcript"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="lyra_log.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Import reads a transcript file from the request body. The mode query
// parameter selects replace (default) or append.
func (h *Handler) Import(c *gin.Context) {
	ctx := c.Request.Context()

	mode, err := transcript.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	records, err := transcript.Decode(data)
	if err != nil {
		slog.WarnContext(ctx, "invalid transcript upload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.session.Import(ctx, records, mode); err != nil {
		h.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, ImportResponse{Imported: len(records), Length: len(h.session.Export())})
}

func (h *Handler) Meta(c *gin.Context) {
	meta, ok := h.session.LastMeta()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completion yet"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (h *Handler) Persona(c *gin.Context) {
	p := h.session.Persona()
	c.JSON(http.StatusOK, PersonaResponse{Name: p.Name, StarterHint: p.StarterHint})
}

func (h *Handler) writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "a reply is still being generated"})
	case errors.Is(err, transcript.ErrInvalidRecord), errors.Is(err, transcript.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "session operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
