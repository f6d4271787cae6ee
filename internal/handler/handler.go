package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examforge/internal/correction"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/mdmap"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/store"
	"github.com/pavelanni/examforge/internal/structure"
)

const maxBodyBytes = 10 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	svc    *correction.Service
	config model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, svc *correction.Service, cfg model.ServerConfig) *Handler {
	return &Handler{store: s, svc: svc, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Use(h.requireAuth)

		r.Post("/logout", h.handleLogout)

		r.Route("/api", func(r chi.Router) {
			r.Get("/files", h.handleListFiles)
			r.Get("/files/{fileID}", h.handleGetFile)
			r.Get("/files/{fileID}/structure", h.handleStructure)
			r.Get("/files/{fileID}/lines/{line}/enclosing", h.handleEnclosing)
			r.Get("/files/{fileID}/lines/{line}/neighbors", h.handleNeighbors)
			r.Post("/files/{fileID}/overlaps", h.handleOverlaps)
			r.Get("/exams", h.handleListExams)
			r.Get("/exams/{uuid}", h.handleGetExam)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin, model.UserRoleTeacher))
				r.Post("/files", h.handleCreateFile)
				r.Post("/files/upload", h.handleUploadFile)
				r.Delete("/files/{fileID}", h.handleDeleteFile)
				r.Post("/files/{fileID}/annotations", h.handleAnnotate)
				r.Delete("/files/{fileID}/annotations/{uuid}", h.handleRemoveAnnotation)
				r.Post("/files/{fileID}/clear", h.handleClear)
				r.Post("/files/{fileID}/suggest", h.handleSuggest)
				r.Post("/files/{fileID}/submit", h.handleSubmit)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{
			Error:  appI18n.T(r.Context(), "InvalidRequest"),
			Detail: err.Error(),
		})
		return false
	}
	return true
}

func intParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// session opens the editor session named by the fileID URL parameter and
// writes the error response itself when that fails.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*correction.Session, bool) {
	id, err := intParam(r, "fileID")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid file ID")
		return nil, false
	}
	sess, err := h.svc.Open(id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, false
	}
	return sess, true
}

// writeServiceError maps domain errors onto HTTP statuses with a localized
// message. Unknown errors are logged and reported as 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var status int
	var msgID string
	switch {
	case errors.Is(err, correction.ErrFileNotFound):
		status, msgID = http.StatusNotFound, "FileNotFound"
	case errors.Is(err, structure.ErrOverlapRejected):
		status, msgID = http.StatusConflict, "OverlapRejected"
	case errors.Is(err, mdmap.ErrLocked):
		status, msgID = http.StatusConflict, "AnnotationLocked"
	case errors.Is(err, mdmap.ErrOutOfRange):
		status, msgID = http.StatusBadRequest, "LineOutOfRange"
	case errors.Is(err, mdmap.ErrUnknownType):
		status, msgID = http.StatusBadRequest, "UnknownAnnotationType"
	case errors.Is(err, correction.ErrEmptySelection):
		status, msgID = http.StatusBadRequest, "EmptySelection"
	case errors.Is(err, store.ErrExamOwned):
		status, msgID = http.StatusConflict, "ExamOwned"
	case errors.Is(err, correction.ErrNoSuggester):
		status, msgID = http.StatusServiceUnavailable, "SuggestUnavailable"
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, status, errResp{Error: appI18n.T(ctx, msgID), Detail: err.Error()})
}
