package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examforge/internal/correction"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/mdmap"
	"github.com/pavelanni/examforge/internal/structure"
)

type linesRequest struct {
	Lines       []int  `json:"lines"`
	Layer       string `json:"layer"`
	ExcludeUUID string `json:"excludeUuid,omitempty"`
}

type enclosingResponse struct {
	Annotation *mdmap.Annotation `json:"annotation"`
	Line       int               `json:"line"`
}

func (h *Handler) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req correction.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := sess.Annotate(req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleRemoveAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	n, err := sess.Remove(chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req linesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	layer, err := mdmap.ParseLayer(req.Layer)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := sess.Clear(req.Lines, layer); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStructure(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Structure(appI18n.SectionNamer(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func lineParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "line"))
}

func (h *Handler) handleEnclosing(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	line, err := lineParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid line")
		return
	}
	var types []mdmap.Type
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			t, err := mdmap.ParseType(strings.TrimSpace(s))
			if err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			types = append(types, t)
		}
	}
	a, at, err := sess.Enclosing(line, types...)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enclosingResponse{Annotation: a, Line: at})
}

func (h *Handler) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	line, err := lineParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid line")
		return
	}
	var t mdmap.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		if t, err = mdmap.ParseType(raw); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}
	n, err := sess.Neighbors(line, t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) handleOverlaps(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req linesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	layer, err := mdmap.ParseLayer(req.Layer)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	over, err := sess.Overlaps(req.Lines, layer, req.ExcludeUUID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"overlaps": over})
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if !h.svc.CanSuggest() {
		h.writeServiceError(w, r, correction.ErrNoSuggester)
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	applied, rejected, err := sess.Suggest(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if applied == nil {
		applied = []mdmap.Annotation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "rejected": rejected})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var meta correction.Metadata
	if !decodeJSON(w, r, &meta) {
		return
	}
	meta.Namer = appI18n.SectionNamer(r.Context())

	doc, err := sess.Submit(meta)
	if errors.Is(err, structure.ErrOrphaned) {
		h.writeOrphans(w, r, sess, err)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// writeOrphans reports a refused submission together with the annotations
// that have no container.
func (h *Handler) writeOrphans(w http.ResponseWriter, r *http.Request, sess *correction.Session, cause error) {
	res, err := sess.Structure(nil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, errResp{
		Error:  appI18n.Tp(r.Context(), "OrphanedAnnotations", len(res.Orphans)),
		Detail: cause.Error(),
		Data:   res.Orphans,
	})
}
