package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/model"
)

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams()
	if err != nil {
		slog.Error("failed to list exams", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	if exams == nil {
		exams = []model.StoredExam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.store.GetExam(chi.URLParam(r, "uuid"))
	if err != nil {
		slog.Error("failed to get exam", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	if exam == nil {
		writeErr(w, http.StatusNotFound, appI18n.T(r.Context(), "ExamNotFound"))
		return
	}
	writeJSON(w, http.StatusOK, exam)
}
