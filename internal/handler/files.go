package handler

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/examforge/internal/correction"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/mdmap"
	"github.com/pavelanni/examforge/internal/model"
)

type createFileRequest struct {
	Name     string          `json:"name"`
	Content  string          `json:"content"`
	MdMap    json.RawMessage `json:"mdMap,omitempty"`
	Category string          `json:"category"`
	Source   string          `json:"source"`
}

type fileView struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Lines     []mdmap.Line    `json:"lines"`
	MdMap     json.RawMessage `json:"mdMap"`
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListFiles()
	if err != nil {
		slog.Error("failed to list files", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	if files == nil {
		files = []model.FileSummary{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *Handler) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.createFile(w, r, req)
}

// createFile validates and stores a file, then writes the response. It
// reports whether the file was created.
func (h *Handler) createFile(w http.ResponseWriter, r *http.Request, req createFileRequest) bool {
	f, err := correction.NewFile(req.Name, req.Content, req.MdMap, req.Category, req.Source)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{
			Error:  appI18n.T(r.Context(), "InvalidRequest"),
			Detail: err.Error(),
		})
		return false
	}
	id, err := h.store.CreateFile(f)
	if err != nil {
		slog.Error("failed to create file", "name", f.Name, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return false
	}
	slog.Info("created correction file", "id", id, "name", f.Name)
	w.Header().Set("Location", fmt.Sprintf("%s/api/files/%d", model.BasePathFromContext(r.Context()), id))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	return true
}

// handleUploadFile accepts a multipart transcript upload. A file whose name
// and content were already uploaded is rejected.
func (h *Handler) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeErr(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	if storedHash == hash {
		writeErr(w, http.StatusConflict, appI18n.T(r.Context(), "UploadDuplicate"))
		return
	}

	created := h.createFile(w, r, createFileRequest{
		Name:     header.Filename,
		Content:  string(data),
		MdMap:    json.RawMessage(r.FormValue("mdMap")),
		Category: r.FormValue("category"),
		Source:   r.FormValue("source"),
	})
	if !created {
		return
	}

	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}
	slog.Info("uploaded correction file", "filename", header.Filename, "bytes", len(data))
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "fileID")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid file ID")
		return
	}
	f, err := h.store.GetFile(id)
	if err != nil {
		slog.Error("failed to get file", "id", id, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	if f == nil {
		writeErr(w, http.StatusNotFound, appI18n.T(r.Context(), "FileNotFound"))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	mapJSON, err := sess.MapJSON()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileView{
		ID:        f.ID,
		Name:      f.Name,
		Category:  f.Category,
		Source:    f.Source,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
		Lines:     sess.Lines(),
		MdMap:     mapJSON,
	})
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "fileID")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid file ID")
		return
	}
	if err := h.store.DeleteFile(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeErr(w, http.StatusNotFound, appI18n.T(r.Context(), "FileNotFound"))
			return
		}
		slog.Error("failed to delete file", "id", id, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.svc.Close(id)
	slog.Info("deleted correction file", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
