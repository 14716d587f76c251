package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jupark12/model-processor/converter"
	"github.com/jupark12/model-processor/models"
	"github.com/jupark12/model-processor/store"
)

// multipartMemory is how much of an upload is buffered before spilling to disk
const multipartMemory = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleListModels returns every model, newest first
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListModels(r.Context())
	if err != nil {
		s.logger.Error("error fetching models", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch models")
		return
	}
	if list == nil {
		list = []models.Model{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetModel returns a model with its jobs
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	model, err := s.store.GetModelWithJobs(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Model not found")
		return
	}
	if err != nil {
		s.logger.Error("error fetching model", "model_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch model")
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// handleUpload stores a .glb file and queues its processing jobs
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("File exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("model")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(header.Filename)) != ".glb" {
		writeError(w, http.StatusBadRequest, "Only .glb files are allowed")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	fileURI, err := s.saveUpload(file)
	if err != nil {
		s.logger.Error("error saving upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload model")
		return
	}

	model, err := s.store.CreateModel(r.Context(), name, fileURI)
	if err != nil {
		s.logger.Error("error creating model", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload model")
		return
	}
	if err := s.createJobs(r, model.ID); err != nil {
		s.logger.Error("error creating jobs", "model_id", model.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload model")
		return
	}

	s.logger.Info("model uploaded", "model_id", model.ID, "name", name, "size", header.Size)
	writeJSON(w, http.StatusCreated, model)
}

// saveUpload writes the file under a unique name in the GLB directory
func (s *Server) saveUpload(src io.Reader) (string, error) {
	dir := s.cfg.GLBPath()
	if err := converter.EnsureDir(dir); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%d-%d.glb", time.Now().UnixMilli(), rand.Intn(1_000_000_000))
	path := filepath.Join(dir, filename)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) createJobs(r *http.Request, modelID string) error {
	for _, jt := range models.ProcessingJobTypes {
		if _, err := s.store.CreateJob(r.Context(), modelID, jt); err != nil {
			return err
		}
	}
	return nil
}

// handleReprocess appends a fresh pair of jobs to an existing model
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.store.GetModel(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Model not found")
			return
		}
		s.logger.Error("error reprocessing model", "model_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to reprocess model")
		return
	}

	if err := s.createJobs(r, id); err != nil {
		s.logger.Error("error reprocessing model", "model_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to reprocess model")
		return
	}

	s.logger.Info("reprocessing requested", "model_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Reprocessing jobs created"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleWebSocket streams model_update events to the browser
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade to WebSocket", "error", err)
		return
	}

	// The initial snapshot is written before registering so the manager
	// never writes to the connection concurrently.
	if list, err := s.store.ListModels(r.Context()); err == nil {
		initial, err := json.Marshal(map[string]any{
			"type":   "initial_models",
			"models": list,
		})
		if err == nil {
			conn.WriteMessage(websocket.TextMessage, initial)
		}
	}

	s.wsManager.RegisterClient(conn)

	// Client messages are ignored; a read error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				return
			}
		}
	}()
}
