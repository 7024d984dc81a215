package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/internal/storage"
)

func (s *Server) handleSearchPersons(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := models.SearchQuery{
		Query: params.Get("query"),
		Type:  params.Get("type_query"),
	}
	if raw := params.Get("fields"); raw != "" {
		query.Fields = strings.Split(raw, ",")
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		query.Limit = limit
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.String("type_query", query.Type))

	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		if index.IsQueryError(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var input models.PersonInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := &models.Person{}
	input.Apply(p)
	if err := s.persons.CreatePerson(r.Context(), p); err != nil {
		s.logger.Error("create person failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.personID(w, r)
	if !ok {
		return
	}
	p, err := s.persons.GetPerson(r.Context(), id)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.personID(w, r)
	if !ok {
		return
	}
	var input models.PersonInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.persons.GetPerson(r.Context(), id)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	input.Apply(p)
	if err := s.persons.UpdatePerson(r.Context(), p); err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.personID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("delete person request", zap.Int64("id", id))
	if err := s.persons.DeletePerson(r.Context(), id); err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	persons, err := s.persons.CountPersons(r.Context())
	if err != nil {
		s.logger.Error("status: count persons failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	docs, err := s.index.DocCount()
	if err != nil {
		s.logger.Error("status: count index documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"persons":          persons,
		"index_documents":  docs,
		"index_generation": s.index.Generation(),
		"in_sync":          uint64(persons) == docs,
	}
	if s.sync != nil {
		resp["sync_failures"] = s.sync.Failures()
	}
	if s.config != nil {
		paths := append(storage.DatabaseFiles(s.config.Storage.DatabasePath), s.config.Storage.IndexPath)
		if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
		resp["config"] = map[string]interface{}{
			"database_path": s.config.Storage.DatabasePath,
			"index_path":    s.config.Storage.IndexPath,
			"search_fields": s.config.Search.Fields,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) personID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid person id")
		return 0, false
	}
	return id, true
}

func (s *Server) respondStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "person not found")
		return
	}
	s.logger.Error("storage operation failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
