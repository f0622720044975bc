package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"clipdash/src/directors"
	"clipdash/src/engine"
	"clipdash/src/errs"

	"github.com/go-chi/chi/v5"
)

// writeJSON writes a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnf("Could not encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsConflict(err):
		status = http.StatusConflict
	case errs.IsConnection(err):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// recordID converts a path segment into a primary key value using the
// collection's key type: auto-increment collections take integer keys,
// everything else keeps the raw string so caller-supplied keys that look
// numeric stay reachable.
func (s *Server) recordID(dbID, collection, raw string) interface{} {
	if descriptor, err := s.manager.Registry.Lookup(dbID); err == nil {
		if schema, ok := descriptor.Collections[collection]; ok && !schema.AutoIncrement {
			return raw
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "clipdash",
		"version": s.settings.Version,
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Registry.Templates().List())
}

func (s *Server) handleRegisterDatabase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatabaseID  string                             `json:"database_id"`
		Name        string                             `json:"name"`
		Description string                             `json:"description"`
		Template    string                             `json:"template"`
		Schema      map[string]engine.CollectionSchema `json:"schema"`
		Category    string                             `json:"category"`
		AutoConnect bool                               `json:"auto_connect"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}

	descriptor, err := s.manager.RegisterDatabase(directors.RegisterRequest{
		DatabaseID:  req.DatabaseID,
		Name:        req.Name,
		Description: req.Description,
		Template:    req.Template,
		Schema:      req.Schema,
		Category:    req.Category,
		AutoConnect: req.AutoConnect,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, descriptor)
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	filter := directors.ListFilter{
		Category: r.URL.Query().Get("category"),
		Status:   r.URL.Query().Get("status"),
		SortBy:   r.URL.Query().Get("sort_by"),
	}
	s.writeJSON(w, http.StatusOK, s.manager.Registry.List(filter))
}

func (s *Server) handleGetDatabase(w http.ResponseWriter, r *http.Request) {
	descriptor, err := s.manager.Registry.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, descriptor)
}

func (s *Server) handleRemoveDatabase(w http.ResponseWriter, r *http.Request) {
	options := directors.RemoveOptions{
		DeleteUnderlyingData: r.URL.Query().Get("delete_data") == "true",
		BackupFirst:          r.URL.Query().Get("backup_first") == "true",
	}
	backup, err := s.manager.RemoveDatabase(chi.URLParam(r, "id"), options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if backup != nil {
		s.writeJSON(w, http.StatusOK, backup)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.manager.Connections.Connect(id); err != nil {
		s.writeError(w, err)
		return
	}
	descriptor, err := s.manager.Registry.Lookup(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, descriptor)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Connections.Disconnect(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string                  `json:"name"`
		Schema engine.CollectionSchema `json:"schema"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	if err := s.manager.Registry.AddCollection(chi.URLParam(r, "id"), req.Name, req.Schema); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRefreshStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Connections.RefreshStats(id); err != nil {
		s.writeError(w, err)
		return
	}
	descriptor, err := s.manager.Registry.Lookup(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, descriptor)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var data engine.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	rec, err := s.manager.Crud.Create(chi.URLParam(r, "id"), chi.URLParam(r, "collection"), data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleReadRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	options := engine.ReadOptions{
		IndexName: query.Get("index_name"),
		SortBy:    query.Get("sort_by"),
		SortOrder: query.Get("sort_order"),
	}
	if raw := query.Get("index_value"); raw != "" {
		options.IndexValue = raw
	}
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, errs.New(errs.KindValidation, "limit must be an integer"))
			return
		}
		options.Limit = n
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, errs.New(errs.KindValidation, "offset must be an integer"))
			return
		}
		options.Offset = n
	}

	result, err := s.manager.Crud.Read(chi.URLParam(r, "id"), chi.URLParam(r, "collection"), options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, collection := chi.URLParam(r, "id"), chi.URLParam(r, "collection")
	rec, err := s.manager.Crud.Get(id, collection,
		s.recordID(id, collection, chi.URLParam(r, "recordID")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var patch engine.Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	id, collection := chi.URLParam(r, "id"), chi.URLParam(r, "collection")
	rec, err := s.manager.Crud.Update(id, collection,
		s.recordID(id, collection, chi.URLParam(r, "recordID")), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, collection := chi.URLParam(r, "id"), chi.URLParam(r, "collection")
	err := s.manager.Crud.Delete(id, collection,
		s.recordID(id, collection, chi.URLParam(r, "recordID")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	var records []engine.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	created, err := s.manager.Crud.BulkCreate(chi.URLParam(r, "id"), chi.URLParam(r, "collection"), records)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var ids []interface{}
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	for i, id := range ids {
		if f, ok := id.(float64); ok && f == float64(int64(f)) {
			ids[i] = int64(f)
		}
	}
	if err := s.manager.Crud.BulkDelete(chi.URLParam(r, "id"), chi.URLParam(r, "collection"), ids); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCountRecords(w http.ResponseWriter, r *http.Request) {
	count, err := s.manager.Crud.Count(chi.URLParam(r, "id"), chi.URLParam(r, "collection"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	options := directors.SearchOptions{
		Databases:   splitParam(query.Get("databases")),
		Collections: splitParam(query.Get("collections")),
		Fields:      splitParam(query.Get("fields")),
	}
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, errs.New(errs.KindValidation, "limit must be an integer"))
			return
		}
		options.Limit = n
	}

	results, err := s.manager.Search.Search(query.Get("q"), options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	document, err := s.manager.Transfer.Backup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, document)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	options := directors.ExportOptions{
		Format:      query.Get("format"),
		Collections: splitParam(query.Get("collections")),
	}
	data, err := s.manager.Transfer.Export(chi.URLParam(r, "id"), options)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if strings.ToLower(options.Format) == directors.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warnf("Could not write export response: %v", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var document engine.BackupDocument
	if err := json.NewDecoder(r.Body).Decode(&document); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	options := directors.ImportOptions{
		Overwrite:  r.URL.Query().Get("overwrite") == "true",
		Collection: r.URL.Query().Get("collection"),
	}
	imported, err := s.manager.Transfer.Import(chi.URLParam(r, "id"), &document, options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IncludeClipboard bool `json:"include_clipboard"`
		IncludeBookmarks bool `json:"include_bookmarks"`
		IncludeHistory   bool `json:"include_history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	report, err := s.manager.Transfer.Merge(directors.MergeOptions{
		IncludeClipboard: req.IncludeClipboard,
		IncludeBookmarks: req.IncludeBookmarks,
		IncludeHistory:   req.IncludeHistory,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAddRelationship(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceDB         string `json:"source_db"`
		TargetDB         string `json:"target_db"`
		RelationshipType string `json:"relationship_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	relationship, err := s.manager.Registry.AddRelationship(req.SourceDB, req.TargetDB, req.RelationshipType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, relationship)
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Registry.ListRelationships(r.URL.Query().Get("database")))
}

func (s *Server) handleSeedClipboard(w http.ResponseWriter, r *http.Request) {
	if s.seeder == nil {
		s.writeError(w, errs.New(errs.KindValidation, "no clipboard service configured"))
		return
	}
	var req struct {
		DatabaseID string `json:"database_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	seeded, err := s.seeder.Seed(r.Context(), req.DatabaseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"seeded": seeded})
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.KindValidation, "invalid request body", err))
		return
	}
	if err := s.users.AddUser(req.Username, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteUser(chi.URLParam(r, "username")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// splitParam turns a comma-separated query parameter into a slice.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
