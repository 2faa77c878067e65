package purchase

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds receipt uploads; high-resolution phone photos are large
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message} with the given status
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// criteriaFromRequest parses filter criteria from the query string
func criteriaFromRequest(w http.ResponseWriter, r *http.Request) (FilterCriteria, bool) {
	c, err := ParseFilterCriteria(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return FilterCriteria{}, false
	}
	return c, true
}

// handleListRecords returns the filtered records, newest first
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	c, ok := criteriaFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.service.ListRecords(c))
}

// handleSummary returns the filtered records with count, total and average price
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	c, ok := criteriaFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Summary(c))
}

// handleGetRecord returns a single record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, found := s.service.GetRecord(r.PathValue("id"))
	if !found {
		corsError(w, "Record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleCreateRecord stores a new record
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.service.CreateRecord(in)
	if err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error creating record", "error", err)
		jsonError(w, "Error saving record", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleUpdateRecord merges the request body into an existing record
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var patch RecordPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	record, found, err := s.service.UpdateRecord(id, patch)
	if err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error updating record", "id", id, "error", err)
		jsonError(w, "Error saving record", http.StatusInternalServerError)
		return
	}
	if !found {
		corsError(w, "Record not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleDeleteRecord deletes a record
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := s.service.DeleteRecord(id)
	if err != nil {
		slog.Error("Error deleting record", "id", id, "error", err)
		corsError(w, "Error deleting record", http.StatusInternalServerError)
		return
	}
	if !found {
		corsError(w, "Record not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleOptions returns the distinct values for every filter control
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Options())
}

// handleFieldOptions returns the distinct values of one field
func (s *Server) handleFieldOptions(w http.ResponseWriter, r *http.Request) {
	values, err := s.service.DistinctValues(Field(r.PathValue("field")))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// handleScan extracts record fields from an uploaded receipt photo.
// A photo nothing could be read from still answers 200 with empty fields.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		jsonError(w, "The uploaded file is empty.", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromExt(header.Filename)
	}

	result := s.service.ScanImage(r.Context(), header.Filename, data, contentType)
	writeJSON(w, http.StatusOK, result)
}

// contentTypeFromExt guesses an image MIME type from a filename; empty when unknown
func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return ""
}

// handleExport returns the filtered records as an XLSX download
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, ok := criteriaFromRequest(w, r)
	if !ok {
		return
	}

	data, err := s.service.Export(c)
	if err != nil {
		slog.Error("Error exporting records", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="coffee-records.xlsx"`)
	w.Write(data)
}
