package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-catcher/internal/delivery"
	"github.com/zombor/receipt-catcher/internal/imaging"
)

// maxFormSize caps an upload request; high-resolution phone photos are large
const maxFormSize = int64(50 << 20)

const tooLargeMessage = "Files are too large. Maximum upload size is 50MB."

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleGetState returns the wizard state
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSession(s.service.State()))
}

// handleUploadImages adds every file of the multipart form to the wizard
func (s *Server) handleUploadImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLargeMessage)
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose one or more images to upload.")
		return
	}

	payloads := make([]imaging.Payload, 0, len(headers))
	for _, header := range headers {
		p, err := readPayload(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}
		payloads = append(payloads, p)
	}

	if _, err := s.service.AddImages(payloads); err != nil {
		slog.Error("Error adding images", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, newSession(s.service.State()))
}

// readPayload reads an uploaded file and settles its content type
func readPayload(header *multipart.FileHeader) (imaging.Payload, error) {
	f, err := header.Open()
	if err != nil {
		return imaging.Payload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return imaging.Payload{}, err
	}

	return imaging.Payload{
		Name:        header.Filename,
		ContentType: detectContentType(header.Filename, header.Header.Get("Content-Type")),
		Data:        data,
	}, nil
}

// detectContentType trusts the declared type unless it is missing or generic
func detectContentType(filename, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return imaging.NormalizeContentType(declared)
	}

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
	default:
		return "application/octet-stream"
	}
}

// handleClearImages removes all images
func (s *Server) handleClearImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSession(s.service.Clear()))
}

// handleGetPreview returns the preview of an image
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.Preview(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Preview not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// handleSetSelection includes or excludes an image from sending
func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selected *bool `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Selected == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.SetSelection(r.PathValue("id"), *req.Selected); err != nil {
		if errors.Is(err, ErrImageNotFound) {
			writeError(w, http.StatusNotFound, "Image not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, newSession(s.service.State()))
}

// handleGetConfig returns the delivery configuration
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.State().Config)
}

// handleUpdateConfig applies a partial edit to the delivery configuration
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update delivery.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := s.service.UpdateConfig(update)
	if err != nil {
		slog.Error("Error saving delivery config", "error", err)
		writeError(w, http.StatusInternalServerError, "Error saving configuration")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleNext moves the wizard forward
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSession(s.service.Next()))
}

// handleBack moves the wizard back
func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSession(s.service.Back()))
}

// handleDismissNotice clears the notice
func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSession(s.service.DismissNotice()))
}

// handleSend emails the selected receipts. Sending is not cancelled when the
// client disconnects.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Send(context.WithoutCancel(r.Context()))
	if errors.Is(err, ErrBusy) {
		writeJSON(w, http.StatusConflict, delivery.Report{Success: false, Message: "Please wait for processing to finish"})
		return
	}
	if err != nil {
		slog.Error("Error sending receipts", "error", err)
		writeJSON(w, http.StatusBadRequest, report)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
