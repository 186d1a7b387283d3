package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/otiai10/gosseract/v2"

	"github.com/loadlane/delivery-ocr-service/internal/auth"
	"github.com/loadlane/delivery-ocr-service/internal/db"
	"github.com/loadlane/delivery-ocr-service/internal/extract"
	"github.com/loadlane/delivery-ocr-service/internal/models"
	"github.com/loadlane/delivery-ocr-service/internal/recognize"
	"github.com/loadlane/delivery-ocr-service/internal/storage"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.3.0"
)

// Handler handles HTTP requests for delivery document processing
type Handler struct {
	config     *models.Config
	heuristics *extract.Extractor
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config) *Handler {
	return &Handler{
		config:     config,
		heuristics: extract.NewExtractor(config.Heuristics),
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Main endpoints
	router.HandleFunc("/api/process-document", h.ProcessDocument).Methods("POST")
	router.HandleFunc("/api/documents", h.GetDocuments).Methods("GET")

	// Document CRUD
	router.HandleFunc("/api/document/{id}", h.GetDocument).Methods("GET")
	router.HandleFunc("/api/document/{id}", h.UpdateDocument).Methods("PUT")
	router.HandleFunc("/api/document/{id}", h.DeleteDocument).Methods("DELETE")
	router.HandleFunc("/api/document/{id}/stage", h.UpdateDocumentStage).Methods("POST")

	// Statistics
	router.HandleFunc("/api/stats", h.GetStats).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	// === DRIVER APP ALIASES ===
	router.HandleFunc("/api/slips/upload/", h.ProcessDocument).Methods("POST")
	router.HandleFunc("/api/slips/my-slips/", h.GetDriverDocuments).Methods("GET")
	router.HandleFunc("/api/slips/summary", h.GetDriverStats).Methods("GET")
	router.HandleFunc("/api/slips/{id}/reprocess", h.ReprocessDriverDocument).Methods("POST")
	router.HandleFunc("/api/slips/{id}/image", h.GetDriverDocumentImage).Methods("GET")
	router.HandleFunc("/api/slips/{id}", h.GetDriverDocument).Methods("GET")
	router.HandleFunc("/api/slips/{id}", h.DeleteDriverDocument).Methods("DELETE")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   string            `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Memory      MemoryStats       `json:"memory"`
	Tesseract   ServiceStatus     `json:"tesseract"`
	ImageMagick ServiceStatus     `json:"imageMagick"`
	Database    ServiceStatus     `json:"database"`
	Storage     ServiceStatus     `json:"storage"`
	Recognition map[string]string `json:"recognition"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Check services
	tesseractStatus := h.checkTesseract()
	imageMagickStatus := h.checkImageMagick()
	databaseStatus := h.checkDatabase()
	storageStatus := h.checkStorage()

	// Build response
	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Tesseract:   tesseractStatus,
		ImageMagick: imageMagickStatus,
		Database:    databaseStatus,
		Storage:     storageStatus,
		Recognition: map[string]string{
			"defaultProvider": h.config.Recognition.DefaultProvider,
			"localLanguage":   h.config.Recognition.Local.Language,
		},
	}

	// Local OCR down means the fallback tiers are gone, mark as degraded
	if !tesseractStatus.Available || !imageMagickStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkTesseract verifies the Tesseract library is usable
func (h *Handler) checkTesseract() ServiceStatus {
	version := gosseract.Version()
	if version == "" {
		return ServiceStatus{
			Available: false,
			Error:     "tesseract library not found",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   version,
	}
}

// checkImageMagick verifies ImageMagick is available
func (h *Handler) checkImageMagick() ServiceStatus {
	cmd := exec.Command("magick", "-version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		cmd = exec.Command("convert", "-version")
		output, err = cmd.CombinedOutput()
	}

	if err != nil {
		return ServiceStatus{
			Available: false,
			Error:     "imagemagick not found or not executable",
		}
	}

	version := "unknown"
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		version = strings.TrimSpace(lines[0])
	}

	return ServiceStatus{
		Available: true,
		Version:   version,
	}
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL via PgBouncer",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// ProcessDocument handles delivery slip processing for office users and drivers
func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	requestStart := time.Now()

	// Get claims from JWT
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
		return
	}

	// Parse multipart form
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	err = r.ParseMultipartForm(MaxUploadSize)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	// Get file - accept both "file" and "image" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' or 'image' field)")
			return
		}
	}
	defer file.Close()

	// Read file bytes
	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	// Get optional parameters
	providerName := r.FormValue("provider")
	if providerName == "" {
		providerName = h.config.Recognition.DefaultProvider
	}
	language := r.FormValue("language")
	if language == "" {
		language = h.config.Recognition.Local.Language
	}

	// Generate unique filename
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	filename := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8],
		storage.GetFileExtension(contentType),
	)

	// Upload to MinIO (if configured)
	var imageURL string
	if storage.Client != nil {
		imageReader := bytes.NewReader(imageData)
		imageURL, err = storage.UploadSlipImage(
			ctx,
			claims.FleetAlias,
			filename,
			imageReader,
			int64(len(imageData)),
			contentType,
		)
		if err != nil {
			// Log but don't fail - image storage is optional
			fmt.Printf("Warning: failed to upload image to MinIO: %v\n", err)
		}
	}

	// Run the extraction pipeline
	fields, ocrText, err := h.extractFields(ctx, imageData, providerName, language)

	totalDuration := time.Since(requestStart).Seconds()

	if err != nil {
		status := http.StatusOK
		if errors.Is(err, extract.ErrNoImage) {
			status = http.StatusBadRequest
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       false,
			"error":         err.Error(),
			"totalDuration": totalDuration,
		})
		return
	}

	// Persist the document when a database is configured
	var savedDoc *db.Document
	if db.Pool != nil && fields != nil {
		fieldsJSON := ""
		if fj, err := json.Marshal(fields); err == nil {
			fieldsJSON = string(fj)
		}

		var driverID uuid.UUID
		if claims.Role == "driver" {
			if id, err := uuid.Parse(claims.UserID); err == nil {
				driverID = id
			}
		}

		doc := &db.Document{
			Sender:              fields.Sender,
			Receiver:            fields.Receiver,
			SlipDate:            fields.Date,
			TruckReg:            fields.TruckReg,
			TrailerReg:          fields.TrailerReg,
			StartKm:             fields.StartKm,
			EndKm:               fields.EndKm,
			LoadingArrived:      fields.LoadingArrived,
			LoadingCompleted:    fields.LoadingCompleted,
			OffloadingArrived:   fields.OffloadingArrived,
			OffloadingCompleted: fields.OffloadingCompleted,
			Confidence:          fields.Confidence,
			Source:              providerName,
			ImageURL:            imageURL,
			OCRRaw:              ocrText,
			FieldsJSON:          fieldsJSON,
			Stage:               models.StageUploaded,
			DriverID:            driverID,
		}

		if err := db.SaveDocument(ctx, claims.FleetAlias, doc); err != nil {
			fmt.Printf("Warning: failed to save document to DB: %v\n", err)
		} else {
			savedDoc = doc
		}
	}

	responseData := map[string]interface{}{
		"success":       true,
		"fields":        fields,
		"totalKm":       fields.TotalKm(),
		"imageUrl":      imageURL,
		"fleet_alias":   claims.FleetAlias,
		"totalDuration": totalDuration,
	}

	if savedDoc != nil {
		responseData["id"] = savedDoc.ID
		responseData["created_at"] = savedDoc.CreatedAt
		responseData["stage"] = savedDoc.Stage
		// Use the proxy URL so the driver app can load the image
		responseData["imageUrl"] = fmt.Sprintf("/api/slips/%s/image", savedDoc.ID)
		responseData["saved_to_db"] = true
	} else {
		responseData["saved_to_db"] = false
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(responseData)
}

// GetDocuments returns documents for the authenticated user's fleet
func (h *Handler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	docs, err := db.GetDocuments(ctx, claims.FleetAlias, 100)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get documents: %v", err))
		return
	}

	// Generate presigned URLs for images
	for i := range docs {
		if docs[i].ImageURL != "" && storage.Client != nil {
			if presignedURL, err := storage.GetPresignedURL(ctx, docs[i].ImageURL); err == nil {
				docs[i].ImageURL = presignedURL
			}
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"documents":   docs,
		"count":       len(docs),
		"fleet_alias": claims.FleetAlias,
	})
}

// GetDocument returns a single document
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	documentID := vars["id"]

	doc, err := db.GetDocumentByID(ctx, claims.FleetAlias, documentID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, fmt.Sprintf("document not found: %v", err))
		return
	}

	// Generate presigned URL for image
	if doc.ImageURL != "" && storage.Client != nil {
		if presignedURL, err := storage.GetPresignedURL(ctx, doc.ImageURL); err == nil {
			doc.ImageURL = presignedURL
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"document":    doc,
		"fleet_alias": claims.FleetAlias,
	})
}

// UpdateDocument updates document fields after office review
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	documentID := vars["id"]

	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Only allow certain fields to be updated
	allowed := map[string]bool{
		"sender":               true,
		"receiver":             true,
		"slip_date":            true,
		"truck_reg":            true,
		"trailer_reg":          true,
		"start_km":             true,
		"end_km":               true,
		"loading_arrived":      true,
		"loading_completed":    true,
		"offloading_arrived":   true,
		"offloading_completed": true,
	}
	filtered := make(map[string]interface{})
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}

	if len(filtered) == 0 {
		h.sendError(w, http.StatusBadRequest, "no valid fields to update")
		return
	}

	if err := db.UpdateDocument(ctx, claims.FleetAlias, documentID, filtered); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to update document")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "document updated",
	})
}

// StageRequest is the body of a stage transition request
type StageRequest struct {
	Stage string `json:"stage"`
}

// UpdateDocumentStage moves a document through the approval workflow
func (h *Handler) UpdateDocumentStage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	documentID := vars["id"]

	var req StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !models.ValidStage(req.Stage) {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage: %s", req.Stage))
		return
	}

	doc, err := db.GetDocumentByID(ctx, claims.FleetAlias, documentID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "document not found")
		return
	}

	if !models.CanTransition(doc.Stage, req.Stage) {
		h.sendError(w, http.StatusConflict,
			fmt.Sprintf("cannot move document from %s to %s", doc.Stage, req.Stage))
		return
	}

	if err := db.UpdateStage(ctx, claims.FleetAlias, documentID, req.Stage); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to update stage")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"stage":   req.Stage,
	})
}

// DeleteDocument removes a document
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	documentID := vars["id"]

	// Optionally: delete image from MinIO
	if storage.Client != nil {
		doc, err := db.GetDocumentByID(ctx, claims.FleetAlias, documentID)
		if err == nil && doc.ImageURL != "" {
			// Delete image (ignore errors)
			_ = storage.DeleteImage(ctx, doc.ImageURL)
		}
	}

	if err := db.DeleteDocument(ctx, claims.FleetAlias, documentID); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "document deleted",
	})
}

// GetStats returns monthly statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	stats, err := db.GetMonthlyStats(ctx, claims.FleetAlias)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"stats":       stats,
		"fleet_alias": claims.FleetAlias,
	})
}

// extractFields runs the tiered extraction pipeline on one image
func (h *Handler) extractFields(
	ctx context.Context,
	imageData []byte,
	providerName string,
	language string,
) (*models.FieldSet, string, error) {
	remote, err := h.createProvider(providerName)
	if err != nil {
		return nil, "", err
	}

	local := recognize.NewLocalEngine(language)
	orchestrator := extract.NewOrchestrator(remote, local, h.heuristics, h.config.Recognition)
	return orchestrator.Extract(ctx, imageData)
}

// createProvider creates the structured recognition provider
func (h *Handler) createProvider(providerName string) (recognize.Provider, error) {
	switch providerName {
	case "remote":
		return recognize.NewRemoteProvider(
			h.config.Recognition.Remote.Endpoint,
			h.config.Recognition.Remote.APIKey,
		), nil

	case "openai":
		return recognize.NewOpenAIProvider(
			h.config.Recognition.OpenAI.APIKey,
			h.config.Recognition.OpenAI.BaseURL,
			h.config.Recognition.OpenAI.Model,
		), nil

	case "gemini":
		return recognize.NewGeminiProvider(
			h.config.Recognition.Gemini.APIKey,
			h.config.Recognition.Gemini.Model,
		), nil

	default:
		return nil, fmt.Errorf("unsupported recognition provider: %s", providerName)
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
