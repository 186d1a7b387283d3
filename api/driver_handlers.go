package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/minio/minio-go/v7"

	"github.com/loadlane/delivery-ocr-service/internal/auth"
	"github.com/loadlane/delivery-ocr-service/internal/db"
	"github.com/loadlane/delivery-ocr-service/internal/storage"
)

// GetDriverDocuments - GET /api/slips/my-slips/
func (h *Handler) GetDriverDocuments(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, err := auth.GetClaimsFromContext(r.Context())
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 100 {
			limit = val
		}
	}

	docs, err := db.GetDriverDocuments(r.Context(), claims.FleetAlias, claims.UserID, limit)
	if err != nil {
		log.Printf("GetDriverDocuments error for driver %s: %v", claims.UserID, err)
		h.sendError(w, http.StatusInternalServerError, "failed to get documents")
		return
	}

	if docs == nil {
		docs = []db.Document{}
	}

	// Map to the driver app format
	mapped := make([]map[string]interface{}, len(docs))
	for i, doc := range docs {
		mapped[i] = documentToDriverApp(&doc)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"slips": mapped,
		"count": len(mapped),
	})
}

// GetDriverStats - GET /api/slips/summary
func (h *Handler) GetDriverStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, err := auth.GetClaimsFromContext(r.Context())
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	query := `SELECT
	    COUNT(*) as total,
	    COUNT(*) FILTER (WHERE stage = 'uploaded') as pending,
	    COUNT(*) FILTER (WHERE stage IN ('checked', 'approved', 'invoiced', 'archived')) as processed,
	    COALESCE(SUM(CASE WHEN end_km > start_km THEN end_km - start_km ELSE 0 END), 0) as total_km
	FROM delivery_documents
	WHERE fleet_alias = $1 AND driver_id = $2::uuid
	  AND DATE_TRUNC('month', created_at) = DATE_TRUNC('month', CURRENT_DATE)`

	var total, pending, processed, totalKm int
	err = db.Pool.QueryRow(r.Context(), query, claims.FleetAlias, claims.UserID).Scan(
		&total, &pending, &processed, &totalKm,
	)
	if err != nil {
		log.Printf("GetDriverStats error for driver %s: %v", claims.UserID, err)
		h.sendError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"summary": map[string]interface{}{
			"slips_month":     total,
			"slips_pending":   pending,
			"slips_processed": processed,
			"km_month":        totalKm,
		},
	})
}

// GetDriverDocument - GET /api/slips/{id}
func (h *Handler) GetDriverDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, err := auth.GetClaimsFromContext(r.Context())
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

	doc, err := db.GetDocumentByID(r.Context(), claims.FleetAlias, documentID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "slip not found")
		return
	}

	// Drivers only see their own slips
	if claims.Role == "driver" && doc.DriverID.String() != claims.UserID {
		h.sendError(w, http.StatusNotFound, "slip not found")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"slip": documentToDriverApp(doc),
	})
}

// DeleteDriverDocument - DELETE /api/slips/{id}
func (h *Handler) DeleteDriverDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, err := auth.GetClaimsFromContext(r.Context())
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

	doc, err := db.GetDocumentByID(r.Context(), claims.FleetAlias, documentID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "slip not found")
		return
	}
	if claims.Role == "driver" && doc.DriverID.String() != claims.UserID {
		h.sendError(w, http.StatusNotFound, "slip not found")
		return
	}

	// Slips that entered the approval chain stay
	if doc.Stage != "" && doc.Stage != "uploaded" {
		h.sendError(w, http.StatusConflict, "slip is already under review")
		return
	}

	if storage.Client != nil && doc.ImageURL != "" {
		_ = storage.DeleteImage(r.Context(), doc.ImageURL)
	}

	if err := db.DeleteDocument(r.Context(), claims.FleetAlias, documentID); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to delete slip")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "slip deleted",
	})
}

// ReprocessDriverDocument - POST /api/slips/{id}/reprocess
func (h *Handler) ReprocessDriverDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, err := auth.GetClaimsFromContext(r.Context())
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

	// Get existing document
	doc, err := db.GetDocumentByID(r.Context(), claims.FleetAlias, documentID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "slip not found")
		return
	}
	if claims.Role == "driver" && doc.DriverID.String() != claims.UserID {
		h.sendError(w, http.StatusNotFound, "slip not found")
		return
	}

	// Download image from MinIO
	if storage.Client == nil {
		h.sendError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	// Remove bucket prefix to get object name
	objectName := doc.ImageURL
	prefix := storage.BucketName + "/"
	if strings.HasPrefix(objectName, prefix) {
		objectName = objectName[len(prefix):]
	}

	obj, err := storage.Client.GetObject(r.Context(), storage.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		log.Printf("ReprocessDriverDocument: MinIO error: %v", err)
		h.sendError(w, http.StatusInternalServerError, "failed to retrieve image from storage")
		return
	}
	defer obj.Close()

	// Read image bytes
	imageData, err := io.ReadAll(obj)
	if err != nil {
		log.Printf("ReprocessDriverDocument: Read error: %v", err)
		h.sendError(w, http.StatusInternalServerError, "failed to read image")
		return
	}

	fields, ocrText, err := h.extractFields(
		r.Context(),
		imageData,
		h.config.Recognition.DefaultProvider,
		h.config.Recognition.Local.Language,
	)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "reprocessing failed: "+err.Error())
		return
	}

	fieldsJSON := ""
	if fj, err := json.Marshal(fields); err == nil {
		fieldsJSON = string(fj)
	}

	updates := map[string]interface{}{
		"sender":               fields.Sender,
		"receiver":             fields.Receiver,
		"slip_date":            fields.Date,
		"truck_reg":            fields.TruckReg,
		"trailer_reg":          fields.TrailerReg,
		"start_km":             fields.StartKm,
		"end_km":               fields.EndKm,
		"loading_arrived":      fields.LoadingArrived,
		"loading_completed":    fields.LoadingCompleted,
		"offloading_arrived":   fields.OffloadingArrived,
		"offloading_completed": fields.OffloadingCompleted,
	}
	if err := db.UpdateDocument(r.Context(), claims.FleetAlias, documentID, updates); err != nil {
		log.Printf("ReprocessDriverDocument: DB update error: %v", err)
		h.sendError(w, http.StatusInternalServerError, "failed to update slip in database")
		return
	}

	// Confidence, raw text and fields_json bypass the editable-field whitelist
	db.Pool.Exec(r.Context(),
		"UPDATE delivery_documents SET confidence = $1, ocr_raw = $2, fields_json = $3 WHERE fleet_alias = $4 AND id = $5::uuid",
		fields.Confidence, ocrText, fieldsJSON, claims.FleetAlias, documentID,
	)

	final, err := db.GetDocumentByID(r.Context(), claims.FleetAlias, documentID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to retrieve updated slip")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"slip":    documentToDriverApp(final),
		"message": "slip reprocessed",
	})
}

// GetDriverDocumentImage - GET /api/slips/{id}/image - Proxy MinIO image
// No JWT required - protected by UUID (not guessable)
func (h *Handler) GetDriverDocumentImage(w http.ResponseWriter, r *http.Request) {
	if storage.Client == nil {
		http.Error(w, "storage not available", http.StatusServiceUnavailable)
		return
	}

	vars := mux.Vars(r)
	documentID := vars["id"]

	if db.Pool == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	var imageURL string
	err := db.Pool.QueryRow(r.Context(),
		"SELECT COALESCE(image_url, '') FROM delivery_documents WHERE id = $1::uuid", documentID,
	).Scan(&imageURL)
	if err != nil || imageURL == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	// Remove bucket prefix to get object name
	objectName := imageURL
	prefix := storage.BucketName + "/"
	if strings.HasPrefix(objectName, prefix) {
		objectName = objectName[len(prefix):]
	}

	obj, err := storage.Client.GetObject(r.Context(), storage.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		log.Printf("GetDriverDocumentImage: MinIO error: %v", err)
		http.Error(w, "image not available", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		log.Printf("GetDriverDocumentImage: Stat error: %v", err)
		http.Error(w, "image not available", http.StatusInternalServerError)
		return
	}

	contentType := info.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "image/jpeg"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.Copy(w, obj)
}

// documentToDriverApp maps a stored document to the driver app slip shape
func documentToDriverApp(doc *db.Document) map[string]interface{} {
	totalKm := 0
	if doc.StartKm > 0 && doc.EndKm > doc.StartKm {
		totalKm = doc.EndKm - doc.StartKm
	}

	return map[string]interface{}{
		"id":          doc.ID,
		"sender":      doc.Sender,
		"receiver":    doc.Receiver,
		"date":        doc.SlipDate,
		"truckReg":    doc.TruckReg,
		"trailerReg":  doc.TrailerReg,
		"startKm":     doc.StartKm,
		"endKm":       doc.EndKm,
		"totalKm":     totalKm,
		"stage":       doc.Stage,
		"confidence":  doc.Confidence,
		"image_url":   fmt.Sprintf("/api/slips/%s/image", doc.ID),
		"created_at":  doc.CreatedAt,
	}
}
