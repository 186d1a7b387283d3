package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID                  uuid.UUID  `json:"id"`
	Sender              string     `json:"sender"`
	Receiver            string     `json:"receiver"`
	SlipDate            string     `json:"slip_date"`
	TruckReg            string     `json:"truck_reg"`
	TrailerReg          string     `json:"trailer_reg"`
	StartKm             int        `json:"start_km"`
	EndKm               int        `json:"end_km"`
	LoadingArrived      string     `json:"loading_arrived"`
	LoadingCompleted    string     `json:"loading_completed"`
	OffloadingArrived   string     `json:"offloading_arrived"`
	OffloadingCompleted string     `json:"offloading_completed"`
	Confidence          float64    `json:"confidence"`
	Source              string     `json:"source"`
	ImageURL            string     `json:"image_url"`
	OCRRaw              string     `json:"ocr_raw"`
	FieldsJSON          string     `json:"fields_json"`
	Stage               string     `json:"stage"`
	DriverID            uuid.UUID  `json:"driver_id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

func SaveDocument(ctx context.Context, fleetAlias string, doc *Document) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	query := `
		INSERT INTO delivery_documents (
			fleet_alias, sender, receiver, slip_date, truck_reg, trailer_reg,
			start_km, end_km, loading_arrived, loading_completed,
			offloading_arrived, offloading_completed, confidence, source,
			image_url, ocr_raw, fields_json, stage, driver_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at
	`

	err := Pool.QueryRow(ctx, query,
		fleetAlias, doc.Sender, doc.Receiver, doc.SlipDate, doc.TruckReg, doc.TrailerReg,
		doc.StartKm, doc.EndKm, doc.LoadingArrived, doc.LoadingCompleted,
		doc.OffloadingArrived, doc.OffloadingCompleted, doc.Confidence, doc.Source,
		doc.ImageURL, doc.OCRRaw, doc.FieldsJSON, doc.Stage, doc.DriverID,
	).Scan(&doc.ID, &doc.CreatedAt)

	return err
}

func GetDocuments(ctx context.Context, fleetAlias string, limit int) ([]Document, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, COALESCE(sender, ''), COALESCE(receiver, ''), COALESCE(slip_date, ''),
		       COALESCE(truck_reg, ''), COALESCE(trailer_reg, ''),
		       COALESCE(start_km, 0), COALESCE(end_km, 0),
		       COALESCE(confidence, 0), COALESCE(source, ''), COALESCE(image_url, ''),
		       COALESCE(stage, ''), created_at
		FROM delivery_documents
		WHERE fleet_alias = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := Pool.Query(ctx, query, fleetAlias, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		err := rows.Scan(
			&doc.ID, &doc.Sender, &doc.Receiver, &doc.SlipDate,
			&doc.TruckReg, &doc.TrailerReg,
			&doc.StartKm, &doc.EndKm,
			&doc.Confidence, &doc.Source, &doc.ImageURL,
			&doc.Stage, &doc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// GetDocumentByID retrieves a single delivery document by ID
func GetDocumentByID(ctx context.Context, fleetAlias string, documentID string) (*Document, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, COALESCE(sender, ''), COALESCE(receiver, ''), COALESCE(slip_date, ''),
		       COALESCE(truck_reg, ''), COALESCE(trailer_reg, ''),
		       COALESCE(start_km, 0), COALESCE(end_km, 0),
		       COALESCE(loading_arrived, ''), COALESCE(loading_completed, ''),
		       COALESCE(offloading_arrived, ''), COALESCE(offloading_completed, ''),
		       COALESCE(confidence, 0), COALESCE(source, ''), COALESCE(image_url, ''),
		       COALESCE(ocr_raw, ''), COALESCE(fields_json::text, ''), COALESCE(stage, ''),
		       COALESCE(driver_id, '00000000-0000-0000-0000-000000000000'::uuid), created_at, updated_at
		FROM delivery_documents
		WHERE fleet_alias = $1 AND id = $2
	`

	var doc Document
	err := Pool.QueryRow(ctx, query, fleetAlias, documentID).Scan(
		&doc.ID, &doc.Sender, &doc.Receiver, &doc.SlipDate,
		&doc.TruckReg, &doc.TrailerReg,
		&doc.StartKm, &doc.EndKm,
		&doc.LoadingArrived, &doc.LoadingCompleted,
		&doc.OffloadingArrived, &doc.OffloadingCompleted,
		&doc.Confidence, &doc.Source, &doc.ImageURL,
		&doc.OCRRaw, &doc.FieldsJSON, &doc.Stage,
		&doc.DriverID, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDriverDocuments retrieves documents uploaded by a specific driver
func GetDriverDocuments(ctx context.Context, fleetAlias string, driverID string, limit int) ([]Document, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id, COALESCE(sender, ''), COALESCE(receiver, ''), COALESCE(slip_date, ''),
		       COALESCE(truck_reg, ''), COALESCE(trailer_reg, ''),
		       COALESCE(start_km, 0), COALESCE(end_km, 0),
		       COALESCE(confidence, 0), COALESCE(source, ''), COALESCE(image_url, ''),
		       COALESCE(stage, ''), created_at
		FROM delivery_documents
		WHERE fleet_alias = $1 AND driver_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := Pool.Query(ctx, query, fleetAlias, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		err := rows.Scan(
			&doc.ID, &doc.Sender, &doc.Receiver, &doc.SlipDate,
			&doc.TruckReg, &doc.TrailerReg,
			&doc.StartKm, &doc.EndKm,
			&doc.Confidence, &doc.Source, &doc.ImageURL,
			&doc.Stage, &doc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// allowedDocumentFields lists the columns office users may edit directly.
var allowedDocumentFields = map[string]bool{
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

// UpdateDocument updates editable document fields
func UpdateDocument(ctx context.Context, fleetAlias string, documentID string, updates map[string]interface{}) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	// Build dynamic UPDATE query from the whitelisted fields
	sets := []string{}
	args := []interface{}{}
	i := 1
	for key, value := range updates {
		if !allowedDocumentFields[key] {
			return fmt.Errorf("field not editable: %s", key)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", key, i))
		args = append(args, value)
		i++
	}
	if len(sets) == 0 {
		return fmt.Errorf("no fields to update")
	}

	sets = append(sets, fmt.Sprintf("updated_at = $%d", i))
	args = append(args, time.Now())
	i++

	args = append(args, fleetAlias, documentID)

	query := fmt.Sprintf("UPDATE delivery_documents SET %s WHERE fleet_alias = $%d AND id = $%d",
		strings.Join(sets, ", "), i, i+1)

	_, err := Pool.Exec(ctx, query, args...)
	return err
}

// UpdateStage moves a document to a new workflow stage
func UpdateStage(ctx context.Context, fleetAlias string, documentID string, stage string) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	query := `
		UPDATE delivery_documents
		SET stage = $1, updated_at = $2
		WHERE fleet_alias = $3 AND id = $4
	`
	_, err := Pool.Exec(ctx, query, stage, time.Now(), fleetAlias, documentID)
	return err
}

// DeleteDocument removes a delivery document
func DeleteDocument(ctx context.Context, fleetAlias string, documentID string) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	query := "DELETE FROM delivery_documents WHERE fleet_alias = $1 AND id = $2"
	_, err := Pool.Exec(ctx, query, fleetAlias, documentID)
	return err
}

// MonthlyStats represents monthly statistics
type MonthlyStats struct {
	Month          string `json:"month"`
	TotalDocuments int    `json:"total_documents"`
	TotalKm        int    `json:"total_km"`
	PendingReview  int    `json:"pending_review"`
	Approved       int    `json:"approved"`
}

// GetMonthlyStats returns statistics for the current month
func GetMonthlyStats(ctx context.Context, fleetAlias string) (*MonthlyStats, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT
			COUNT(*) as total_documents,
			COALESCE(SUM(CASE WHEN end_km > start_km THEN end_km - start_km ELSE 0 END), 0) as total_km,
			COUNT(*) FILTER (WHERE stage = 'uploaded') as pending_review,
			COUNT(*) FILTER (WHERE stage IN ('approved', 'invoiced', 'archived')) as approved
		FROM delivery_documents
		WHERE fleet_alias = $1
		  AND DATE_TRUNC('month', created_at) = DATE_TRUNC('month', CURRENT_DATE)
	`

	stats := &MonthlyStats{
		Month: time.Now().Format("2006-01"),
	}

	err := Pool.QueryRow(ctx, query, fleetAlias).Scan(
		&stats.TotalDocuments,
		&stats.TotalKm,
		&stats.PendingReview,
		&stats.Approved,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
