package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/loadlane/delivery-ocr-service/internal/db"
)

// DriverLoginRequest - fleet number plus PIN login for drivers
type DriverLoginRequest struct {
	FleetNumber string `json:"fleet_number"`
	PIN         string `json:"pin"`
}

// DriverLoginResponse - login response for drivers
type DriverLoginResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token,omitempty"`
	Driver  *DriverInfo `json:"driver,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// DriverInfo - driver profile data
type DriverInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FleetNumber string `json:"fleetNumber"`
	Phone       string `json:"phone,omitempty"`
	TruckReg    string `json:"truckReg,omitempty"`
	LastAccess  string `json:"lastAccess,omitempty"`
}

// DriverMeResponse - session check response
type DriverMeResponse struct {
	Success bool         `json:"success"`
	Driver  *DriverInfo  `json:"driver,omitempty"`
	Stats   *DriverStats `json:"stats,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// DriverStats - per-driver document counts
type DriverStats struct {
	SlipsPending   int `json:"slipsPending"`
	SlipsProcessed int `json:"slipsProcessed"`
}

// DriverLoginHandler - POST /api/drivers/login/
func DriverLoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if db.Pool == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(DriverLoginResponse{
			Success: false,
			Error:   "authentication service unavailable",
		})
		return
	}

	if r.Method != http.MethodPost {
		json.NewEncoder(w).Encode(DriverLoginResponse{
			Success: false,
			Error:   "method not allowed",
		})
		return
	}

	var req DriverLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		json.NewEncoder(w).Encode(DriverLoginResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	// Normalize fleet number (drop spaces and dashes)
	fleetNumber := strings.ReplaceAll(strings.ReplaceAll(req.FleetNumber, "-", ""), " ", "")

	if fleetNumber == "" || req.PIN == "" {
		json.NewEncoder(w).Encode(DriverLoginResponse{
			Success: false,
			Error:   "fleet number and PIN are required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	query := `SELECT id, name, fleet_number, phone, truck_reg,
	                 pin_hash, last_access_app, fleet_alias
	          FROM drivers
	          WHERE REPLACE(REPLACE(fleet_number, '-', ''), ' ', '') = $1
	          AND app_active = true
	          AND (pin_locked_until IS NULL OR pin_locked_until < NOW())`

	var id, name, fleetNumberDB string
	var phone, truckReg, pinHash, fleetAlias *string
	var lastAccess *time.Time

	err := db.Pool.QueryRow(ctx, query, fleetNumber).Scan(
		&id, &name, &fleetNumberDB, &phone, &truckReg, &pinHash, &lastAccess, &fleetAlias,
	)

	if err != nil || pinHash == nil {
		json.NewEncoder(w).Encode(DriverLoginResponse{
			Success: false,
			Error:   "fleet number or PIN incorrect",
		})
		return
	}

	// Verify PIN with bcrypt
	if err := bcrypt.CompareHashAndPassword([]byte(*pinHash), []byte(req.PIN)); err != nil {
		// Increment failed attempts, lock after five
		go func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			db.Pool.Exec(ctx2, `UPDATE drivers SET pin_attempts = COALESCE(pin_attempts, 0) + 1,
			                   pin_locked_until = CASE WHEN COALESCE(pin_attempts, 0) >= 4
			                   THEN NOW() + INTERVAL '30 minutes' ELSE NULL END
			                   WHERE id = $1::uuid`, id)
		}()
		json.NewEncoder(w).Encode(DriverLoginResponse{
			Success: false,
			Error:   "fleet number or PIN incorrect",
		})
		return
	}

	token, err := GenerateToken(id, "", safeString(fleetAlias), name, "driver")
	if err != nil {
		json.NewEncoder(w).Encode(DriverLoginResponse{
			Success: false,
			Error:   "failed to generate token",
		})
		return
	}

	// Clear failed attempts and record the login
	go func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		db.Pool.Exec(ctx2, `UPDATE drivers SET
		    last_access_app = NOW(),
		    pin_attempts = 0,
		    pin_locked_until = NULL
		    WHERE id = $1::uuid`, id)
	}()

	var lastAccessStr string
	if lastAccess != nil {
		lastAccessStr = lastAccess.Format(time.RFC3339)
	}

	json.NewEncoder(w).Encode(DriverLoginResponse{
		Success: true,
		Token:   token,
		Driver: &DriverInfo{
			ID:          id,
			Name:        name,
			FleetNumber: fleetNumberDB,
			Phone:       safeString(phone),
			TruckReg:    safeString(truckReg),
			LastAccess:  lastAccessStr,
		},
	})
}

// DriverMeHandler - GET /api/drivers/me/
func DriverMeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if db.Pool == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(DriverMeResponse{
			Success: false,
			Error:   "service unavailable",
		})
		return
	}

	ctx := r.Context()
	claims, err := GetClaimsFromContext(ctx)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(DriverMeResponse{
			Success: false,
			Error:   "unauthorized",
		})
		return
	}

	query := `SELECT id, name, fleet_number, phone, truck_reg, last_access_app
	          FROM drivers
	          WHERE id = $1::uuid AND app_active = true`

	var id, name, fleetNumber string
	var phone, truckReg *string
	var lastAccess *time.Time

	err = db.Pool.QueryRow(ctx, query, claims.UserID).Scan(
		&id, &name, &fleetNumber, &phone, &truckReg, &lastAccess,
	)

	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(DriverMeResponse{
			Success: false,
			Error:   "driver not found",
		})
		return
	}

	// Per-driver slip counts
	statsQuery := `SELECT
	    COUNT(*) FILTER (WHERE stage = 'uploaded') as pending,
	    COUNT(*) FILTER (WHERE stage IN ('checked', 'approved', 'invoiced', 'archived')) as processed
	FROM delivery_documents WHERE driver_id = $1::uuid`

	var pending, processed int
	db.Pool.QueryRow(ctx, statsQuery, claims.UserID).Scan(&pending, &processed)

	var lastAccessStr string
	if lastAccess != nil {
		lastAccessStr = lastAccess.Format(time.RFC3339)
	}

	json.NewEncoder(w).Encode(DriverMeResponse{
		Success: true,
		Driver: &DriverInfo{
			ID:          id,
			Name:        name,
			FleetNumber: fleetNumber,
			Phone:       safeString(phone),
			TruckReg:    safeString(truckReg),
			LastAccess:  lastAccessStr,
		},
		Stats: &DriverStats{
			SlipsPending:   pending,
			SlipsProcessed: processed,
		},
	})
}

func safeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
