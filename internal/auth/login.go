package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/loadlane/delivery-ocr-service/internal/db"
)

// LoginRequest represents the office login request body
type LoginRequest struct {
	FleetAlias string `json:"fleet_alias"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// LoginResponse represents the successful login response
type LoginResponse struct {
	Token      string `json:"token"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	FleetAlias string `json:"fleet_alias"`
	FleetName  string `json:"fleet_name"`
}

// LoginHandler handles office user authentication
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	if db.Pool == nil {
		http.Error(w, `{"error":"authentication service unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.FleetAlias == "" || req.Email == "" || req.Password == "" {
		http.Error(w, `{"error":"fleet_alias, email and password are required"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Call PostgreSQL function verify_login
	query := `SELECT user_id, email, name, role, fleet_alias, fleet_name
             FROM public.verify_login($1, $2, $3)`

	var userID, email, name, role, fleetAlias, fleetName string
	err := db.Pool.QueryRow(ctx, query, req.FleetAlias, req.Email, req.Password).Scan(
		&userID, &email, &name, &role, &fleetAlias, &fleetName,
	)

	if err != nil {
		// No user found or wrong password
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	// Generate JWT
	token, err := GenerateToken(userID, email, fleetAlias, name, role)
	if err != nil {
		http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
		return
	}

	// Update last login in background
	go func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		db.Pool.Exec(ctx2, "SELECT public.record_login($1, $2::uuid)", fleetAlias, userID)
	}()

	json.NewEncoder(w).Encode(LoginResponse{
		Token:      token,
		UserID:     userID,
		Email:      email,
		Name:       name,
		Role:       role,
		FleetAlias: fleetAlias,
		FleetName:  fleetName,
	})
}
