package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/loadlane/delivery-ocr-service/api"
	"github.com/loadlane/delivery-ocr-service/internal/auth"
	"github.com/loadlane/delivery-ocr-service/internal/db"
	"github.com/loadlane/delivery-ocr-service/internal/models"
	"github.com/loadlane/delivery-ocr-service/internal/storage"
	"gopkg.in/yaml.v3"
)

func main() {
	// Initialize JWT
	if err := auth.Init(); err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	log.Println("JWT authentication initialized")

	// Initialize database connection pool
	if err := db.Init(); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running in extraction-only mode (no persistence)")
	} else {
		defer db.Close()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	if err := storage.Init(); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Slip images will not be stored")
	} else {
		log.Println("MinIO storage initialized")
	}

	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create API handler
	handler := api.NewHandler(config)
	router := handler.SetupRoutes()

	// Add login endpoints
	router.HandleFunc("/api/login", auth.LoginHandler).Methods("POST")
	// Driver app routes
	router.HandleFunc("/api/drivers/login/", auth.DriverLoginHandler).Methods("POST")
	router.HandleFunc("/api/drivers/me/", auth.DriverMeHandler).Methods("GET")

	// Wrap router with JWT middleware (skips /health and the login routes)
	protectedRouter := auth.JWTMiddleware(router)

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting Delivery OCR Service v%s on %s", api.Version, addr)
	log.Printf("Default recognition provider: %s", config.Recognition.DefaultProvider)
	log.Printf("Local OCR language: %s", config.Recognition.Local.Language)
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", storage.Client != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/login                - Authenticate", addr)
	log.Printf("  POST http://%s/api/process-document     - Process delivery slip (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/documents            - Get all documents (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/document/{id}        - Get single document (requires JWT)", addr)
	log.Printf("  PUT  http://%s/api/document/{id}        - Update document (requires JWT)", addr)
	log.Printf("  POST http://%s/api/document/{id}/stage  - Move through approval chain (requires JWT)", addr)
	log.Printf("  DELETE http://%s/api/document/{id}      - Delete document (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/stats                - Get monthly stats (requires JWT)", addr)
	log.Printf("  GET  http://%s/health                   - Health check", addr)

	if err := http.ListenAndServe(addr, protectedRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if endpoint := os.Getenv("RECOGNITION_ENDPOINT"); endpoint != "" {
		config.Recognition.Remote.Endpoint = endpoint
	}
	if apiKey := os.Getenv("RECOGNITION_API_KEY"); apiKey != "" {
		config.Recognition.Remote.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Recognition.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Recognition.Gemini.APIKey = apiKey
	}
	if provider := os.Getenv("RECOGNITION_PROVIDER"); provider != "" {
		config.Recognition.DefaultProvider = provider
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.Recognition.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.Recognition.OpenAI.Model = model
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.Recognition.Gemini.Model = model
	}
	if language := os.Getenv("OCR_LANGUAGE"); language != "" {
		config.Recognition.Local.Language = language
	}

	return &config, nil
}
