package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// Recognition providers
	Recognition RecognitionConfig `yaml:"recognition"`

	// Heuristic extractor tuning
	Heuristics HeuristicsConfig `yaml:"heuristics"`
}

// RecognitionConfig groups the recognition provider settings
type RecognitionConfig struct {
	// Default provider for the primary tier: "remote", "openai", "gemini"
	DefaultProvider string `yaml:"default_provider"`

	Remote RemoteConfig `yaml:"remote"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	Local  LocalConfig  `yaml:"local"`

	// Primary-tier call policy
	TimeoutSeconds int `yaml:"timeout_seconds"` // default 30
	MaxAttempts    int `yaml:"max_attempts"`    // default 3
}

// RemoteConfig for the dedicated recognition endpoint
type RemoteConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// OpenAIConfig for OpenAI/Azure OpenAI vision models
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`              // Default: "gpt-4o"
}

// GeminiConfig for Google Gemini vision models
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-1.5-flash"
}

// LocalConfig for the on-device text recognition engine
type LocalConfig struct {
	Language string `yaml:"language"` // OCR language (default: "eng")
}

// HeuristicsConfig carries the layout-tuned thresholds of the heuristic
// extractor. The defaults match the delivery-slip layout the rules were
// calibrated on; different layouts adjust these in config rather than code.
type HeuristicsConfig struct {
	// Fraction of trailing lines searched for handwritten KM readings.
	BottomWindowFraction float64 `yaml:"bottom_window_fraction"` // default 0.30

	// Plausible odometer range.
	OdometerMin int `yaml:"odometer_min"` // default 50000
	OdometerMax int `yaml:"odometer_max"` // default 2000000

	// Lines containing any of these tokens are skipped during the
	// odometer search (document boilerplate carrying large numbers).
	NoiseTokens []string `yaml:"noise_tokens"`
}

// WithDefaults fills unset heuristic thresholds with the calibrated values.
func (h HeuristicsConfig) WithDefaults() HeuristicsConfig {
	if h.BottomWindowFraction <= 0 || h.BottomWindowFraction > 1 {
		h.BottomWindowFraction = 0.30
	}
	if h.OdometerMin <= 0 {
		h.OdometerMin = 50000
	}
	if h.OdometerMax <= 0 {
		h.OdometerMax = 2000000
	}
	if len(h.NoiseTokens) == 0 {
		h.NoiseTokens = []string{"FAX", "VAT", "INVOICE", "TEL", "P.O. BOX", "ACCOUNT"}
	}
	return h
}
