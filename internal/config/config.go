package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the whole application.
// It is loaded once from the environment at startup and treated as immutable.
type Config struct {
	// Airtable (directory backing store)
	AirtableToken  string
	AirtableBaseID string

	// Airtable table names
	TableTechnicians string
	TableRepairs     string
	TableServices    string
	TableBookings    string
	TableShipments   string

	// Supabase Auth (identity provider)
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string

	// Login ticket
	TicketSecret string
	TicketTTL    time.Duration

	// Outbound webhook (automation platform); empty disables the relay
	WebhookURL string

	// Directory-store retry policy
	AirtableRetryAttempts int
	AirtableRetryTimeout  time.Duration

	// Rate limit (requests per minute per technician)
	RateLimitGeneral     int
	RateLimitOTPDispatch int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load reads the Config from the environment.
// A .env file in the working directory is loaded first when present.
// Returns an error listing every missing required variable so the process
// fails fast instead of discovering gaps per request.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	required := []struct {
		key  string
		dest *string
	}{
		{"AIRTABLE_API_TOKEN", &cfg.AirtableToken},
		{"AIRTABLE_BASE_ID", &cfg.AirtableBaseID},
		{"AIRTABLE_TABLE_TECNICOS", &cfg.TableTechnicians},
		{"AIRTABLE_TABLE_REPARACIONES", &cfg.TableRepairs},
		{"SUPABASE_URL", &cfg.SupabaseURL},
		{"SUPABASE_ANON_KEY", &cfg.SupabaseAnonKey},
		{"SUPABASE_SERVICE_ROLE_KEY", &cfg.SupabaseServiceRoleKey},
		{"LOGIN_TICKET_SECRET", &cfg.TicketSecret},
		{"BASE_URL", &cfg.BaseURL},
	}
	for _, r := range required {
		*r.dest = os.Getenv(r.key)
		if *r.dest == "" {
			missing = append(missing, r.key)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TableServices = getEnvString("AIRTABLE_TABLE_SERVICIOS", "Servicios")
	cfg.TableBookings = getEnvString("AIRTABLE_TABLE_CITAS", "Citas")
	cfg.TableShipments = getEnvString("AIRTABLE_TABLE_ENVIOS", "Envios")
	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.TicketTTL = getEnvDuration("LOGIN_TICKET_TTL", 10*time.Minute)
	cfg.AirtableRetryAttempts = getEnvInt("AIRTABLE_RETRY_ATTEMPTS", 3)
	cfg.AirtableRetryTimeout = getEnvDuration("AIRTABLE_RETRY_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitOTPDispatch = getEnvInt("RATE_LIMIT_OTP", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
