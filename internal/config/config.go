package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/joho/godotenv" // godotenv loads a local .env file into the environment
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations and costs.
type Config struct {
	Env            string         // application environment (e.g. "dev", "prod")
	Port           string         // HTTP port to listen on
	DBUser         string         // database username
	DBPass         string         // database password (optional)
	DBHost         string         // database host address
	DBPort         string         // database port number
	DBName         string         // database name
	JWTSecret      string         // secret used to sign JWTs
	AccessTTLMin   int            // access token time-to-live in minutes
	RefreshTTLDays int            // refresh token time-to-live in days
	BcryptCost     int            // bcrypt cost for password hashing
	Location       *time.Location // calendar used to decide what "today" is
	CORSOrigins    []string       // allowed browser origins
	CookieSecure   bool           // mark the refresh cookie Secure
	CookiePath     string         // path the refresh cookie is scoped to
	MaxUploadBytes int64          // upper bound for bank statement uploads
	AutoMigrate    bool           // apply the embedded schema on startup
}

// Load reads configuration values from environment variables and returns a
// Config.  A .env file in the working directory is loaded first when present;
// real environment variables win over it.  Required variables are enforced by
// must() and missing values cause the program to exit with a fatal log message.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env")
	}
	return Config{
		Env:            must("APP_ENV"),                     // environment (dev/test/prod)
		Port:           must("APP_PORT"),                    // port to bind the HTTP server
		DBUser:         must("DB_USER"),                     // database user
		DBPass:         os.Getenv("DB_PASS"),                // database password (empty allowed)
		DBHost:         must("DB_HOST"),                     // database host
		DBPort:         must("DB_PORT"),                     // database port
		DBName:         must("DB_NAME"),                     // database name
		JWTSecret:      must("JWT_SECRET"),                  // secret used for signing JWTs
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),  // TTL for access tokens in minutes
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7), // TTL for refresh tokens in days
		BcryptCost:     envInt("BCRYPT_COST", 12),           // bcrypt cost factor
		Location:       mustLocation(envStr("APP_TIMEZONE", "Europe/Warsaw")),
		CORSOrigins:    splitList(envStr("CORS_ORIGINS", "http://localhost:5173")),
		CookieSecure:   envBool("COOKIE_SECURE", false),
		CookiePath:     envStr("REFRESH_COOKIE_PATH", "/v1/auth"),
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 5<<20)),
		AutoMigrate:    envBool("DB_AUTO_MIGRATE", false),
	}
}

// LoadDB reads only the database settings; the admin CLI uses it so that it
// does not require the HTTP and JWT variables.
func LoadDB() Config {
	_ = godotenv.Load()
	return Config{
		DBUser:     must("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"),
		DBHost:     must("DB_HOST"),
		DBPort:     must("DB_PORT"),
		DBName:     must("DB_NAME"),
		BcryptCost: envInt("BCRYPT_COST", 12),
		Location:   mustLocation(envStr("APP_TIMEZONE", "Europe/Warsaw")),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid APP_TIMEZONE %q: %v", name, err)
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
