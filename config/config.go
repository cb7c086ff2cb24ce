package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on minimal images

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds every setting read from the environment or an optional
// .env file.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        string `mapstructure:"PORT" validate:"required,numeric"`
	GinMode     string `mapstructure:"GIN_MODE"`

	// Database
	DBDriver      string `mapstructure:"DB_DRIVER" validate:"oneof=postgres mysql sqlite"`
	DatabaseURL   string `mapstructure:"DATABASE_URL" validate:"required"`
	DBAutoMigrate bool   `mapstructure:"DB_AUTO_MIGRATE"`

	// Hosted backend credentials
	SupabaseURL            string `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey        string `mapstructure:"SUPABASE_ANON_KEY"`
	SupabaseServiceRoleKey string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret              string `mapstructure:"JWT_SECRET" validate:"required"`

	// Web Push
	VAPIDPublicKey  string        `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `mapstructure:"VAPID_PRIVATE_KEY" validate:"required_with=VAPIDPublicKey"`
	VAPIDSubject    string        `mapstructure:"VAPID_SUBJECT"`
	PushTTL         int           `mapstructure:"PUSH_TTL" validate:"gte=0"`
	PushWorkers     int           `mapstructure:"PUSH_WORKERS" validate:"gte=1,lte=64"`
	PushTimeout     time.Duration `mapstructure:"PUSH_TIMEOUT"`
	PushDispatchURL string        `mapstructure:"PUSH_DISPATCH_URL" validate:"omitempty,url"`

	// Schedulers
	ReminderInterval   time.Duration `mapstructure:"REMINDER_INTERVAL"`
	ChangePollInterval time.Duration `mapstructure:"CHANGE_POLL_INTERVAL"`
	ChangeRetention    time.Duration `mapstructure:"CHANGE_RETENTION"`
	Timezone           string        `mapstructure:"TIMEZONE"`
	SharedWorkspace    bool          `mapstructure:"SHARED_WORKSPACE"`

	// HTTP
	RateLimitRPS int    `mapstructure:"RATE_LIMIT_RPS" validate:"gte=1"`
	CORSOrigins  string `mapstructure:"CORS_ORIGINS"`
}

var defaults = map[string]interface{}{
	"ENVIRONMENT":               "development",
	"PORT":                      "8080",
	"GIN_MODE":                  "",
	"DB_DRIVER":                 "postgres",
	"DATABASE_URL":              "",
	"DB_AUTO_MIGRATE":           true,
	"SUPABASE_URL":              "",
	"SUPABASE_ANON_KEY":         "",
	"SUPABASE_SERVICE_ROLE_KEY": "",
	"JWT_SECRET":                "",
	"VAPID_PUBLIC_KEY":          "",
	"VAPID_PRIVATE_KEY":         "",
	"VAPID_SUBJECT":             "mailto:admin@dataponto.app",
	"PUSH_TTL":                  86400,
	"PUSH_WORKERS":              4,
	"PUSH_TIMEOUT":              15 * time.Second,
	"PUSH_DISPATCH_URL":         "",
	"REMINDER_INTERVAL":         time.Minute,
	"CHANGE_POLL_INTERVAL":      time.Second,
	"CHANGE_RETENTION":          24 * time.Hour,
	"TIMEZONE":                  "America/Sao_Paulo",
	"SHARED_WORKSPACE":          false,
	"RATE_LIMIT_RPS":            10,
	"CORS_ORIGINS":              "*",
}

// LoadConfig reads configuration from the environment, falling back to a
// .env file in path when present.
func LoadConfig(path string) (Config, error) {
	var conf Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, the environment is enough
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&conf); err != nil {
		return conf, fmt.Errorf("decode config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return conf, err
	}
	return conf, nil
}

// Validate checks the struct tags and the settings that depend on each
// other.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.ReminderInterval <= 0 || c.ChangePollInterval <= 0 || c.PushTimeout <= 0 {
		return fmt.Errorf("invalid config: intervals and timeouts must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves TIMEZONE. Validate has already rejected unknown zones.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// FunctionKeys are the credentials accepted by the function endpoints.
func (c Config) FunctionKeys() []string {
	var keys []string
	for _, k := range []string{c.SupabaseAnonKey, c.SupabaseServiceRoleKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
