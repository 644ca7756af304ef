package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `json:"server" envPrefix:"SERVER_"`
	Database     DatabaseConfig     `json:"database" envPrefix:"DATABASE_"`
	Verification VerificationConfig `json:"verification" envPrefix:"VERIFICATION_"`
	Scoring      ScoringConfig      `json:"scoring" envPrefix:"SCORING_"`
	Security     SecurityConfig     `json:"security" envPrefix:"SECURITY_"`
	Logging      LoggingConfig      `json:"logging" envPrefix:"LOGGING_"`
	Sinks        SinksConfig        `json:"sinks" envPrefix:"SINKS_"`
	Sweeper      SweeperConfig      `json:"sweeper" envPrefix:"SWEEPER_"`
	Marketplace  MarketplaceConfig  `json:"marketplace" envPrefix:"MARKETPLACE_"`
	Dashboard    DashboardConfig    `json:"dashboard" envPrefix:"DASHBOARD_"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" env:"HOST"`
	Port            int           `json:"port" env:"PORT"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig represents database configuration.
// Driver is one of "postgres", "sqlite" or "memory".
type DatabaseConfig struct {
	Driver         string        `json:"driver" env:"DRIVER"`
	Host           string        `json:"host" env:"HOST"`
	Port           int           `json:"port" env:"PORT"`
	User           string        `json:"user" env:"USER"`
	Password       string        `json:"password" env:"PASSWORD"`
	DBName         string        `json:"db_name" env:"DBNAME"`
	SSLMode        string        `json:"ssl_mode" env:"SSLMODE"`
	SQLitePath     string        `json:"sqlite_path" env:"SQLITE_PATH"`
	MaxConnections int           `json:"max_connections" env:"MAX_CONNECTIONS"`
	MaxIdleConns   int           `json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxLifetime    time.Duration `json:"max_lifetime" env:"MAX_LIFETIME"`
}

// VerificationConfig holds the numeric policy knobs of credit issuance
type VerificationConfig struct {
	// SequestrationFactor is tons of CO2 per hectare
	SequestrationFactor float64 `json:"sequestration_factor" env:"SEQUESTRATION_FACTOR"`
	// ApprovalThreshold is the minimum confidence score for approval
	ApprovalThreshold float64 `json:"approval_threshold" env:"APPROVAL_THRESHOLD"`
	// RevenuePerTon is currency per minted token
	RevenuePerTon float64       `json:"revenue_per_ton" env:"REVENUE_PER_TON"`
	RevenueShares RevenueShares `json:"revenue_shares" envPrefix:"SHARE_"`
}

// RevenueShares are stakeholder percentages, summing to 100
type RevenueShares struct {
	Community float64 `json:"community" env:"COMMUNITY"`
	Panchayat float64 `json:"panchayat" env:"PANCHAYAT"`
	Platform  float64 `json:"platform" env:"PLATFORM"`
	Buffer    float64 `json:"buffer" env:"BUFFER"`
}

// ScoringConfig selects and configures the image/geo validator
type ScoringConfig struct {
	// Mode is one of "fixed", "simulated" or "http"
	Mode         string        `json:"mode" env:"MODE"`
	FixedScore   float64       `json:"fixed_score" env:"FIXED_SCORE"`
	ValidatorURL string        `json:"validator_url" env:"VALIDATOR_URL"`
	Timeout      time.Duration `json:"timeout" env:"TIMEOUT"`
	MaxRetries   uint          `json:"max_retries" env:"MAX_RETRIES"`
	// RegionGeoJSONPath optionally restricts eligible plantations to a polygon
	RegionGeoJSONPath string `json:"region_geojson_path" env:"REGION_GEOJSON_PATH"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string `json:"jwt_issuer" env:"JWT_ISSUER"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level" env:"LEVEL"`
	Development bool   `json:"development" env:"DEVELOPMENT"`
}

// SinksConfig configures where ledger events are emitted besides the log
type SinksConfig struct {
	AWSRegion     string `json:"aws_region" env:"AWS_REGION"`
	SNSTopicARN   string `json:"sns_topic_arn" env:"SNS_TOPIC_ARN"`
	S3Bucket      string `json:"s3_bucket" env:"S3_BUCKET"`
	S3Prefix      string `json:"s3_prefix" env:"S3_PREFIX"`
	DynamoDBTable string `json:"dynamodb_table" env:"DYNAMODB_TABLE"`
	WebSocket     bool   `json:"websocket" env:"WEBSOCKET"`
}

// SweeperConfig configures the background verification retry job
type SweeperConfig struct {
	Enabled       bool   `json:"enabled" env:"ENABLED"`
	Schedule      string `json:"schedule" env:"SCHEDULE"`
	BatchSize     int    `json:"batch_size" env:"BATCH_SIZE"`
	MaxConcurrent int    `json:"max_concurrent" env:"MAX_CONCURRENT"`
}

// MarketplaceConfig
type MarketplaceConfig struct {
	// PostgresDSN enables the GORM listing store; empty keeps listings in memory
	PostgresDSN string `json:"postgres_dsn" env:"POSTGRES_DSN"`
}

// DashboardConfig
type DashboardConfig struct {
	CacheTTL time.Duration `json:"cache_ttl" env:"CACHE_TTL"`
}

// Default returns the configuration used when nothing else is supplied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:         "memory",
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "blue_carbon",
			SSLMode:        "disable",
			SQLitePath:     "blue_carbon.db",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
		},
		Verification: VerificationConfig{
			SequestrationFactor: 1.5,
			ApprovalThreshold:   0.8,
			RevenuePerTon:       10,
			RevenueShares: RevenueShares{
				Community: 60,
				Panchayat: 20,
				Platform:  15,
				Buffer:    5,
			},
		},
		Scoring: ScoringConfig{
			Mode:       "simulated",
			FixedScore: 0.9,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Security: SecurityConfig{
			JWTIssuer: "blue-carbon",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Sinks: SinksConfig{
			AWSRegion: "ap-south-1",
			S3Prefix:  "ledger",
			WebSocket: true,
		},
		Sweeper: SweeperConfig{
			Enabled:       true,
			Schedule:      "0 */5 * * * *",
			BatchSize:     50,
			MaxConcurrent: 4,
		},
		Dashboard: DashboardConfig{
			CacheTTL: 30 * time.Second,
		},
	}
}

// LoadConfig loads configuration from defaults, an optional JSON file, .env files and
// environment variables, in that order of precedence (later wins)
func LoadConfig(configPath string, envFiles ...string) (*Config, error) {
	config := Default()

	// Load from file if exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	// Override with environment variables
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the policy knobs and connection settings
func (c *Config) Validate() error {
	v := c.Verification
	if !(v.SequestrationFactor > 0) {
		return fmt.Errorf("verification.sequestration_factor must be greater than zero")
	}
	if v.ApprovalThreshold < 0 || v.ApprovalThreshold > 1 || math.IsNaN(v.ApprovalThreshold) {
		return fmt.Errorf("verification.approval_threshold must be between 0 and 1")
	}
	if v.RevenuePerTon < 0 || math.IsNaN(v.RevenuePerTon) {
		return fmt.Errorf("verification.revenue_per_ton must not be negative")
	}
	if err := v.RevenueShares.Validate(); err != nil {
		return err
	}

	switch c.Database.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be one of memory, postgres, sqlite")
	}

	switch c.Scoring.Mode {
	case "fixed", "simulated":
	case "http":
		if c.Scoring.ValidatorURL == "" {
			return fmt.Errorf("scoring.validator_url is required in http mode")
		}
	default:
		return fmt.Errorf("scoring.mode must be one of fixed, simulated, http")
	}
	return nil
}

// Validate checks shares are non-negative and sum to 100
func (s RevenueShares) Validate() error {
	for name, pct := range map[string]float64{
		"community": s.Community,
		"panchayat": s.Panchayat,
		"platform":  s.Platform,
		"buffer":    s.Buffer,
	} {
		if pct < 0 || math.IsNaN(pct) {
			return fmt.Errorf("verification.revenue_shares.%s must not be negative", name)
		}
	}
	sum := s.Community + s.Panchayat + s.Platform + s.Buffer
	if math.Abs(sum-100) > 1e-9 {
		return fmt.Errorf("verification.revenue_shares must sum to 100, got %v", sum)
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
