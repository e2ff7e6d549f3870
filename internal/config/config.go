package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Membership  MembershipConfig  `yaml:"membership"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	DevServer   DevServerConfig   `yaml:"devserver"`
	OpenFGA     OpenFGAConfig     `yaml:"openfga"`
}

type ServerConfig struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"logLevel"`
}

// APIConfig points the gateway at the admin backend.
type APIConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	Timeout        time.Duration `yaml:"timeout"`
	RefreshTimeout time.Duration `yaml:"refreshTimeout"`
}

type CredentialsConfig struct {
	// Backend is one of memory, file, redis or postgres.
	Backend   string `yaml:"backend"`
	FilePath  string `yaml:"filePath"`
	KeyPrefix string `yaml:"keyPrefix"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`

	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDatabase string `yaml:"postgresDatabase"`
	PostgresTable    string `yaml:"postgresTable"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`
}

type MembershipConfig struct {
	DelayedThreshold time.Duration `yaml:"delayedThreshold"`
	MemberCacheTTL   time.Duration `yaml:"memberCacheTtl"`
}

type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ExporterURL    string  `yaml:"exporterUrl"`
	ServiceName    string  `yaml:"serviceName"`
	ServiceVersion string  `yaml:"serviceVersion"`
	Environment    string  `yaml:"environment"`
	SamplingRatio  float64 `yaml:"samplingRatio"`
}

type DevServerConfig struct {
	Addr           string        `yaml:"addr"`
	AccessTTL      time.Duration `yaml:"accessTtl"`
	RefreshTTL     time.Duration `yaml:"refreshTtl"`
	LoginRateLimit int           `yaml:"loginRateLimit"`
	SeedFile       string        `yaml:"seedFile"`
	PurgeInterval  time.Duration `yaml:"purgeInterval"`

	// RedisAddr, when set, shares login throttling state through Redis.
	RedisAddr string `yaml:"redisAddr"`
}

type OpenFGAConfig struct {
	Enabled              bool   `yaml:"enabled"`
	APIURL               string `yaml:"apiUrl"`
	APIToken             string `yaml:"apiToken"`
	StoreID              string `yaml:"storeId"`
	AuthorizationModelID string `yaml:"authorizationModelId"`
}

func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Environment: getEnv("SERVER_ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		API: APIConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://localhost:3001/api"),
			Timeout:        getEnvDuration("API_TIMEOUT", 15*time.Second),
			RefreshTimeout: getEnvDuration("API_REFRESH_TIMEOUT", 10*time.Second),
		},
		Credentials: CredentialsConfig{
			Backend:          getEnv("CREDENTIALS_BACKEND", "file"),
			FilePath:         getEnv("CREDENTIALS_FILE", defaultCredentialsFile()),
			KeyPrefix:        getEnv("CREDENTIALS_KEY_PREFIX", "memberconsole:"),
			RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:    getEnv("REDIS_PASSWORD", ""),
			RedisDB:          getEnvInt("REDIS_DB", 0),
			PostgresHost:     getEnv("DB_HOST", "localhost"),
			PostgresPort:     getEnvInt("DB_PORT", 5432),
			PostgresUser:     getEnv("DB_USER", "postgres"),
			PostgresPassword: getEnv("DB_PASSWORD", "password"),
			PostgresDatabase: getEnv("DB_NAME", "postgres"),
			PostgresTable:    getEnv("DB_CREDENTIALS_TABLE", "console_credentials"),
			PostgresSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Membership: MembershipConfig{
			DelayedThreshold: getEnvDuration("MEMBERSHIP_DELAYED_THRESHOLD", 72*time.Hour),
			MemberCacheTTL:   getEnvDuration("MEMBERSHIP_MEMBER_CACHE_TTL", 5*time.Minute),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvBool("TELEMETRY_ENABLED", false),
			ExporterURL:    getEnv("TELEMETRY_EXPORTER_URL", "localhost:4317"),
			ServiceName:    getEnv("TELEMETRY_SERVICE_NAME", "memberconsole"),
			ServiceVersion: getEnv("TELEMETRY_SERVICE_VERSION", "dev"),
			Environment:    getEnv("SERVER_ENVIRONMENT", "development"),
			SamplingRatio:  getEnvFloat("TELEMETRY_SAMPLING_RATIO", 1.0),
		},
		DevServer: DevServerConfig{
			Addr:           getEnv("DEVSERVER_ADDR", "localhost:3001"),
			AccessTTL:      getEnvDuration("DEVSERVER_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:     getEnvDuration("DEVSERVER_REFRESH_TTL", 7*24*time.Hour),
			LoginRateLimit: getEnvInt("DEVSERVER_LOGIN_RATE_LIMIT", 10),
			SeedFile:       getEnv("DEVSERVER_SEED_FILE", ""),
			PurgeInterval:  getEnvDuration("DEVSERVER_PURGE_INTERVAL", time.Minute),
			RedisAddr:      getEnv("DEVSERVER_REDIS_ADDR", ""),
		},
		OpenFGA: OpenFGAConfig{
			Enabled:              getEnvBool("OPENFGA_ENABLED", false),
			APIURL:               getEnv("OPENFGA_API_URL", "http://localhost:8080"),
			APIToken:             getEnv("OPENFGA_API_TOKEN", ""),
			StoreID:              getEnv("OPENFGA_STORE_ID", ""),
			AuthorizationModelID: getEnv("OPENFGA_AUTHORIZATION_MODEL_ID", ""),
		},
	}
}

// Load builds the environment config and overlays the YAML file at path, if
// one is given. Keys missing from the file keep their environment value.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".memberconsole/credentials.json"
	}
	return dir + "/memberconsole/credentials.json"
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
