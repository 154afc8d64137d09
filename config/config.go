package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// AdminUser is a local administrator allowed to manage settings and view order images.
type AdminUser struct {
	Username     string
	PasswordHash string // bcrypt
}

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	NonceSecret        string
	NonceTTLHours      int
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for settings cache and the cleanup lock
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Admins
	AdminUsers []AdminUser
	// SMTP for order confirmation emails
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPFromName   string
	SMTPTLS        bool
	EmailPlainText bool
	// Media storage: "local" or "minio"
	MediaDriver     string
	MediaLocalDir   string
	MediaBaseURL    string
	UploadMaxBodyMB int
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioPublicURL  string
	// Order storage mode reported by the host: "legacy" or "hpos"
	OrderStorage string
	// Cleanup scheduling
	CleanupPeriodHours  int
	CleanupCheckMinutes int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: .env -> config/config.json -> defaults -> environment variable overrides
	_ = godotenv.Load()

	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}
	if cfg.NonceSecret == "" {
		log.Println("NONCE_SECRET not set; deriving the upload nonce key from JWT_SECRET")
	}
	resolveNonceSecret(&cfg)

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// HPOS reports whether the host keeps orders in the dedicated order tables.
func (c AppConfig) HPOS() bool {
	return strings.EqualFold(c.OrderStorage, "hpos")
}

// IsAdmin reports whether username belongs to a configured administrator.
func (c AppConfig) IsAdmin(username string) bool {
	_, ok := c.Admin(username)
	return ok
}

// Admin looks up a configured administrator by name, case-insensitively.
func (c AppConfig) Admin(username string) (AdminUser, bool) {
	username = strings.TrimSpace(username)
	if username == "" {
		return AdminUser{}, false
	}
	for _, u := range c.AdminUsers {
		if strings.EqualFold(strings.TrimSpace(u.Username), username) {
			return u, true
		}
	}
	return AdminUser{}, false
}

// nonceKeyInfo separates the derived nonce key from the token signing key.
const nonceKeyInfo = "aiep upload nonce v1"

// resolveNonceSecret fills an empty NonceSecret with a key derived from JWTSecret, so storefront
// nonces and admin tokens never share an HMAC key.
func resolveNonceSecret(c *AppConfig) {
	if c.NonceSecret != "" || c.JWTSecret == "" {
		return
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(c.JWTSecret), nil, []byte(nonceKeyInfo)), key); err != nil {
		log.Fatalf("derive nonce secret: %v", err)
	}
	c.NonceSecret = hex.EncodeToString(key)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case string:
				i, _ := strconv.Atoi(t)
				return i
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.NonceSecret = getString(app, "NonceSecret")
		out.NonceTTLHours = getInt(app, "NonceTTLHours")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if adm, ok := raw["admin"].(map[string]any); ok {
		if users, ok := adm["Users"].([]any); ok {
			for _, it := range users {
				u, ok := it.(map[string]any)
				if !ok {
					continue
				}
				name := getString(u, "Username")
				if name == "" {
					continue
				}
				out.AdminUsers = append(out.AdminUsers, AdminUser{
					Username:     name,
					PasswordHash: getString(u, "PasswordHash"),
				})
			}
		}
	}

	if sm, ok := raw["smtp"].(map[string]any); ok {
		out.SMTPHost = getString(sm, "SMTPHost")
		out.SMTPPort = getInt(sm, "SMTPPort")
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPFrom = getString(sm, "SMTPFrom")
		out.SMTPFromName = getString(sm, "SMTPFromName")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
		out.EmailPlainText = getBool(sm, "PlainText")
	}

	if md, ok := raw["media"].(map[string]any); ok {
		out.MediaDriver = getString(md, "Driver")
		out.MediaLocalDir = getString(md, "LocalDir")
		out.MediaBaseURL = getString(md, "BaseURL")
		out.UploadMaxBodyMB = getInt(md, "UploadMaxBodyMB")
		out.MinioEndpoint = getString(md, "MinioEndpoint")
		out.MinioAccessKey = getString(md, "MinioAccessKey")
		out.MinioSecretKey = getString(md, "MinioSecretKey")
		out.MinioBucket = getString(md, "MinioBucket")
		out.MinioUseSSL = getBool(md, "MinioUseSSL")
		out.MinioPublicURL = getString(md, "MinioPublicURL")
	}

	if od, ok := raw["orders"].(map[string]any); ok {
		out.OrderStorage = getString(od, "Storage")
	}

	if cl, ok := raw["cleanup"].(map[string]any); ok {
		out.CleanupPeriodHours = getInt(cl, "PeriodHours")
		out.CleanupCheckMinutes = getInt(cl, "CheckMinutes")
	}

	// Flat keys for backward compatibility
	if v := getString(raw, "AppPort"); v != "" && out.AppPort == "" {
		out.AppPort = v
	}
	if v := getString(raw, "JWTSecret"); v != "" && out.JWTSecret == "" {
		out.JWTSecret = v
	}
	if v := getString(raw, "DatabaseURI"); v != "" && out.DatabaseURI == "" {
		out.DatabaseURI = v
	}
	if v := getString(raw, "OrderStorage"); v != "" && out.OrderStorage == "" {
		out.OrderStorage = v
	}
	if v := getString(raw, "LogLevel"); v != "" && out.LogLevel == "" {
		out.LogLevel = v
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.NonceTTLHours == 0 {
		c.NonceTTLHours = 24
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "shop"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.MediaDriver == "" {
		c.MediaDriver = "local"
	}
	if c.MediaLocalDir == "" {
		c.MediaLocalDir = filepath.Join(".", "static", "uploads")
	}
	if c.MediaBaseURL == "" {
		c.MediaBaseURL = "/static/uploads"
	}
	if c.UploadMaxBodyMB == 0 {
		c.UploadMaxBodyMB = 32
	}
	if c.OrderStorage == "" {
		c.OrderStorage = "legacy"
	}
	if c.CleanupPeriodHours == 0 {
		c.CleanupPeriodHours = 24
	}
	if c.CleanupCheckMinutes == 0 {
		c.CleanupCheckMinutes = 60
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("NONCE_SECRET", ""); v != "" {
		c.NonceSecret = v
	}
	if v := getEnv("NONCE_TTL_HOURS", ""); v != "" {
		c.NonceTTLHours = mustParseInt(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	// ADMIN_USERNAME + ADMIN_PASSWORD_HASH add a single administrator
	if name := getEnv("ADMIN_USERNAME", ""); name != "" {
		c.AdminUsers = append(c.AdminUsers, AdminUser{Username: name, PasswordHash: getEnv("ADMIN_PASSWORD_HASH", "")})
	}
	if v := getEnv("SMTP_HOST", ""); v != "" {
		c.SMTPHost = v
	}
	if v := getEnv("SMTP_PORT", ""); v != "" {
		c.SMTPPort = mustParseInt(v)
	}
	if v := getEnv("SMTP_USERNAME", ""); v != "" {
		c.SMTPUsername = v
	}
	if v := getEnv("SMTP_PASSWORD", ""); v != "" {
		c.SMTPPassword = v
	}
	if v := getEnv("SMTP_FROM", ""); v != "" {
		c.SMTPFrom = v
	}
	if v := getEnv("SMTP_FROM_NAME", ""); v != "" {
		c.SMTPFromName = v
	}
	if v := getEnv("SMTP_TLS", ""); v != "" {
		c.SMTPTLS = v == "true"
	}
	if v := getEnv("EMAIL_PLAIN_TEXT", ""); v != "" {
		c.EmailPlainText = v == "true"
	}
	if v := getEnv("MEDIA_DRIVER", ""); v != "" {
		c.MediaDriver = v
	}
	if v := getEnv("MEDIA_LOCAL_DIR", ""); v != "" {
		c.MediaLocalDir = v
	}
	if v := getEnv("MEDIA_BASE_URL", ""); v != "" {
		c.MediaBaseURL = v
	}
	if v := getEnv("UPLOAD_MAX_BODY_MB", ""); v != "" {
		c.UploadMaxBodyMB = mustParseInt(v)
	}
	if v := getEnv("MINIO_ENDPOINT", ""); v != "" {
		c.MinioEndpoint = v
	}
	if v := getEnv("MINIO_ACCESS_KEY", ""); v != "" {
		c.MinioAccessKey = v
	}
	if v := getEnv("MINIO_SECRET_KEY", ""); v != "" {
		c.MinioSecretKey = v
	}
	if v := getEnv("MINIO_BUCKET", ""); v != "" {
		c.MinioBucket = v
	}
	if v := getEnv("MINIO_USE_SSL", ""); v != "" {
		c.MinioUseSSL = v == "true"
	}
	if v := getEnv("MINIO_PUBLIC_URL", ""); v != "" {
		c.MinioPublicURL = v
	}
	if v := getEnv("ORDER_STORAGE", ""); v != "" {
		c.OrderStorage = v
	}
	if v := getEnv("CLEANUP_PERIOD_HOURS", ""); v != "" {
		c.CleanupPeriodHours = mustParseInt(v)
	}
	if v := getEnv("CLEANUP_CHECK_MINUTES", ""); v != "" {
		c.CleanupCheckMinutes = mustParseInt(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
