package config

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env       string
	HTTPAddr  string
	PublicURL string

	DBDriver      string // mongo|sqlite|postgres
	DBDSN         string
	MongoURI      string
	MongoDatabase string

	BlobDriver     string // fs|minio
	BlobBasePath   string // for fs
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	AuthSecret string
	TokenTTL   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatsTTL      time.Duration

	// Notification channels: function,amqp,sendgrid,log
	NotifyChannels       []string
	NotifyFunctionURL    string
	NotifyFunctionSecret string
	AMQPURL              string
	AMQPExchange         string
	SendGridAPIKey       string
	SendGridFrom         string
	AutoNotify           bool

	RollbarToken string

	ConsulAddr     string
	ServiceID      string
	ServiceName    string
	ServiceAddress string

	CORSOrigins []string

	EnableGoogleAuth   bool
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string // e.g., PUBLIC_URL + "/auth/google/callback"
	GoogleAllowedHD    string
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func FromEnv() Config {
	if err := LoadDotEnv(""); err != nil {
		log.Printf("config: .env: %v", err)
	}
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()

	v.SetDefault("env", "dev")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("public_url", "")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "examdesk")
	v.SetDefault("blob_driver", "fs")
	v.SetDefault("blob_base_path", "./data")
	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "examdesk")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("auth_hmac_secret", "supersecret-dev-key")
	v.SetDefault("token_ttl", 8*time.Hour)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("stats_ttl", 5*time.Minute)
	v.SetDefault("notify_channels", "log")
	v.SetDefault("notify_function_url", "")
	v.SetDefault("notify_function_secret", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "examdesk.notifications")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("sendgrid_from", "noreply@localhost")
	v.SetDefault("auto_notify", true)
	v.SetDefault("rollbar_token", "")
	v.SetDefault("consul_addr", "")
	v.SetDefault("service_id", "examdesk-1")
	v.SetDefault("service_name", "examdesk")
	v.SetDefault("service_address", "localhost")
	v.SetDefault("cors_origins", "http://localhost:3000")
	v.SetDefault("enable_google_auth", false)
	v.SetDefault("google_client_id", "")
	v.SetDefault("google_client_secret", "")
	v.SetDefault("google_redirect_uri", "")
	v.SetDefault("google_allowed_hd", "")

	pub := strings.TrimSuffix(v.GetString("public_url"), "/")
	googleRedirect := v.GetString("google_redirect_uri")
	if googleRedirect == "" {
		googleRedirect = pub + "/auth/google/callback"
	}

	return Config{
		Env:       v.GetString("env"),
		HTTPAddr:  v.GetString("http_addr"),
		PublicURL: pub,

		DBDriver:      strings.ToLower(v.GetString("db_driver")),
		DBDSN:         v.GetString("db_dsn"),
		MongoURI:      v.GetString("mongo_uri"),
		MongoDatabase: v.GetString("mongo_database"),

		BlobDriver:     strings.ToLower(v.GetString("blob_driver")),
		BlobBasePath:   v.GetString("blob_base_path"),
		MinioEndpoint:  v.GetString("minio_endpoint"),
		MinioAccessKey: v.GetString("minio_access_key"),
		MinioSecretKey: v.GetString("minio_secret_key"),
		MinioBucket:    v.GetString("minio_bucket"),
		MinioUseSSL:    v.GetBool("minio_use_ssl"),

		AuthSecret: v.GetString("auth_hmac_secret"),
		TokenTTL:   v.GetDuration("token_ttl"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		StatsTTL:      v.GetDuration("stats_ttl"),

		NotifyChannels:       csv(v.GetString("notify_channels")),
		NotifyFunctionURL:    v.GetString("notify_function_url"),
		NotifyFunctionSecret: v.GetString("notify_function_secret"),
		AMQPURL:              v.GetString("amqp_url"),
		AMQPExchange:         v.GetString("amqp_exchange"),
		SendGridAPIKey:       v.GetString("sendgrid_api_key"),
		SendGridFrom:         v.GetString("sendgrid_from"),
		AutoNotify:           v.GetBool("auto_notify"),

		RollbarToken: v.GetString("rollbar_token"),

		ConsulAddr:     v.GetString("consul_addr"),
		ServiceID:      v.GetString("service_id"),
		ServiceName:    v.GetString("service_name"),
		ServiceAddress: v.GetString("service_address"),

		CORSOrigins: csv(v.GetString("cors_origins")),

		EnableGoogleAuth:   v.GetBool("enable_google_auth"),
		GoogleClientID:     v.GetString("google_client_id"),
		GoogleClientSecret: v.GetString("google_client_secret"),
		GoogleRedirectURI:  googleRedirect,
		GoogleAllowedHD:    v.GetString("google_allowed_hd"),
	}
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToLower(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
