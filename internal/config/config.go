package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Auth      AuthConfig      `yaml:"auth"`
	Order     OrderConfig     `yaml:"order"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	FrontendURL string `yaml:"frontendUrl"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type StripeConfig struct {
	APIKey        string `yaml:"apiKey"`
	WebhookSecret string `yaml:"webhookSecret"`
	Currency      string `yaml:"currency"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

type OrderConfig struct {
	Retention        time.Duration `yaml:"retention"`
	DisplayWindow    time.Duration `yaml:"displayWindow"`
	MaxRetryAttempts int           `yaml:"maxRetryAttempts"`
	TxTimeout        time.Duration `yaml:"txTimeout"`
}

type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batchSize"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func Load() (*Config, error) {
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("FRONTEND_URL", "http://localhost:5174")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 3306)
	viper.SetDefault("DB_USER", "comanda")
	viper.SetDefault("DB_PASSWORD", "secret")
	viper.SetDefault("DB_NAME", "comanda")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_SERVICE", "comanda")
	viper.SetDefault("STRIPE_API_KEY", "")
	viper.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	viper.SetDefault("STRIPE_CURRENCY", "mxn")
	viper.SetDefault("AUTH_JWT_SECRET", "")
	viper.SetDefault("AUTH_ISSUER", "")
	viper.SetDefault("AUTH_AUDIENCE", "")
	viper.SetDefault("ORDER_RETENTION", "24h")
	viper.SetDefault("ORDER_DELIVERED_DISPLAY_WINDOW", "7s")
	viper.SetDefault("ORDER_MAX_RETRY_ATTEMPTS", 3)
	viper.SetDefault("ORDER_TX_TIMEOUT", "5s")
	viper.SetDefault("SCHEDULER_INTERVAL", "1m")
	viper.SetDefault("SCHEDULER_BATCH_SIZE", 100)
	viper.SetDefault("KAFKA_ENABLED", false)
	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")
	viper.SetDefault("KAFKA_TOPIC", "order-events")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"DB_CONN_MAX_LIFETIME",
		"ORDER_RETENTION",
		"ORDER_DELIVERED_DISPLAY_WINDOW",
		"ORDER_TX_TIMEOUT",
		"SCHEDULER_INTERVAL",
	} {
		d, err := time.ParseDuration(viper.GetString(key))
		if err != nil {
			return nil, err
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetInt("SERVER_PORT"),
			FrontendURL: viper.GetString("FRONTEND_URL"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Name:            viper.GetString("DB_NAME"),
			MaxOpenConns:    viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: durations["DB_CONN_MAX_LIFETIME"],
		},
		Log: LogConfig{
			Level:   viper.GetString("LOG_LEVEL"),
			Service: viper.GetString("LOG_SERVICE"),
		},
		Stripe: StripeConfig{
			APIKey:        viper.GetString("STRIPE_API_KEY"),
			WebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:      viper.GetString("STRIPE_CURRENCY"),
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("AUTH_JWT_SECRET"),
			Issuer:    viper.GetString("AUTH_ISSUER"),
			Audience:  viper.GetString("AUTH_AUDIENCE"),
		},
		Order: OrderConfig{
			Retention:        durations["ORDER_RETENTION"],
			DisplayWindow:    durations["ORDER_DELIVERED_DISPLAY_WINDOW"],
			MaxRetryAttempts: viper.GetInt("ORDER_MAX_RETRY_ATTEMPTS"),
			TxTimeout:        durations["ORDER_TX_TIMEOUT"],
		},
		Scheduler: SchedulerConfig{
			Interval:  durations["SCHEDULER_INTERVAL"],
			BatchSize: viper.GetInt("SCHEDULER_BATCH_SIZE"),
		},
		Kafka: KafkaConfig{
			Enabled: viper.GetBool("KAFKA_ENABLED"),
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
