package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds service configuration loaded from environment and flags.
type Config struct {
	RunAddress    string
	DatabaseURI   string
	RabbitMQURL   string
	RedisAddr     string
	ClientURL     string
	LogLevel      string
	GatewaySecret string

	EscrowBaseURL string
	EscrowToken   string
	EscrowTimeout time.Duration

	CompensationTimeout time.Duration

	BrokerMaxRetries    int
	BrokerRetryInterval time.Duration
	BrokerPrefetch      int

	ReconcileInterval  time.Duration
	ReconcileThreshold time.Duration
	ReconcileBatch     int
	OutboxInterval     time.Duration
	OutboxBatch        int
	WorkerPoolSize     int
	ShutdownTimeout    time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
}

const (
	defaultRunAddress          = ":8080"
	defaultGatewaySecret       = "change-me-in-production"
	defaultClientURL           = "http://localhost:3000"
	defaultLogLevel            = "info"
	defaultEscrowTimeout       = 10 * time.Second
	defaultCompensationTimeout = 30 * time.Second
	defaultBrokerMaxRetries    = 10
	defaultBrokerRetryInterval = time.Second
	defaultBrokerPrefetch      = 1
	defaultReconcileInterval   = 30 * time.Second
	defaultReconcileThreshold  = 5 * time.Minute
	defaultReconcileBatch      = 32
	defaultOutboxInterval      = 5 * time.Second
	defaultOutboxBatch         = 100
	defaultWorkerPoolSize      = 4
	defaultShutdownTimeout     = 10 * time.Second
	defaultSMTPPort            = 587
)

// Load parses configuration from flags and environment variables.
func Load() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:          getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:         getString(lookup, "DATABASE_URI", ""),
		RabbitMQURL:         getString(lookup, "RABBITMQ_ENDPOINT", ""),
		RedisAddr:           getString(lookup, "REDIS_ADDR", ""),
		ClientURL:           getString(lookup, "CLIENT_URL", defaultClientURL),
		LogLevel:            getString(lookup, "LOG_LEVEL", defaultLogLevel),
		GatewaySecret:       getString(lookup, "GATEWAY_SECRET", defaultGatewaySecret),
		EscrowBaseURL:       getString(lookup, "ESCROW_BASE_URL", ""),
		EscrowToken:         getString(lookup, "ESCROW_TOKEN", ""),
		EscrowTimeout:       getDuration(lookup, "ESCROW_TIMEOUT", defaultEscrowTimeout),
		CompensationTimeout: getDuration(lookup, "COMPENSATION_TIMEOUT", defaultCompensationTimeout),
		BrokerMaxRetries:    getInt(lookup, "BROKER_MAX_RETRIES", defaultBrokerMaxRetries),
		BrokerRetryInterval: getDuration(lookup, "BROKER_RETRY_INTERVAL", defaultBrokerRetryInterval),
		BrokerPrefetch:      getInt(lookup, "BROKER_PREFETCH", defaultBrokerPrefetch),
		ReconcileInterval:   getDuration(lookup, "RECONCILE_INTERVAL", defaultReconcileInterval),
		ReconcileThreshold:  getDuration(lookup, "RECONCILE_THRESHOLD", defaultReconcileThreshold),
		ReconcileBatch:      getInt(lookup, "RECONCILE_BATCH", defaultReconcileBatch),
		OutboxInterval:      getDuration(lookup, "OUTBOX_INTERVAL", defaultOutboxInterval),
		OutboxBatch:         getInt(lookup, "OUTBOX_BATCH", defaultOutboxBatch),
		WorkerPoolSize:      getInt(lookup, "WORKER_POOL_SIZE", defaultWorkerPoolSize),
		ShutdownTimeout:     getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		SMTPHost:            getString(lookup, "SMTP_HOST", ""),
		SMTPPort:            getInt(lookup, "SMTP_PORT", defaultSMTPPort),
		SMTPUser:            getString(lookup, "SMTP_USER", ""),
		SMTPPassword:        getString(lookup, "SMTP_PASSWORD", ""),
		SenderEmail:         getString(lookup, "SENDER_EMAIL", ""),
	}

	fs := flag.NewFlagSet("jobber", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		escrowTimeoutStr      = cfg.EscrowTimeout.String()
		reconcileIntervalStr  = cfg.ReconcileInterval.String()
		reconcileThresholdStr = cfg.ReconcileThreshold.String()
		shutdownTimeoutStr    = cfg.ShutdownTimeout.String()
	)

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.RabbitMQURL, "amqp", cfg.RabbitMQURL, "RabbitMQ endpoint")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for order locks")
	fs.StringVar(&cfg.EscrowBaseURL, "escrow", cfg.EscrowBaseURL, "Escrow payment service base URL")
	fs.StringVar(&cfg.GatewaySecret, "gateway-secret", cfg.GatewaySecret, "Secret for gateway service tokens")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.IntVar(&cfg.WorkerPoolSize, "worker-pool", cfg.WorkerPoolSize, "Number of concurrent reconciliation workers")
	fs.IntVar(&cfg.ReconcileBatch, "reconcile-batch", cfg.ReconcileBatch, "Maximum orders per reconciliation batch")
	fs.StringVar(&escrowTimeoutStr, "escrow-timeout", escrowTimeoutStr, "Timeout for escrow gateway calls")
	fs.StringVar(&reconcileIntervalStr, "reconcile-interval", reconcileIntervalStr, "Interval between reconciliation sweeps")
	fs.StringVar(&reconcileThresholdStr, "reconcile-threshold", reconcileThresholdStr, "Age after which an order is considered stuck")
	fs.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error

	if cfg.EscrowTimeout, err = time.ParseDuration(escrowTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid escrow timeout: %w", err)
	}

	if cfg.ReconcileInterval, err = time.ParseDuration(reconcileIntervalStr); err != nil {
		return nil, fmt.Errorf("invalid reconcile interval: %w", err)
	}

	if cfg.ReconcileThreshold, err = time.ParseDuration(reconcileThresholdStr); err != nil {
		return nil, fmt.Errorf("invalid reconcile threshold: %w", err)
	}

	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	if secretFile, ok := lookup("GATEWAY_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read gateway secret file: %w", err)
		}
		cfg.GatewaySecret = strings.TrimSpace(string(content))
	}

	cfg.normalize()

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI must be provided")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("rabbitmq endpoint must be provided")
	}

	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = defaultReconcileBatch
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaultReconcileInterval
	}
	if cfg.ReconcileThreshold <= 0 {
		cfg.ReconcileThreshold = defaultReconcileThreshold
	}
	if cfg.OutboxInterval <= 0 {
		cfg.OutboxInterval = defaultOutboxInterval
	}
	if cfg.OutboxBatch <= 0 {
		cfg.OutboxBatch = defaultOutboxBatch
	}
	if cfg.EscrowTimeout <= 0 {
		cfg.EscrowTimeout = defaultEscrowTimeout
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = defaultCompensationTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.BrokerMaxRetries <= 0 {
		cfg.BrokerMaxRetries = defaultBrokerMaxRetries
	}
	if cfg.BrokerRetryInterval <= 0 {
		cfg.BrokerRetryInterval = defaultBrokerRetryInterval
	}
	if cfg.BrokerPrefetch <= 0 {
		cfg.BrokerPrefetch = defaultBrokerPrefetch
	}
	if cfg.SMTPPort <= 0 {
		cfg.SMTPPort = defaultSMTPPort
	}
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
