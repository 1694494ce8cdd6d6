package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	Site          string
	DatabaseURL   string
	JWTSigningKey string

	// BlueprintRoot is the directory holding per-tenant blueprint folders.
	BlueprintRoot string
	// BlueprintSlug selects this site's tenant blueprint; hooks and the
	// policy loader fall back to it when no explicit value is given.
	BlueprintSlug string
	// PolicyPath pins the tenant policy file explicitly, bypassing slug and
	// sites-map resolution.
	PolicyPath string
	// FilesRoot is where published letterhead assets land.
	FilesRoot string
	// HardenWorkspaces enables standard-workspace hardening during
	// provisioning runs. Off by default.
	HardenWorkspaces bool

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig controls the optional cross-request scope cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ScopeTTL     time.Duration
}

// KafkaConfig controls the best-effort audit event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ONBOARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	root := os.Getenv("ONBOARD_BLUEPRINT_ROOT")
	if root == "" {
		root = "blueprints"
	}

	filesRoot := os.Getenv("ONBOARD_FILES_ROOT")
	if filesRoot == "" {
		filesRoot = "public/files"
	}

	topic := os.Getenv("ONBOARD_AUDIT_TOPIC")
	if topic == "" {
		topic = "onboard.provision.events"
	}

	return Server{
		Addr:             addr,
		Site:             os.Getenv("ONBOARD_SITE"),
		DatabaseURL:      os.Getenv("ONBOARD_DATABASE_URL"),
		JWTSigningKey:    jwtSigningKey,
		BlueprintRoot:    root,
		BlueprintSlug:    os.Getenv("ONBOARD_BLUEPRINT"),
		PolicyPath:       os.Getenv("ONBOARD_POLICY_PATH"),
		FilesRoot:        filesRoot,
		HardenWorkspaces: boolEnv("ONBOARD_HARDEN_WORKSPACES"),
		Redis: RedisConfig{
			URL:          os.Getenv("ONBOARD_REDIS_URL"),
			PoolSize:     intEnv("ONBOARD_REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("ONBOARD_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			ScopeTTL:     5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: splitEnv("ONBOARD_KAFKA_BROKERS"),
			Topic:   topic,
		},
	}
}

func boolEnv(key string) bool {
	v := os.Getenv(key)
	return v == "1" || strings.EqualFold(v, "true")
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
