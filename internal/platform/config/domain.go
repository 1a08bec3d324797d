package config

import "time"

// RedisConfig configures the event broker and its local-queue fallback (§6).
type RedisConfig struct {
	URL                   string        `yaml:"url" env:"REDIS_URL" default:"redis://localhost:6379/0"`
	Password              string        `yaml:"password" env:"REDIS_PASSWORD"`
	MaxConnections        int           `yaml:"max_connections" env:"REDIS_MAX_CONNECTIONS" default:"10"`
	RetryOnTimeout        bool          `yaml:"retry_on_timeout" env:"REDIS_RETRY_ON_TIMEOUT" default:"true"`
	LocalQueueMaxSize     int           `yaml:"local_queue_max_size" env:"REDIS_LOCAL_QUEUE_MAX_SIZE" default:"1000"`
	LocalQueuePersistFile string        `yaml:"local_queue_persistence_file" env:"REDIS_LOCAL_QUEUE_PERSISTENCE_FILE" default:"eventbus_local_queue.jsonl"`
	PublishTimeout        time.Duration `yaml:"publish_timeout" env:"REDIS_PUBLISH_TIMEOUT" default:"3s"`
}

// DocumentStoreConfig configures the MongoDB-backed document store.
type DocumentStoreConfig struct {
	URI            string        `yaml:"uri" env:"MONGODB_URI" default:"mongodb://localhost:27017"`
	Database       string        `yaml:"database" env:"MONGODB_DATABASE" default:"yabot"`
	MinPoolSize    int           `yaml:"min_pool_size" env:"MONGODB_MIN_POOL_SIZE" default:"1"`
	MaxPoolSize    int           `yaml:"max_pool_size" env:"MONGODB_MAX_POOL_SIZE" default:"10"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"MONGODB_CONNECT_TIMEOUT" default:"5s"`
	PingTimeout    time.Duration `yaml:"ping_timeout" env:"MONGODB_PING_TIMEOUT" default:"2s"`
}

// RelationalStoreConfig configures the sqlite-backed relational store.
type RelationalStoreConfig struct {
	DatabasePath   string        `yaml:"database_path" env:"SQLITE_DATABASE_PATH" default:"yabot.db"`
	MaxOpenConns   int           `yaml:"max_open_connections" env:"SQLITE_MAX_OPEN_CONNECTIONS" default:"10"`
	MaxIdleConns   int           `yaml:"max_idle_connections" env:"SQLITE_MAX_IDLE_CONNECTIONS" default:"5"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"SQLITE_CONNECT_TIMEOUT" default:"5s"`
	PingTimeout    time.Duration `yaml:"ping_timeout" env:"SQLITE_PING_TIMEOUT" default:"2s"`
}

// ChannelConfig configures the chat channel the Coordinator operates
// within.
type ChannelConfig struct {
	MainChannel           string `yaml:"main_channel" env:"MAIN_CHANNEL"`
	RequiredReactionEmoji string `yaml:"required_reaction_emoji" env:"REQUIRED_REACTION_EMOJI" default:"❤️"`
}

// Config is the full set of environment-driven configuration for the core.
type Config struct {
	Redis      RedisConfig           `yaml:"redis"`
	Document   DocumentStoreConfig   `yaml:"document_store"`
	Relational RelationalStoreConfig `yaml:"relational_store"`
	Channel    ChannelConfig         `yaml:"channel"`
}

// Load reads Config from an optional YAML file at yamlPath (skipped if
// yamlPath is empty or the file does not exist), then overlays environment
// variables on top, which always win over the file.
func Load(yamlPath string) (*Config, error) {
	var c Config
	if yamlPath != "" {
		if err := LoadFromFile(yamlPath, &c); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
