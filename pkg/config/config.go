package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Configuration is the full node configuration, loaded from a YAML file with
// MESHNODE_* environment overrides.
type Configuration struct {
	ListenAddr string           `mapstructure:"listen_addr"`
	Database   DatabaseSettings `mapstructure:"database"`
	Mesh       MeshSettings     `mapstructure:"mesh"`
	Profile    ProfileSettings  `mapstructure:"profile"`
}

// DatabaseSettings selects and configures the durable store. Driver is
// "postgres" or "memory".
type DatabaseSettings struct {
	Driver   string `mapstructure:"driver"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	DB       string `mapstructure:"db"`
}

// DSN builds the postgres connection string.
func (d DatabaseSettings) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", d.User, d.Password, d.Host, d.DB)
}

// MeshSettings configures the broadcast channel and the timing of the
// periodic mesh work.
type MeshSettings struct {
	BrokerURL string `mapstructure:"broker_url"`
	Topic     string `mapstructure:"topic"`
	ClientID  string `mapstructure:"client_id"`

	// EmbeddedBroker runs an in-process MQTT broker on BrokerListenAddr so a
	// standalone mesh needs no external infrastructure.
	EmbeddedBroker   bool   `mapstructure:"embedded_broker"`
	BrokerListenAddr string `mapstructure:"broker_listen_addr"`

	// HeartbeatInterval is how often this node broadcasts its presence.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// LivenessTimeout is how long a peer survives without a heartbeat before
	// it is evicted from the presence table.
	LivenessTimeout time.Duration `mapstructure:"liveness_timeout"`
	// SyncDelay is the one-shot delay after startup before the node asks the
	// mesh for a full state sync, giving the transport time to warm up.
	SyncDelay time.Duration `mapstructure:"sync_delay"`
	// ResyncInterval re-emits a sync-request periodically. Zero disables.
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// ProfileSettings seeds the local profile on first boot. Ignored once a
// profile exists in the store.
type ProfileSettings struct {
	Name         string `mapstructure:"name"`
	Profession   string `mapstructure:"profession"`
	Location     string `mapstructure:"location"`
	MobileNumber string `mapstructure:"mobile_number"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.user", "meshnode")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.db", "meshnode")
	v.SetDefault("mesh.broker_url", "tcp://localhost:1883")
	v.SetDefault("mesh.topic", "skillmesh/tasks/v1")
	v.SetDefault("mesh.client_id", "")
	v.SetDefault("mesh.embedded_broker", false)
	v.SetDefault("mesh.broker_listen_addr", ":1883")
	v.SetDefault("mesh.heartbeat_interval", 15*time.Second)
	v.SetDefault("mesh.liveness_timeout", 60*time.Second)
	v.SetDefault("mesh.sync_delay", 2*time.Second)
	v.SetDefault("mesh.resync_interval", 0)
	v.SetDefault("profile.name", "")
	v.SetDefault("profile.profession", "")
	v.SetDefault("profile.location", "")
	v.SetDefault("profile.mobile_number", "")
}

// Load reads the configuration. An empty path searches the working directory
// and /etc/meshnode for config.yaml; a missing file is fine, defaults and
// environment variables still apply.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/meshnode")
	}

	v.SetEnvPrefix("MESHNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Configuration
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
