package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr    string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath      string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath  string `envconfig:"DATABASE_PATH" default:"/app/data/hostdeck.db"`
	LogPath       string `envconfig:"LOG_PATH" default:"/app/data/hostdeck.log"`
	InventoryPath string `envconfig:"INVENTORY_PATH" default:"/app/data/hosts.yaml"`

	// Connection pool settings
	SSHConnectTimeout time.Duration `envconfig:"SSH_CONNECT_TIMEOUT" default:"10s"`
	PoolIdleTimeout   time.Duration `envconfig:"POOL_IDLE_TIMEOUT" default:"5m"`
	PoolReapInterval  time.Duration `envconfig:"POOL_REAP_INTERVAL" default:"60s"`
	PoolMaxConns      int           `envconfig:"POOL_MAX_CONNECTIONS" default:"0"`

	// Command history settings
	HistoryLimit int           `envconfig:"HISTORY_LIMIT" default:"100"`
	HistoryTTL   time.Duration `envconfig:"HISTORY_TTL" default:"24h"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("HOSTDECK", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
