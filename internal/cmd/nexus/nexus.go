// Package nexus parses sync node flags and launches the node runtime.
package nexus

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/autonexus/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/autonexus/internal/platform/grpc"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/platform/timeouts"
	nexusapp "github.com/louisbranch/autonexus/internal/services/nexus/app"
)

// Config holds sync node command configuration.
type Config struct {
	Name              string        `env:"AUTONEXUS_NAME"`
	Group             string        `env:"AUTONEXUS_GROUP"`
	Namespace         string        `env:"AUTONEXUS_NAMESPACE" envDefault:"global"`
	RedisAddr         string        `env:"AUTONEXUS_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword     string        `env:"AUTONEXUS_REDIS_PASSWORD"`
	RedisDB           int           `env:"AUTONEXUS_REDIS_DB" envDefault:"0"`
	DialTimeout       time.Duration `env:"AUTONEXUS_DIAL_TIMEOUT" envDefault:"2s"`
	CommandTimeout    time.Duration `env:"AUTONEXUS_COMMAND_TIMEOUT" envDefault:"3s"`
	HeartbeatInterval time.Duration `env:"AUTONEXUS_HEARTBEAT_INTERVAL" envDefault:"5s"`
	ServerTTL         time.Duration `env:"AUTONEXUS_SERVER_TTL" envDefault:"10s"`
	ReconnectInterval time.Duration `env:"AUTONEXUS_RECONNECT_INTERVAL" envDefault:"5s"`
	CacheTTL          time.Duration `env:"AUTONEXUS_CACHE_TTL" envDefault:"5m"`
	MaxPlayers        int           `env:"AUTONEXUS_MAX_PLAYERS" envDefault:"100"`
	ConsoleTarget     string        `env:"AUTONEXUS_CONSOLE_TARGET" envDefault:"lobby"`
	Port              int           `env:"AUTONEXUS_PORT" envDefault:"8095"`
	DBPath            string        `env:"AUTONEXUS_DB_PATH" envDefault:"data/nexus.db"`
	KeepPresence      bool          `env:"AUTONEXUS_KEEP_PRESENCE" envDefault:"false"`
	LogLevel          string        `env:"AUTONEXUS_LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"AUTONEXUS_LOG_FORMAT" envDefault:"console"`
	// Probe checks a running node's health instead of starting one.
	Probe bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Name, "name", cfg.Name, "This server's name on the network")
	fs.StringVar(&cfg.Group, "group", cfg.Group, "Server group; blank resolves from the shared group map")
	fs.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "Key namespace shared by the network")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "The shared store address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "The shared store password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "The shared store database index")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Shared store dial timeout")
	fs.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "Shared store command timeout")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "Server heartbeat interval")
	fs.DurationVar(&cfg.ServerTTL, "server-ttl", cfg.ServerTTL, "Server record lifetime without a heartbeat")
	fs.DurationVar(&cfg.ReconnectInterval, "reconnect-interval", cfg.ReconnectInterval, "Delay between store reconnect probes")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Local player record cache lifetime")
	fs.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "Advertised player capacity")
	fs.StringVar(&cfg.ConsoleTarget, "console-target", cfg.ConsoleTarget, "Server that runs console commands sent to everyone")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The nexus health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The dispatch journal SQLite path")
	fs.BoolVar(&cfg.KeepPresence, "keep-presence", cfg.KeepPresence, "Keep the shared online set at startup")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json")
	fs.BoolVar(&cfg.Probe, "probe", false, "Check the health of the node listening on -port and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sync node with a logging host.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceNexus, func(ctx context.Context) error {
		logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return nexusapp.Run(ctx, cfg.Runtime(logger), nexusapp.NewLogHost(logger, cfg.ConsoleTarget))
	})
}

// Probe reports whether the node on cfg.Port is serving.
func Probe(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	conn, err := platformgrpc.DialHealthy(ctx, addr, nexusapp.HealthService, timeouts.Shutdown, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	return conn.Close()
}

// Runtime maps the command configuration onto the node runtime.
func (cfg Config) Runtime(logger *zap.Logger) nexusapp.RuntimeConfig {
	return nexusapp.RuntimeConfig{
		Name:              cfg.Name,
		Group:             cfg.Group,
		Namespace:         cfg.Namespace,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
		DialTimeout:       cfg.DialTimeout,
		CommandTimeout:    cfg.CommandTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ServerTTL:         cfg.ServerTTL,
		ReconnectInterval: cfg.ReconnectInterval,
		CacheTTL:          cfg.CacheTTL,
		MaxPlayers:        cfg.MaxPlayers,
		ConsoleTarget:     cfg.ConsoleTarget,
		Port:              cfg.Port,
		DBPath:            cfg.DBPath,
		KeepPresence:      cfg.KeepPresence,
		LogLevel:          cfg.LogLevel,
		LogFormat:         cfg.LogFormat,
		Logger:            logger,
	}
}
