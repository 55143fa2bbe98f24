package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	platformgrpc "github.com/louisbranch/autonexus/internal/platform/grpc"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/platform/storage/redisstore"
	"github.com/louisbranch/autonexus/internal/platform/timeouts"
	"github.com/louisbranch/autonexus/internal/services/nexus/cache"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/events"
	"github.com/louisbranch/autonexus/internal/services/nexus/groups"
	"github.com/louisbranch/autonexus/internal/services/nexus/history"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
	"github.com/louisbranch/autonexus/internal/services/nexus/leaderboard"
	"github.com/louisbranch/autonexus/internal/services/nexus/meta"
	"github.com/louisbranch/autonexus/internal/services/nexus/presence"
	"github.com/louisbranch/autonexus/internal/services/nexus/router"
	"github.com/louisbranch/autonexus/internal/services/nexus/storage"
	nexussqlite "github.com/louisbranch/autonexus/internal/services/nexus/storage/sqlite"
	"github.com/louisbranch/autonexus/internal/services/nexus/txn"
)

// HealthService is the gRPC health service name tracking store reachability.
const HealthService = "nexus.runtime"

// RuntimeConfig controls node startup. Zero values take the defaults below.
type RuntimeConfig struct {
	Name              string
	Group             string
	Namespace         string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	DialTimeout       time.Duration
	CommandTimeout    time.Duration
	HeartbeatInterval time.Duration
	ServerTTL         time.Duration
	ReconnectInterval time.Duration
	CacheTTL          time.Duration
	MaxPlayers        int
	ConsoleTarget     string
	Port              int
	DBPath            string
	// KeepPresence skips clearing the shared online set at startup.
	KeepPresence bool
	LogLevel     string
	LogFormat    string
	Logger       *zap.Logger
	// Ready, when set, is called once the node is subscribed and serving.
	Ready func(*Network)
}

const (
	defaultNamespace         = "global"
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultHeartbeatInterval = 5 * time.Second
	defaultServerTTL         = 10 * time.Second
	defaultReconnectInterval = 5 * time.Second
	defaultMaxPlayers        = 100
	defaultConsoleTarget     = "lobby"
	defaultPort              = 8095
	defaultDBPath            = "data/nexus.db"
)

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Group = strings.TrimSpace(cfg.Group)
	if strings.TrimSpace(cfg.Namespace) == "" {
		cfg.Namespace = defaultNamespace
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		cfg.RedisAddr = defaultRedisAddr
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = timeouts.StoreDial
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = timeouts.StoreCommand
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ServerTTL <= 0 {
		cfg.ServerTTL = defaultServerTTL
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = defaultMaxPlayers
	}
	if strings.TrimSpace(cfg.ConsoleTarget) == "" {
		cfg.ConsoleTarget = defaultConsoleTarget
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	return cfg
}

// Run connects to the shared store, joins the network and blocks until ctx
// is done. A store that cannot be reached at startup is an error; later
// outages are ridden out by the reconnect monitor.
func Run(ctx context.Context, cfg RuntimeConfig, host Host) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if host == nil {
		return errors.New("host is required")
	}
	cfg = cfg.normalized()
	if cfg.Name == "" {
		return errors.New("server name is required")
	}

	logger := cfg.Logger
	if logger == nil {
		built, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer func() { _ = built.Sync() }()
		logger = built
	}
	logger = logger.With(zap.String("server", cfg.Name))

	journal, err := nexussqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open nexus journal: %w", err)
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			logger.Warn("close nexus journal", zap.Error(closeErr))
		}
	}()

	client, err := redisstore.Open(ctx, redisstore.Config{
		Addr:           cfg.RedisAddr,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: cfg.CommandTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to store %s: %w", cfg.RedisAddr, err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close store client", zap.Error(closeErr))
		}
	}()

	n, err := assemble(ctx, client, cfg, host, journal, logger)
	if err != nil {
		return err
	}

	if !cfg.KeepPresence {
		if err := n.network.presence.Clear(ctx); err != nil {
			return fmt.Errorf("clear presence: %w", err)
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on nexus port %d: %w", cfg.Port, err)
	}
	healthServer := platformgrpc.ServeHealth(listener, HealthService)
	defer healthServer.Stop()
	logger.Info("nexus health listening", zap.Stringer("addr", listener.Addr()))

	monitor := redisstore.NewMonitor(client, cfg.ReconnectInterval, logger, func(up bool) {
		healthServer.SetServing(HealthService, up)
	})

	return n.run(ctx, monitor, cfg.Ready)
}

// node holds one process's assembled components.
type node struct {
	network *Network
	router  *router.Router
	tracker *presence.Tracker
	cache   *cache.Cache
	host    Host
	max     int
	logger  *zap.Logger
}

// assemble wires every component to client. It resolves the group from the
// shared map when cfg leaves it blank.
func assemble(ctx context.Context, client redis.UniversalClient, cfg RuntimeConfig, host Host, journal storage.DispatchStore, logger *zap.Logger) (*node, error) {
	logger = logging.OrNop(logger)
	factory := keys.New(cfg.Namespace)
	groupMap := groups.New(client, factory)

	group := cfg.Group
	if group == "" {
		resolved, ok, err := groupMap.Resolve(ctx, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve group for %s: %w", cfg.Name, err)
		}
		group = domain.DefaultGroup
		if ok {
			group = resolved
		}
	}
	logger.Info("joined group", zap.String("group", group))

	localCache := cache.New(cfg.CacheTTL)
	buses := &events.Buses{}
	reload := &reloader{host: host, groups: groupMap, name: cfg.Name, pinned: cfg.Group != "", logger: logger}
	rt := router.New(client, router.Config{
		Identity:    router.Identity{Name: cfg.Name, Group: group},
		Executor:    host,
		Relocator:   host,
		Announcer:   host,
		Reloader:    reload,
		Invalidator: localCache,
		Journal:     journal,
		Events:      buses,
		Logger:      logger,
	})
	reload.router = rt

	engine := txn.NewEngine(client, factory, logger)
	ledger := history.New(client, factory, logger)
	manager := meta.New(engine, ledger, rt, buses, meta.Config{
		Source: cfg.Name,
		Group:  func() string { return rt.Identity().Group },
		Logger: logger,
	})
	tracker := presence.New(client, factory, presence.Config{
		Name:              cfg.Name,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ServerTTL:         cfg.ServerTTL,
	}, logger)

	network := &Network{
		name:          cfg.Name,
		consoleTarget: cfg.ConsoleTarget,
		engine:        engine,
		meta:          manager,
		board:         leaderboard.New(client, engine, factory),
		presence:      tracker,
		router:        rt,
		cache:         localCache,
		groups:        groupMap,
		journal:       journal,
		localPlayers:  host.LocalPlayers,
		logger:        logger.Named("network"),
	}
	return &node{
		network: network,
		router:  rt,
		tracker: tracker,
		cache:   localCache,
		host:    host,
		max:     cfg.MaxPlayers,
		logger:  logger,
	}, nil
}

// stats reports this process's load for the heartbeat.
func (n *node) stats() domain.ServerInfo {
	return domain.ServerInfo{
		Name:          n.network.name,
		OnlinePlayers: len(n.host.LocalPlayers()),
		MaxPlayers:    n.max,
		TPS:           n.host.TPS(),
	}
}

// run starts the background loops and blocks until ctx is done or one of
// them fails.
func (n *node) run(ctx context.Context, monitor *redisstore.Monitor, ready func(*Network)) error {
	g, gctx := errgroup.WithContext(ctx)
	subscribed := make(chan struct{})
	g.Go(func() error { return n.cache.Run(gctx) })
	g.Go(func() error { return n.router.RunNotify(gctx, func() { close(subscribed) }) })
	g.Go(func() error { return n.tracker.Heartbeat(gctx, n.stats) })
	if monitor != nil {
		g.Go(func() error { return monitor.Run(gctx) })
	}

	select {
	case <-subscribed:
		n.logger.Info("nexus node ready")
		if ready != nil {
			ready(n.network)
		}
	case <-gctx.Done():
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloader refreshes the group mapping before handing a network reload to
// the host. A group set in configuration is never overridden.
type reloader struct {
	host   router.Reloader
	groups *groups.Map
	router *router.Router
	name   string
	pinned bool
	logger *zap.Logger
}

func (r *reloader) Reload(ctx context.Context) error {
	if !r.pinned {
		group, ok, err := r.groups.Resolve(ctx, r.name)
		switch {
		case err != nil:
			r.logger.Warn("refresh group", zap.Error(err))
		case !ok:
			r.router.SetGroup(domain.DefaultGroup)
		default:
			if group != r.router.Identity().Group {
				r.logger.Info("group changed", zap.String("group", group))
			}
			r.router.SetGroup(group)
		}
	}
	return r.host.Reload(ctx)
}
