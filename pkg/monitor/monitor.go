package monitor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"strings"

	"github.com/din-network/din-monitor/pkg/api"
	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/clock"
	"github.com/din-network/din-monitor/pkg/config"
	"github.com/din-network/din-monitor/pkg/crypto"
	"github.com/din-network/din-monitor/pkg/data"
	"github.com/din-network/din-monitor/pkg/memory"
	"github.com/din-network/din-monitor/pkg/output"
	"github.com/din-network/din-monitor/pkg/performance"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/reporter"
	"github.com/din-network/din-monitor/pkg/slashing"
	"github.com/din-network/din-monitor/pkg/staking"
	"github.com/din-network/din-monitor/pkg/store"
	"github.com/din-network/din-monitor/pkg/telemetry"
	"github.com/din-network/din-monitor/pkg/website"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const eventBufferSize uint = 32

type Monitor struct {
	logger        *zap.Logger
	networkConfig *config.NetworkConfig

	store       store.Storer
	registry    *registry.Registry
	ledger      *staking.Ledger
	bus         *bus.Bus
	slashing    *slashing.Engine
	performance *performance.Monitor
	memory      *memory.Shared
	reporter    *reporter.Reporter

	events    chan data.Event
	collector *data.Collector
	api       *api.Server
	website   *website.Webserver

	detachBlackboard func()
	closers          []io.Closer
}

func parseOperatorsFromEndpoint(ctx context.Context, logger *zap.SugaredLogger, operatorEndpoints []string) []*telemetry.Client {
	var operators []*telemetry.Client
	for _, endpoint := range operatorEndpoints {
		operator, err := telemetry.NewClient(endpoint)
		if err != nil {
			logger.Warnf("could not instantiate operator telemetry at %s: %v", endpoint, err)
			continue
		}

		err = operator.GetStatus(ctx)
		if err != nil {
			logger.Warnf("operator %s has status error: %v", operator, err)
		}

		operators = append(operators, operator)
	}
	if len(operatorEndpoints) > 0 && len(operators) == 0 {
		logger.Warn("could not parse any operator endpoints, please check configuration")
	}
	return operators
}

func newStore(cfg *config.StoreConfig, zapLogger *zap.Logger) (store.Storer, error) {
	if cfg.Dsn == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(cfg.Dsn, zapLogger)
}

// newBus also returns the publisher the monitor's own components publish
// through, which signs their messages when a signing key is configured.
func newBus(cfg *config.BusConfig, zapLogger *zap.Logger) (*bus.Bus, crypto.Publisher, error) {
	var opts []bus.Option

	topics := make([]bus.Topic, 0, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		topics = append(topics, bus.Topic(topic))
	}
	opts = append(opts, bus.WithTopics(topics...))

	var key *ecdsa.PrivateKey
	if cfg.SigningKey != "" {
		var err error
		key, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.SigningKey, "0x"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid bus signing key: %v", err)
		}
	}

	if len(cfg.Signers) > 0 || key != nil {
		signers := make([]common.Address, 0, len(cfg.Signers)+1)
		for _, signer := range cfg.Signers {
			if !common.IsHexAddress(signer) {
				return nil, nil, fmt.Errorf("invalid bus signer address %q", signer)
			}
			signers = append(signers, common.HexToAddress(signer))
		}
		if key != nil && len(signers) > 0 {
			signers = append(signers, crypto.PubkeyToAddress(key.PublicKey))
		}
		opts = append(opts, bus.WithVerifier(crypto.NewVerifier(signers...)))
	}
	if cfg.RequireSignatures {
		opts = append(opts, bus.WithRequiredSignatures())
	}

	b := bus.New(zapLogger, opts...)
	if key == nil {
		return b, b, nil
	}
	return b, crypto.NewSigningPublisher(b, key, zapLogger), nil
}

func newOutput(cfg *config.BusConfig) (*output.Output, error) {
	if cfg.Output == nil || cfg.Output.Path == "" {
		return nil, nil
	}

	var kafkaConfig *output.KafkaConfig
	if cfg.Kafka != nil {
		kafkaConfig = &output.KafkaConfig{
			Topic:            cfg.Kafka.Topic,
			BootstrapServers: cfg.Kafka.BootstrapServers,
		}
	}
	return output.NewFileOutput(cfg.Output.Path, kafkaConfig)
}

func newKV(ctx context.Context, cfg *config.MemoryConfig, logger *zap.SugaredLogger) (memory.KV, io.Closer) {
	if cfg.RedisAddr == "" {
		return memory.NewMemoryKV(), nil
	}

	kv := memory.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := kv.Ping(ctx); err != nil {
		logger.Warnf("redis at %s is not reachable, shared memory will retry on use: %v", cfg.RedisAddr, err)
	}
	return kv, kv
}

func New(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (*Monitor, error) {
	logger := zapLogger.Sugar()

	minStake, err := cfg.MinStake()
	if err != nil {
		return nil, err
	}

	s, err := newStore(cfg.Store, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("could not instantiate store: %v", err)
	}
	m := &Monitor{
		logger:        zapLogger,
		networkConfig: cfg.Network,
		store:         s,
		closers:       []io.Closer{s},
	}

	var publisher crypto.Publisher
	m.bus, publisher, err = newBus(cfg.Bus, zapLogger)
	if err != nil {
		m.Close()
		return nil, err
	}
	out, err := newOutput(cfg.Bus)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("could not open bus output: %v", err)
	}
	if out != nil {
		m.bus.RegisterTransport(out)
		m.closers = append(m.closers, out)
	}

	m.registry = registry.New(s, zapLogger)
	m.ledger = staking.New(m.registry, zapLogger).WithMinStake(minStake)

	m.slashing = slashing.New(m.registry, publisher, zapLogger)
	if cfg.Slashing.RetryAttempts > 0 || cfg.Slashing.RetryDelay > 0 {
		attempts, delay := cfg.Slashing.RetryAttempts, cfg.Slashing.RetryDelay
		if attempts == 0 {
			attempts = slashing.DefaultRetryAttempts
		}
		if delay == 0 {
			delay = slashing.DefaultRetryDelay
		}
		m.slashing.Outbox().WithRetry(attempts, delay)
	}
	if cfg.Slashing.DedupWindow > 0 {
		m.slashing.Outbox().WithDedupWindow(cfg.Slashing.DedupWindow)
	}

	cacheSize := cfg.Performance.SampleCacheSize
	if cacheSize <= 0 {
		cacheSize = performance.DefaultSampleCacheSize
	}
	m.performance, err = performance.NewWithCacheSize(m.registry, m.slashing, publisher, zapLogger, cacheSize)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("could not instantiate performance monitor: %v", err)
	}
	if cfg.Performance.HistoryCapacity > 0 {
		m.performance.WithHistoryCapacity(cfg.Performance.HistoryCapacity)
	}

	kv, kvCloser := newKV(ctx, cfg.Memory, logger)
	if kvCloser != nil {
		m.closers = append(m.closers, kvCloser)
	}
	m.memory = memory.NewShared(kv, nil)
	ttl := cfg.Memory.ScoreTTL
	if ttl <= 0 {
		ttl = memory.DefaultScoreTTL
	}
	m.detachBlackboard = memory.NewBlackboard(m.memory, zapLogger, ttl).Attach(m.bus)

	m.reporter = reporter.NewReporter(m.registry, m.performance, reporter.NewScorer(logger), logger)

	m.events = make(chan data.Event, eventBufferSize)
	operators := parseOperatorsFromEndpoint(ctx, logger, cfg.Collector.Endpoints)
	m.collector = data.NewCollector(zapLogger, operators, clock.New(cfg.Collector.Interval), m.events)

	m.api = api.New(&api.Config{
		Host:      cfg.Api.Host,
		Port:      cfg.Api.Port,
		RateLimit: cfg.Api.RateLimit,
		Burst:     cfg.Api.Burst,
	}, zapLogger, &api.Services{
		Registry:    m.registry,
		Ledger:      m.ledger,
		Slashing:    m.slashing,
		Performance: m.performance,
		Reporter:    m.reporter,
		Bus:         m.bus,
		Memory:      m.memory,
	})

	if cfg.Website.Enabled {
		m.website, err = website.NewWebserver(&website.WebserverOpts{
			ListenAddress:     fmt.Sprintf("%s:%d", cfg.Website.Host, cfg.Website.Port),
			Network:           cfg.Network.Name,
			MinStake:          minStake,
			Registry:          m.registry,
			Reporter:          m.reporter,
			Bus:               m.bus,
			Log:               logger,
			ShowConfigDetails: cfg.Website.ShowConfigDetails,
			LinkMonitorAPI:    cfg.Website.LinkMonitorAPI,
		})
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("could not instantiate website: %v", err)
		}
	}

	return m, nil
}

// Run blocks until ctx is done or one of the services fails.
func (m *Monitor) Run(ctx context.Context) error {
	logger := m.logger.Sugar()

	logger.Infof("starting DIN monitor for %s network", m.networkConfig.Name)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.collector.Run(ctx)
	})
	g.Go(func() error {
		return m.performance.Run(ctx, m.events)
	})
	g.Go(func() error {
		return m.slashing.Run(ctx)
	})
	g.Go(func() error {
		return m.api.Run(ctx)
	})
	if m.website != nil {
		g.Go(func() error {
			return m.website.StartServer(ctx)
		})
	}

	err := g.Wait()
	if err != nil {
		logger.Warnw("monitor stopped with error", "error", err)
	}
	return err
}

func (m *Monitor) Close() {
	logger := m.logger.Sugar()

	if m.detachBlackboard != nil {
		m.detachBlackboard()
	}
	if m.bus != nil {
		m.bus.Close()
	}
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			logger.Warnw("could not close resource", "error", err)
		}
	}
	m.closers = nil
}
