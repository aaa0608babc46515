package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.ApiService/health"
	commands "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Commands"
	config "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Config"
	mqtingestor "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Ingestor"
	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Metrics"
	query "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Query"
	implementation "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
	topic "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Topic"
	transport "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Transport"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container manages dependencies and their lifecycle
type Container struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	scheme  topic.Scheme

	// Store, exactly one of db or mongoClient is set after InitializeStore
	db          *sql.DB
	mongoClient *mongo.Client
	messageLog  interfaces.MessageLog
	states      interfaces.LockerStateRepository

	publisher  *transport.Publisher
	subscriber *transport.Subscriber

	healthChecker *health.HealthChecker

	mu           sync.RWMutex
	cleanupFuncs []func() error
}

// NewContainer loads configuration and builds the logger and metrics.
// Nothing is connected until InitializeStore and StartTransport.
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewContainerWithConfig(cfg, logger.NewLogger(&cfg.Logging)), nil
}

// NewContainerWithConfig is NewContainer with explicit dependencies.
func NewContainerWithConfig(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		config:  cfg,
		logger:  log,
		metrics: metrics.New(),
		scheme:  topic.NewScheme(cfg.Locker.TopicPrefix),
	}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

func (c *Container) GetMetrics() *metrics.Metrics {
	return c.metrics
}

// InitializeStore connects the configured store and creates its schema.
func (c *Container) InitializeStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	timeout := c.config.Store.ConnectTimeout
	switch c.config.Store.Driver {
	case config.DriverSQLite, config.DriverPostgres:
		dialect := implementation.DialectSQLite
		connect := health.ConnectSQLiteWithTimeout
		if c.config.Store.Driver == config.DriverPostgres {
			dialect = implementation.DialectPostgres
			connect = health.ConnectPostgresWithTimeout
		}
		db, err := connect(c.config, timeout)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := health.NewDatabaseManager(db, dialect).CreateTables(ctx); err != nil {
			db.Close()
			return err
		}
		c.db = db
		c.messageLog = implementation.NewSQLMessageRepository(db, dialect)
		c.states = implementation.NewSQLLockerStateRepository(db, dialect)
		c.cleanupFuncs = append(c.cleanupFuncs, db.Close)

	case config.DriverMongo:
		client, err := health.ConnectMongoWithTimeout(c.config, timeout)
		if err != nil {
			return err
		}
		mdb := client.Database(c.config.Store.MongoDB)
		if err := implementation.EnsureMongoIndexes(ctx, mdb); err != nil {
			_ = client.Disconnect(context.Background())
			return fmt.Errorf("failed to create indexes: %w", err)
		}
		c.mongoClient = client
		c.messageLog = implementation.NewMongoMessageRepository(mdb)
		c.states = implementation.NewMongoLockerStateRepository(mdb)
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			return client.Disconnect(context.Background())
		})

	default:
		return fmt.Errorf("unknown store driver %q", c.config.Store.Driver)
	}

	c.logger.WithField("driver", c.config.Store.Driver).Info("Store initialized successfully")
	return nil
}

// StartTransport starts the publisher and subscriber sessions and waits up
// to MQTT.ConnectWait for the publisher. A publisher that is still
// connecting is not an error; dispatch answers 503 until it connects.
func (c *Container) StartTransport() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pub := transport.NewPublisher(transport.OptionsFromConfig(c.config, c.config.PublisherClientID()), c.logger)
	pubGauge := c.metrics.SessionState("pub")
	pub.OnStateChange(func(s transport.ConnState) { pubGauge(int(s)) })

	sub := transport.NewSubscriber(
		transport.OptionsFromConfig(c.config, c.config.SubscriberClientID()),
		c.scheme.Wildcard(),
		byte(c.config.Locker.QoS),
		c.config.Locker.IngestBuffer,
		c.logger,
	)
	subGauge := c.metrics.SessionState("sub")
	sub.OnStateChange(func(s transport.ConnState) { subGauge(int(s)) })

	if err := pub.Start(); err != nil {
		return fmt.Errorf("failed to start MQTT publisher: %w", err)
	}
	c.cleanupFuncs = append(c.cleanupFuncs, func() error { pub.Stop(); return nil })

	if err := sub.Start(); err != nil {
		return fmt.Errorf("failed to start MQTT subscriber: %w", err)
	}
	c.cleanupFuncs = append(c.cleanupFuncs, func() error { sub.Stop(); return nil })

	c.publisher = pub
	c.subscriber = sub

	if !pub.WaitConnected(c.config.MQTT.ConnectWait) {
		c.logger.Warn("MQTT publisher not connected yet, unlock requests will be rejected until it is")
	}
	return nil
}

// GetSubscriber returns the inbound session, nil before StartTransport.
func (c *Container) GetSubscriber() *transport.Subscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriber
}

func (c *Container) GetIngestor() *mqtingestor.Ingestor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return mqtingestor.New(c.scheme, c.messageLog, c.states, c.metrics, c.logger)
}

func (c *Container) GetQueryService() *query.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return query.NewService(c.messageLog, c.states)
}

func (c *Container) GetDispatcher() *commands.Dispatcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return commands.NewDispatcher(c.publisher, c.scheme, c.metrics, c.logger)
}

// GetHealthChecker returns the health checker
func (c *Container) GetHealthChecker() *health.HealthChecker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthChecker == nil {
		ping := health.SQLPinger(c.db)
		if c.mongoClient != nil {
			ping = health.MongoPinger(c.mongoClient)
		}
		var pub, sub health.Session
		if c.publisher != nil {
			pub = c.publisher
		}
		if c.subscriber != nil {
			sub = c.subscriber
		}
		c.healthChecker = health.NewHealthChecker(c.config.Store.Driver, ping, pub, sub)
	}
	return c.healthChecker
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	// Execute cleanup functions in reverse order
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
