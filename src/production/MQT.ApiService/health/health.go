package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	config "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Config"
	implementation "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Implementation"
	transport "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Transport"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Session is the read-only view of an MQTT session the checker needs.
type Session interface {
	State() transport.ConnState
	IsConnected() bool
}

// StorePinger checks the durable store.
type StorePinger func(ctx context.Context) error

// HealthChecker provides health check functionality
type HealthChecker struct {
	storeName  string
	pingStore  StorePinger
	publisher  Session
	subscriber Session
}

// NewHealthChecker creates a new health checker. Either session may be nil.
func NewHealthChecker(storeName string, ping StorePinger, publisher, subscriber Session) *HealthChecker {
	return &HealthChecker{storeName: storeName, pingStore: ping, publisher: publisher, subscriber: subscriber}
}

// SQLPinger pings and runs a trivial query.
func SQLPinger(db *sql.DB) StorePinger {
	return func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("database connection is nil")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		var result int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
			return fmt.Errorf("database query failed: %w", err)
		}
		return nil
	}
}

// MongoPinger pings the primary.
func MongoPinger(client *mongo.Client) StorePinger {
	return func(ctx context.Context) error {
		if client == nil {
			return fmt.Errorf("mongo client is nil")
		}
		return client.Ping(ctx, readpref.Primary())
	}
}

// PublisherConnected is the liveness value reported by GET /health.
func (h *HealthChecker) PublisherConnected() bool {
	return h.publisher != nil && h.publisher.IsConnected()
}

// CheckStoreHealth checks the durable store.
func (h *HealthChecker) CheckStoreHealth(ctx context.Context) error {
	if h.pingStore == nil {
		return fmt.Errorf("no store configured")
	}
	return h.pingStore(ctx)
}

// Ready reports whether the process can both record and dispatch.
func (h *HealthChecker) Ready(ctx context.Context) bool {
	return h.CheckStoreHealth(ctx) == nil && h.PublisherConnected()
}

// GetHealthStatus returns the current health status
func (h *HealthChecker) GetHealthStatus(ctx context.Context) map[string]interface{} {
	checks := make(map[string]interface{})
	status := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}

	storeStatus := "ok"
	if err := h.CheckStoreHealth(ctx); err != nil {
		storeStatus = "error"
		checks[h.storeName] = map[string]interface{}{"status": storeStatus, "error": err.Error()}
	} else {
		checks[h.storeName] = map[string]interface{}{"status": storeStatus}
	}

	checks["mqtt_pub"] = sessionStatus(h.publisher)
	checks["mqtt_sub"] = sessionStatus(h.subscriber)

	overallStatus := "ok"
	if storeStatus != "ok" || !h.PublisherConnected() || h.subscriber == nil || !h.subscriber.IsConnected() {
		overallStatus = "degraded"
	}
	status["status"] = overallStatus

	return status
}

func sessionStatus(s Session) map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"state": transport.StateDisconnected.String(), "connected": false}
	}
	return map[string]interface{}{"state": s.State().String(), "connected": s.IsConnected()}
}

// DatabaseManager handles schema setup for the SQL stores
type DatabaseManager struct {
	db      *sql.DB
	dialect implementation.Dialect
}

// NewDatabaseManager creates a new database manager
func NewDatabaseManager(db *sql.DB, dialect implementation.Dialect) *DatabaseManager {
	return &DatabaseManager{db: db, dialect: dialect}
}

// CreateTables creates the message log and locker state tables if they don't exist
func (dm *DatabaseManager) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := implementation.CreateSchema(ctx, dm.db, dm.dialect); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db != nil {
		return dm.db.Close()
	}
	return nil
}

// ConnectPostgresWithTimeout creates a PostgreSQL connection with a timeout context
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Store.MaxConns)
	db.SetMaxIdleConns(cfg.Store.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ConnectSQLiteWithTimeout opens the embedded database file in WAL mode.
// A single connection serializes every statement, which keeps message ids
// strictly increasing without further locking.
func ConnectSQLiteWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite3", cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("unable to configure SQLite: %w", err)
		}
	}
	return db, nil
}

// ConnectMongoWithTimeout connects and pings MongoDB.
func ConnectMongoWithTimeout(cfg *config.Config, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Store.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}
	return client, nil
}
