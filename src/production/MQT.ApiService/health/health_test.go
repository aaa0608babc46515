package health

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Config"
	implementation "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Implementation"
	transport "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Transport"
)

type stubSession struct{ state transport.ConnState }

func (s stubSession) State() transport.ConnState { return s.state }
func (s stubSession) IsConnected() bool          { return s.state >= transport.StateConnected }

func okPinger(context.Context) error { return nil }

func TestGetHealthStatus_AllHealthy(t *testing.T) {
	h := NewHealthChecker("sqlite", okPinger, stubSession{transport.StateConnected}, stubSession{transport.StateReceiving})

	status := h.GetHealthStatus(context.Background())

	assert.Equal(t, "ok", status["status"])
	checks := status["checks"].(map[string]interface{})
	assert.Equal(t, "receiving", checks["mqtt_sub"].(map[string]interface{})["state"])
	assert.True(t, h.Ready(context.Background()))
	assert.True(t, h.PublisherConnected())
}

func TestGetHealthStatus_Degraded(t *testing.T) {
	failing := func(context.Context) error { return errors.New("disk I/O error") }
	h := NewHealthChecker("sqlite", failing, stubSession{transport.StateConnected}, nil)

	status := h.GetHealthStatus(context.Background())

	assert.Equal(t, "degraded", status["status"])
	store := status["checks"].(map[string]interface{})["sqlite"].(map[string]interface{})
	assert.Equal(t, "disk I/O error", store["error"])
	assert.False(t, h.Ready(context.Background()))
}

func TestReady_RequiresPublisher(t *testing.T) {
	h := NewHealthChecker("sqlite", okPinger, stubSession{transport.StateConnecting}, stubSession{transport.StateSubscribed})
	assert.False(t, h.Ready(context.Background()))
	assert.False(t, h.PublisherConnected())

	assert.False(t, NewHealthChecker("sqlite", okPinger, nil, nil).PublisherConnected())
}

func TestSQLiteConnectAndCreateTables(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "h.db")}}

	db, err := ConnectSQLiteWithTimeout(cfg, 5*time.Second)
	require.NoError(t, err)
	dm := NewDatabaseManager(db, implementation.DialectSQLite)
	t.Cleanup(func() { dm.Close() })

	require.NoError(t, dm.CreateTables(context.Background()))
	require.NoError(t, dm.CreateTables(context.Background()), "schema creation is idempotent")

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode;").Scan(&mode))
	assert.Equal(t, "wal", mode)

	assert.NoError(t, SQLPinger(db)(context.Background()))
}

func TestSQLPinger_NilDB(t *testing.T) {
	assert.Error(t, SQLPinger(nil)(context.Background()))
	assert.Error(t, MongoPinger(nil)(context.Background()))
}
