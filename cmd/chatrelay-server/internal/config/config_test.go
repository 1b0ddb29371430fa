package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "c2VjcmV0")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := parse()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sql", cfg.Database.Store)
	assert.Equal(t, "chat_", cfg.Database.Prefix)
	assert.Equal(t, "amqp", cfg.Broker.Kind)
	assert.Equal(t, "chat.exchange", cfg.Broker.Exchange)
	assert.Equal(t, 500, cfg.Broker.Prefetch)
	assert.Equal(t, 20, cfg.Broker.Consumers)
	assert.Equal(t, 100, cfg.Relay.RelayWorkers)
	assert.Equal(t, 5*time.Second, cfg.Relay.OperationTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Relay.DedupWindow)
	assert.Equal(t, 60*time.Second, cfg.Relay.DrainGrace)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "c2VjcmV0")
	t.Setenv("STORE", "mongo")
	t.Setenv("BROKER", "nats")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RELAY_DRAIN_GRACE", "2s")

	cfg, err := parse()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Database.Store)
	assert.Equal(t, "nats", cfg.Broker.Kind)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Relay.DrainGrace)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"DB_PASSWORD": "pw"}},
		{"missing db password", map[string]string{"JWT_SECRET": "x"}},
		{"unknown store", map[string]string{"JWT_SECRET": "x", "STORE": "files"}},
		{"unknown broker", map[string]string{"JWT_SECRET": "x", "DB_PASSWORD": "pw", "BROKER": "kafka"}},
		{"unknown driver", map[string]string{"JWT_SECRET": "x", "DB_PASSWORD": "pw", "DB_DRIVER": "oracle"}},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "DB_PASSWORD": "pw", "RELAY_DRAIN_GRACE": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := parse()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 1, Database: "d"}

	c.Driver = "mysql"
	assert.Equal(t, "u:p@tcp(h:1)/d?parseTime=true", c.GetDSN())

	c.Driver = "postgres"
	assert.Equal(t, "host=h port=1 user=u password=p dbname=d sslmode=disable", c.GetDSN())

	c.Driver = "sqlite3"
	assert.Equal(t, "d", c.GetDSN())

	c.Driver = "oracle"
	assert.Empty(t, c.GetDSN())
}
