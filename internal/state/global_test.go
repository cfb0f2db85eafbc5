package state

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/twibridge/hardware/i2c"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/internal/api"
	"github.com/temoto/twibridge/internal/tele"
	tele_config "github.com/temoto/twibridge/internal/tele/config"
	"github.com/temoto/twibridge/log2"
)

type chanTransport struct {
	telemetry chan []byte
}

func (self *chanTransport) Init(context.Context, *log2.Log, tele_config.Config, tele.CommandCallback) error {
	return nil
}
func (self *chanTransport) SendTelemetry(payload []byte) bool {
	self.telemetry <- payload
	return true
}
func (self *chanTransport) SendRelays([]byte) bool { return true }
func (self *chanTransport) SendCommandResponse([]byte) bool { return true }
func (self *chanTransport) Close() {}

func TestGlobalErrorHook(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	config, err := ReadConfig(log, NewMockFullReader(map[string]string{"main.hcl": `
tele {
	enable = true
	broker = "tcp://localhost:1883"
	interval_sec = -1
}`}), "main.hcl")
	require.NoError(t, err)
	config.Tele.QueuePath = filepath.Join(t.TempDir(), "tele")

	ctx, g := NewContext(log)
	bus := i2c.NewMockBus(t)
	bus.Expect(mcu.DefaultAddress, []byte{0}, nil, errors.New("remote I/O error"))
	g.Bus = bus
	trans := &chanTransport{telemetry: make(chan []byte, 4)}
	g.Tele = tele.NewWithTransporter(trans)
	require.NoError(t, g.Init(ctx, config))
	defer g.StopWait(time.Second)
	require.True(t, g.Tele.Enabled())

	// api logger is cloned after Init, like serve does
	server := api.NewServer(g.Client, g.Log.Clone(log2.LInfo), "127.0.0.1:0", "")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var m map[string]interface{}
	select {
	case b := <-trans.telemetry:
		require.NoError(t, json.Unmarshal(b, &m))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for error telemetry")
	}
	assert.Contains(t, m["error"], "api /data")
	assert.Contains(t, m["error"], "remote I/O error")
	assert.NotContains(t, m, "reading")
	require.NoError(t, bus.ExpectationsWereMet())
}
