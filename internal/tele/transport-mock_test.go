package tele

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	tele_config "github.com/temoto/twibridge/internal/tele/config"
	"github.com/temoto/twibridge/log2"
)

type transportMock struct {
	t              testing.TB
	onCommand      func([]byte)
	networkTimeout time.Duration
	outBuffer      int
	outTelemetry   chan []byte
	outRelays      chan []byte
	outResponse    chan []byte
	closed         chan struct{}
	failRelays     int32 // atomic, SendRelays fails this many times
}

func newTransportMock(t testing.TB) *transportMock {
	return &transportMock{t: t, outBuffer: 16, networkTimeout: 5 * time.Second}
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error {
	self.onCommand = func(payload []byte) {
		self.t.Logf("mock command=%q", payload)
		onCommand(ctx, payload)
	}
	self.outTelemetry = make(chan []byte, self.outBuffer)
	self.outRelays = make(chan []byte, self.outBuffer)
	self.outResponse = make(chan []byte, self.outBuffer)
	self.closed = make(chan struct{})
	return nil
}

func (self *transportMock) send(ch chan []byte, kind string, payload []byte) bool {
	select {
	case ch <- payload:
		self.t.Logf("mock delivered %s=%s", kind, payload)
		return true
	case <-time.After(self.networkTimeout):
		self.t.Logf("mock network timeout")
		return false
	}
}

func (self *transportMock) SendTelemetry(payload []byte) bool {
	return self.send(self.outTelemetry, "telemetry", payload)
}
func (self *transportMock) SendRelays(payload []byte) bool {
	if atomic.AddInt32(&self.failRelays, -1) >= 0 {
		self.t.Logf("mock network failure")
		return false
	}
	return self.send(self.outRelays, "relays", payload)
}
func (self *transportMock) SendCommandResponse(payload []byte) bool {
	return self.send(self.outResponse, "response", payload)
}
func (self *transportMock) Close() { close(self.closed) }
