package tele

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/helpers"
	tele_config "github.com/temoto/twibridge/internal/tele/config"
	"github.com/temoto/twibridge/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	defaultRetryDelay     = 5 * time.Second
	maxRetryDelay         = 5 * time.Minute
)

// Tele contract:
// - Init fails only with invalid config, network issues ignored
// - public calls block at most for queue disk write
//   network may be slow or absent, messages delivered in background, at least once
// - Close stops polling and delivery, undelivered messages stay in queue
// - delivery is FIFO, failed head is retried before anything queued after it
// - disabled Tele is a no-op
type Tele struct { //nolint:maligned
	config     tele_config.Config
	log        *log2.Log
	client     *mcu.Client
	transport  Transporter
	q          *spq.Queue
	alive      *alive.Alive
	retryDelay time.Duration
	retry      helpers.Backoff
	stat       Stat
}

type Stat struct {
	Queued    uint32
	Delivered uint32
	Failed    uint32
}

func New() *Tele { return &Tele{} }
func NewWithTransporter(trans Transporter) *Tele {
	return &Tele{transport: trans}
}

func (self *Tele) Enabled() bool { return self != nil && self.alive != nil }

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, client *mcu.Client) error {
	self.config = teleConfig
	self.log = log
	if !self.config.Enable {
		return nil
	}
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if self.config.QueuePath == "" {
		return errors.NotValidf("tele queue_path empty")
	}
	if self.retryDelay == 0 {
		self.retryDelay = defaultRetryDelay
	}
	self.retry = helpers.Backoff{Min: self.retryDelay, Max: maxRetryDelay, K: 2}
	self.client = client

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, log, teleConfig, self.onCommand); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	var err error
	self.q, err = spq.Open(self.config.QueuePath)
	if err != nil {
		self.transport.Close()
		return errors.Annotatef(err, "tele queue path=%s", self.config.QueuePath)
	}

	self.alive = alive.NewAlive()
	self.client.SetOnSent(func(mcu.Intent) { self.Relays() })
	self.alive.Add(1)
	go self.qworker()
	if self.config.IntervalSec > 0 {
		self.alive.Add(1)
		go self.pollLoop(time.Duration(self.config.IntervalSec) * time.Second)
	}
	self.Relays()
	return nil
}

func (self *Tele) Close() {
	if !self.Enabled() {
		return
	}
	self.client.SetOnSent(nil)
	self.alive.Stop()
	// unblocks qworker Peek
	if err := self.q.Close(); err != nil {
		self.log.Errorf("tele queue close err=%v", err)
	}
	self.alive.Wait()
	self.transport.Close()
}

func (self *Tele) Stat() Stat {
	return Stat{
		Queued:    atomic.LoadUint32(&self.stat.Queued),
		Delivered: atomic.LoadUint32(&self.stat.Delivered),
		Failed:    atomic.LoadUint32(&self.stat.Failed),
	}
}

// denote value type in persistent queue bytes form
const (
	qTelemetry       byte = 1
	qRelays          byte = 2
	qCommandResponse byte = 3
)

type telemetryMessage struct {
	Time    int64       `json:"time"`
	Reading *mcu.Reading `json:"reading,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type relaysMessage struct {
	Time   int64           `json:"time"`
	Source string          `json:"source"`
	Relays map[string]bool `json:"relays"`
}

type commandResponse struct {
	Time    int64  `json:"time"`
	Command string `json:"command"`
	Ok      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// Telemetry enqueues reading, err is attached for incomplete reads.
func (self *Tele) Telemetry(r mcu.Reading, err error) {
	if !self.Enabled() {
		return
	}
	m := telemetryMessage{Time: time.Now().UnixNano(), Reading: &r}
	if err != nil {
		m.Error = err.Error()
	}
	self.push(qTelemetry, m)
}

// Error enqueues message without reading, set as log error hook.
func (self *Tele) Error(err error) {
	if !self.Enabled() || err == nil {
		return
	}
	self.push(qTelemetry, telemetryMessage{Time: time.Now().UnixNano(), Error: err.Error()})
}

// Relays enqueues last commanded relay states.
func (self *Tele) Relays() {
	if !self.Enabled() {
		return
	}
	self.push(qRelays, relaysMessage{
		Time:   time.Now().UnixNano(),
		Source: "last_commanded",
		Relays: self.client.Relays().Named(),
	})
}

// PollOnce reads telemetry and enqueues it. Bus errors are logged, not queued.
func (self *Tele) PollOnce() {
	r, err := self.client.ReadTelemetry()
	switch {
	case err == nil, mcu.IsIncomplete(err):
		self.Telemetry(r, err)
	default:
		self.log.Errorf("tele poll err=%v", err)
	}
}

func (self *Tele) pollLoop(interval time.Duration) {
	defer self.alive.Done()
	tmr := time.NewTicker(interval)
	defer tmr.Stop()
	stopch := self.alive.StopChan()
	for {
		select {
		case <-tmr.C:
			self.PollOnce()
		case <-stopch:
			return
		}
	}
}

func (self *Tele) onCommand(ctx context.Context, payload []byte) {
	text := string(payload)
	r := commandResponse{Command: text}
	intent, err := self.client.SendText(text)
	if err != nil {
		r.Error = err.Error()
		self.log.Errorf("tele command=%q err=%v", text, err)
	} else {
		r.Ok = true
		r.Command = intent.String()
	}
	r.Time = time.Now().UnixNano()
	self.push(qCommandResponse, r)
}

func (self *Tele) push(tag byte, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		self.log.Errorf("tele marshal tag=%d err=%v", tag, err)
		return
	}
	buf := make([]byte, 0, 1+len(b))
	buf = append(buf, tag)
	buf = append(buf, b...)
	if err = self.q.Push(buf); err != nil {
		self.log.Errorf("tele queue push tag=%d err=%v", tag, err)
		return
	}
	atomic.AddUint32(&self.stat.Queued, 1)
}

func (self *Tele) qworker() {
	defer self.alive.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			b := box.Bytes()
			if self.qhandle(b) {
				atomic.AddUint32(&self.stat.Delivered, 1)
				self.retry.Reset()
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("tele queue Delete b=%x err=%v", b, err)
				}
				continue
			}
			// head stays in place, retained relays must not be reordered
			atomic.AddUint32(&self.stat.Failed, 1)
			delay := self.retry.Failure()
			self.log.Debugf("tele delivery failed, retry in %v", delay)
			select {
			case <-time.After(delay):
			case <-self.alive.StopChan():
				return
			}

		case spq.ErrClosed:
			return

		default:
			self.log.Errorf("CRITICAL tele queue err=%v", err)
			return
		}
	}
}

// true = delivered or junk, delete from queue
func (self *Tele) qhandle(b []byte) bool {
	if len(b) == 0 {
		self.log.Errorf("tele queue peek=empty")
		return true
	}
	payload := b[1:]
	switch b[0] {
	case qTelemetry:
		return self.transport.SendTelemetry(payload)
	case qRelays:
		return self.transport.SendRelays(payload)
	case qCommandResponse:
		return self.transport.SendCommandResponse(payload)
	}
	self.log.Errorf("tele queue unknown kind=%d", b[0])
	return true
}
