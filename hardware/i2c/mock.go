package i2c

// Public API to easy create I2C stubs to test your code.
import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/juju/errors"
)

type mockTx struct {
	addr byte
	w    []byte
	r    []byte
	err  error
}

// MockBus replays scripted transactions in order.
// Set Fun to handle transactions dynamically instead, e.g. concurrent tests.
type MockBus struct {
	Fun func(addr byte, w, r []byte) error

	t       testing.TB
	mu      sync.Mutex
	expects []mockTx
	index   int
	written [][]byte
	closed  bool
}

var _ Bus = &MockBus{}

func NewMockBus(t testing.TB) *MockBus {
	return &MockBus{
		t:       t,
		expects: make([]mockTx, 0, 16),
	}
}

// Expect next Tx with exactly this addr and w, fill r with response.
func (m *MockBus) Expect(addr byte, w, r []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expects = append(m.expects, mockTx{addr: addr, w: w, r: r, err: err})
}

func (m *MockBus) ExpectRead(addr byte, w []byte, r []byte) { m.Expect(addr, w, r, nil) }
func (m *MockBus) ExpectWrite(addr byte, w []byte, err error) { m.Expect(addr, w, nil, err) }

func (m *MockBus) Tx(addr byte, w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.Errorf("mock i2c closed")
	}
	if len(w) != 0 {
		m.written = append(m.written, append([]byte(nil), w...))
	}
	if m.Fun != nil {
		return m.Fun(addr, w, r)
	}

	if m.index >= len(m.expects) {
		msg := fmt.Sprintf("mock i2c unexpected Tx addr=%02x w=%x len(r)=%d", addr, w, len(r))
		m.t.Error(msg)
		return errors.New(msg)
	}
	call := m.expects[m.index]
	m.index++
	if call.addr != addr || !bytes.Equal(call.w, w) {
		m.t.Errorf("mock i2c Tx expected addr=%02x w=%x actual addr=%02x w=%x", call.addr, call.w, addr, w)
	}
	if call.r != nil {
		copy(r, call.r)
	}
	return call.err
}

func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Written returns copies of every non-empty write in call order.
func (m *MockBus) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

func (m *MockBus) ExpectationsWereMet() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != len(m.expects) {
		return errors.Errorf("mock i2c consumed=%d of expected=%d", m.index, len(m.expects))
	}
	return nil
}
