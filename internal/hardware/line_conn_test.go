package hardware

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/optical-switch/internal/opticalswitch"
)

type readResult struct {
	data []byte
	err  error
}

// scriptedPort 每次 Read 返回一个预设结果
type scriptedPort struct {
	reads   chan readResult
	closed  chan struct{}
	once    sync.Once
	flushes atomic.Int32

	mu      sync.Mutex
	written bytes.Buffer
}

func newScriptedPort() *scriptedPort {
	return &scriptedPort{
		reads:  make(chan readResult, 16),
		closed: make(chan struct{}),
	}
}

func (p *scriptedPort) push(data string) { p.reads <- readResult{data: []byte(data)} }

func (p *scriptedPort) fail(err error) { p.reads <- readResult{err: err} }

func (p *scriptedPort) Read(b []byte) (int, error) {
	select {
	case r := <-p.reads:
		return copy(b, r.data), r.err
	case <-p.closed:
		return 0, os.ErrClosed
	}
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *scriptedPort) Flush() error {
	p.flushes.Add(1)
	return nil
}

func (p *scriptedPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func TestLineConnSplitsAcrossReads(t *testing.T) {
	port := newScriptedPort()
	conn := NewLineConn(port, time.Second)
	defer conn.Close()

	port.push("SCAN 1")
	port.push("-16\r\nDO")
	port.push("NE\n\r\r\n")

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "SCAN 1-16", line)

	line, err = conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "DONE", line)

	// 空行被丢弃
	available, err := conn.Available()
	require.NoError(t, err)
	assert.False(t, available)
}

func TestLineConnQueuesChunkAtomically(t *testing.T) {
	port := newScriptedPort()
	conn := NewLineConn(port, time.Second)
	defer conn.Close()

	port.push("ports=8\r\ncurrent_port=0\r\nmode=idle\r\n")
	require.Eventually(t, func() bool {
		ok, _ := conn.Available()
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, conn.queued())
}

func TestLineConnToleratesReadTimeout(t *testing.T) {
	port := newScriptedPort()
	conn := NewLineConn(port, time.Second)
	defer conn.Close()

	port.fail(io.EOF)
	port.push("PORT 2\r\n")

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PORT 2", line)
}

func TestLineConnReportsReadError(t *testing.T) {
	port := newScriptedPort()
	conn := NewLineConn(port, time.Second)
	defer conn.Close()

	gone := errors.New("device gone")
	port.fail(gone)

	require.Eventually(t, func() bool {
		_, err := conn.Available()
		return errors.Is(err, gone)
	}, time.Second, 5*time.Millisecond)

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, gone)
}

func TestLineConnReadLineTimeout(t *testing.T) {
	conn := NewLineConn(newScriptedPort(), 20*time.Millisecond)
	defer conn.Close()

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, ErrLineTimeout)
}

func TestLineConnResetInput(t *testing.T) {
	port := newScriptedPort()
	conn := NewLineConn(port, time.Second)
	defer conn.Close()

	port.push("a\r\nb\r\n")
	require.Eventually(t, func() bool { return conn.queued() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.ResetInput())
	available, err := conn.Available()
	require.NoError(t, err)
	assert.False(t, available)
	assert.EqualValues(t, 1, port.flushes.Load())
}

func TestLineConnClose(t *testing.T) {
	port := newScriptedPort()
	conn := NewLineConn(port, time.Second)

	n, err := conn.Write([]byte("4\n\r"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Write([]byte("4\n\r"))
	assert.ErrorIs(t, err, ErrConnClosed)
	_, err = conn.Available()
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestSwitchOverSimulatedFirmware(t *testing.T) {
	sim := NewSimulatedSwitch(8)
	conn := NewLineConn(sim, time.Second)

	var (
		mu    sync.Mutex
		lines []string
	)
	sw := opticalswitch.New(conn,
		opticalswitch.WithPollInterval(5*time.Millisecond),
		opticalswitch.WithOwnedConn(),
		opticalswitch.WithResponseHandler(func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		}),
	)
	defer sw.Close()

	require.NoError(t, sw.ScanOne(3))
	mu.Lock()
	assert.Equal(t, []string{"PORT 3"}, lines)
	mu.Unlock()
	assert.Equal(t, 3, sim.CurrentPort())

	require.NoError(t, sw.SetCameraDelay(20, 40))
	before, after := sim.CameraDelay()
	assert.Equal(t, 20, before)
	assert.Equal(t, 40, after)

	assert.Equal(t, []string{"2,3", "5,20,40"}, sim.Received())
}
