package hardware

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s *SimulatedSwitch) string {
	t.Helper()
	buf := make([]byte, 1024)
	n, err := s.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestSimulatedSwitchResponses(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"scan all", "1\n\r", "SCAN 1-8\r\nDONE\r\n"},
		{"scan all continuous", "1,1\n\r", "SCAN 1-8 CONTINUOUS\r\n"},
		{"scan one", "2,4\n\r", "PORT 4\r\n"},
		{"scan one continuous", "2,4,1\n\r", "PORT 4 CONTINUOUS\r\n"},
		{"scan one out of range", "2,9\n\r", "ERR invalid port\r\n"},
		{"scan range", "3,2,5\n\r", "SCAN 2-5\r\nDONE\r\n"},
		{"scan range continuous", "3,2,5,1\n\r", "SCAN 2-5 CONTINUOUS\r\n"},
		{"camera delay", "5,10,30\n\r", "DELAY 10,30\r\n"},
		{"unterminated", "2,1", "PORT 1\r\n"},
		{"garbage", "hello\n\r", "ERR unknown command\r\n"},
		{"unknown opcode", "9\n\r", "ERR unknown command\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulatedSwitch(8)
			_, err := sim.Write([]byte(tt.command))
			require.NoError(t, err)
			assert.Equal(t, tt.want, readAll(t, sim))
		})
	}
}

func TestSimulatedSwitchDebugReportsState(t *testing.T) {
	sim := NewSimulatedSwitch(4)
	_, _ = sim.Write([]byte("2,3\n\r5,15,25\n\r"))
	require.NoError(t, sim.Flush())

	_, err := sim.Write([]byte("4\n\r"))
	require.NoError(t, err)
	assert.Equal(t,
		"ports=4\r\ncurrent_port=3\r\ncamera_delay=15,25\r\nmode=idle\r\n",
		readAll(t, sim))
	assert.Equal(t, []string{"2,3", "5,15,25", "4"}, sim.Received())
}

func TestSimulatedSwitchClose(t *testing.T) {
	sim := NewSimulatedSwitch(0)
	require.NoError(t, sim.Close())

	_, err := sim.Write([]byte("1\n\r"))
	assert.ErrorIs(t, err, os.ErrClosed)

	_, err = sim.Read(make([]byte, 8))
	assert.ErrorIs(t, err, os.ErrClosed)
}
