package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/hardware"
	"github.com/wfunc/optical-switch/internal/service"
)

func newTestSwitch(t *testing.T) (*service.SwitchService, *hardware.SimulatedSwitch) {
	t.Helper()
	sim := hardware.NewSimulatedSwitch(64)
	sw := service.NewSwitchService(
		hardware.NewLineConn(sim, time.Second),
		&service.SwitchServiceConfig{PollAttempts: 3, PollInterval: time.Millisecond},
		nil, nil,
	)
	t.Cleanup(func() { sw.Close() })
	return sw, sim
}

func TestRunSubcommands(t *testing.T) {
	tests := []struct {
		cmd  string
		args []string
		want string
	}{
		{"scan-all", nil, "1"},
		{"scan-all-cont", nil, "1,1"},
		{"scan-one", []string{"4"}, "2,4"},
		{"scan-one-cont", []string{"4"}, "2,4,1"},
		{"scan-range", []string{"2", "9"}, "3,2,9"},
		{"scan-range-cont", []string{"2", "9"}, "3,2,9,1"},
		{"debug", nil, "4"},
		{"camera-delay", []string{"10", "20"}, "5,10,20"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			sw, sim := newTestSwitch(t)
			require.NoError(t, run(context.Background(), sw, tt.cmd, tt.args))
			assert.Equal(t, []string{tt.want}, sim.Received())
		})
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	sw, sim := newTestSwitch(t)

	err := run(context.Background(), sw, "scan-one", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))

	err = run(context.Background(), sw, "scan-range", []string{"1", "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))

	err = run(context.Background(), sw, "scan-all-cont", []string{"soon"})
	assert.True(t, errors.Is(err, errors.ErrInvalidDuration))

	err = run(context.Background(), sw, "reboot", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))

	assert.Empty(t, sim.Received())
}

func TestDemo(t *testing.T) {
	orig := demoPause
	demoPause = time.Millisecond
	defer func() { demoPause = orig }()

	sw, sim := newTestSwitch(t)
	require.NoError(t, run(context.Background(), sw, "demo", nil))
	assert.Equal(t, []string{"1", "3,3,50", "2,4", "3,4,16,1"}, sim.Received())
	assert.Equal(t, "3,4,16,1", sw.LastCommand())
}

func TestApplyOverrides(t *testing.T) {
	c := config.SerialConfig{Port: "/dev/ttyACM0", BaudRate: 9600, Parity: "O", StopBits: 2}
	applyOverrides(&c, "/dev/ttyUSB1", 115200, "", 1, true)
	assert.Equal(t, "/dev/ttyUSB1", c.Port)
	assert.Equal(t, 115200, c.BaudRate)
	assert.Equal(t, "O", c.Parity)
	assert.Equal(t, 1, c.StopBits)
	assert.True(t, c.MockMode)
}

func TestHashPassword(t *testing.T) {
	assert.True(t, errors.Is(hashPassword(nil), errors.ErrInvalidParam))
	assert.NoError(t, hashPassword([]string{"secret"}))
}
