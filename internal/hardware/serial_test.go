package hardware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tarm "github.com/tarm/serial"
	"github.com/wfunc/optical-switch/internal/config"
	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

func TestNormalizeParity(t *testing.T) {
	for in, want := range map[string]string{
		"": "N", "n": "N", "none": "N",
		"O": "O", "odd": "O",
		"e": "E", "EVEN": "E",
	} {
		got, err := normalizeParity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := normalizeParity("mark")
	assert.Error(t, err)
}

func TestDriverParityAndStopBits(t *testing.T) {
	p, err := tarmParity("O")
	require.NoError(t, err)
	assert.Equal(t, tarm.ParityOdd, p)

	s, err := tarmStopBits(2)
	require.NoError(t, err)
	assert.Equal(t, tarm.Stop2, s)

	bp, err := bugstParity("E")
	require.NoError(t, err)
	assert.Equal(t, bugst.EvenParity, bp)

	bs, err := bugstStopBits(1)
	require.NoError(t, err)
	assert.Equal(t, bugst.OneStopBit, bs)

	_, err = tarmStopBits(3)
	assert.Error(t, err)
	_, err = bugstStopBits(0)
	assert.Error(t, err)
}

func TestNewSerialConfig(t *testing.T) {
	cfg := NewSerialConfig(nil)
	assert.Equal(t, DefaultSerialConfig(), cfg)

	cfg = NewSerialConfig(&config.SerialConfig{
		Driver:      DriverBugst,
		Port:        "/dev/ttyUSB0",
		BaudRate:    115200,
		Parity:      "N",
		StopBits:    1,
		ReadTimeout: 50 * time.Millisecond,
		MockMode:    true,
	})
	assert.Equal(t, DriverBugst, cfg.Driver)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, 8, cfg.DataBits)
	assert.Equal(t, 1, cfg.StopBits)
	assert.Equal(t, "N", cfg.Parity)
	assert.Equal(t, 50*time.Millisecond, cfg.ReadTimeout)
	assert.True(t, cfg.MockMode)
}

func TestOpen(t *testing.T) {
	cfg := DefaultSerialConfig()
	cfg.MockMode = true
	port, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SimulatedSwitch{}, port)

	cfg = DefaultSerialConfig()
	cfg.Port = "/dev/optical-switch-does-not-exist"
	_, err = Open(cfg)
	assert.Error(t, err)

	cfg = DefaultSerialConfig()
	cfg.Port = "COM3"
	cfg.Driver = "pyserial"
	_, err = Open(cfg)
	assert.ErrorContains(t, err, "未知的串口驱动")
}

func TestListPorts(t *testing.T) {
	orig := getDetailedPortsList
	defer func() { getDetailedPortsList = orig }()

	getDetailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno"},
		}, nil
	}
	ports, err := ListPorts()
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, "/dev/ttyACM0", ports[0].Name)
	assert.Equal(t, "Arduino Uno", ports[0].Product)
	assert.Equal(t, "1a86", ports[1].VID)

	getDetailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no sysfs")
	}
	_, err = ListPorts()
	assert.Error(t, err)
}
