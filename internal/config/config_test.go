package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tarm", cfg.Serial.Driver)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "O", cfg.Serial.Parity)
	assert.Equal(t, 2, cfg.Serial.StopBits)
	assert.Equal(t, 8, cfg.Serial.DataBits)
	assert.Equal(t, 50, cfg.Switch.PollAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Switch.PollInterval)
	assert.Equal(t, "\n\r", cfg.Switch.Terminator)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
serial:
  driver: bugst
  port: /dev/ttyUSB1
  baud_rate: 115200
  parity: N
  stop_bits: 1
switch:
  poll_attempts: 10
  poll_interval: 50ms
security:
  operators:
    - username: lab
      password_hash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
      role: admin
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bugst", cfg.Serial.Driver)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 10, cfg.Switch.PollAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Switch.PollInterval)
	require.Len(t, cfg.Security.Operators, 1)
	assert.Equal(t, "lab", cfg.Security.Operators[0].Username)
	assert.Equal(t, "admin", cfg.Security.Operators[0].Role)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
serial:
  driver: pyserial
`)
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
switch:
  poll_attempts: 0
`)
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OPTOSWITCH_SERIAL_PORT", "/dev/ttyS9")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS9", cfg.Serial.Port)
}
