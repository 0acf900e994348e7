package opticalswitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "1", Encode(OpScanAll))
	assert.Equal(t, "3,3,50", Encode(OpScanRange, 3, 50))
	assert.Equal(t, "5,-1,0", Encode(OpSetCameraDelay, -1, 0))
	assert.Equal(t, []byte("2,4\n\r"), Frame(DefaultTerminator, OpScanOne, 4))
}

func TestParseCommand(t *testing.T) {
	op, args, err := ParseCommand("3,4,16,1\n\r")
	require.NoError(t, err)
	assert.Equal(t, OpScanRange, op)
	assert.Equal(t, []int{4, 16, 1}, args)
	assert.True(t, IsContinuous(op, args))

	op, args, err = ParseCommand("2,4")
	require.NoError(t, err)
	assert.Equal(t, OpScanOne, op)
	assert.False(t, IsContinuous(op, args))

	_, _, err = ParseCommand("")
	assert.Error(t, err)
	_, _, err = ParseCommand("2,x")
	assert.Error(t, err)
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "scan_all", OpScanAll.String())
	assert.Equal(t, "debug", OpDebug.String())
	assert.Equal(t, "unknown", Opcode(9).String())
}
