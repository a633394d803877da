package trap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablos123/paldos/internal/common"
)

func TestCopyInStringReadsUntilNUL(t *testing.T) {
	cpu := newFakeCPU(64)
	copy(cpu.mem[10:], "hello\x00garbage")

	s, err := CopyInString(cpu, 10, maxPathLen)
	require.Equal(t, common.OK, err)
	assert.Equal(t, "hello", s)
}

func TestCopyInStringRejectsMissingTerminator(t *testing.T) {
	cpu := newFakeCPU(8)
	copy(cpu.mem, "abcdefgh")

	_, err := CopyInString(cpu, 0, 4)
	assert.Equal(t, common.EFAULT, err)
}

func TestCopyInStringRejectsOutOfRangeAddr(t *testing.T) {
	cpu := newFakeCPU(4)
	_, err := CopyInString(cpu, 100, maxPathLen)
	assert.Equal(t, common.EFAULT, err)
}

func TestCopyInBufAndCopyOutBufRoundTrip(t *testing.T) {
	cpu := newFakeCPU(32)
	require.Equal(t, common.OK, CopyOutBuf(cpu, 4, []byte("paldos")))

	buf, err := CopyInBuf(cpu, 4, 6)
	require.Equal(t, common.OK, err)
	assert.Equal(t, "paldos", string(buf))
}

func TestSaveArgsReadsPointerArrayUntilZero(t *testing.T) {
	cpu := newFakeCPU(128)
	// Lay out two C strings and a zero-terminated pointer array.
	copy(cpu.mem[64:], "one\x00")
	copy(cpu.mem[72:], "two\x00")
	cpu.WriteMem(0, 4, 64)
	cpu.WriteMem(4, 4, 72)
	cpu.WriteMem(8, 4, 0)

	args, err := SaveArgs(cpu, 0)
	require.Equal(t, common.OK, err)
	assert.Equal(t, []string{"one", "two"}, args)
}

func TestSaveArgsEmptyArgv(t *testing.T) {
	cpu := newFakeCPU(16)
	cpu.WriteMem(0, 4, 0)

	args, err := SaveArgs(cpu, 0)
	require.Equal(t, common.OK, err)
	assert.Empty(t, args)
}

func TestWriteArgsSetsArgcArgvAndSP(t *testing.T) {
	cpu := newFakeCPU(256)

	sp, err := WriteArgs(cpu, []string{"foo", "bar"}, 200)
	require.Equal(t, common.OK, err)
	assert.Less(t, sp, uint32(200))

	assert.Equal(t, uint32(2), cpu.ReadRegister(4))
	argvBase := cpu.ReadRegister(5)
	assert.Equal(t, argvBase, sp+24)

	p0, ok := cpu.ReadMem(argvBase, 4)
	require.True(t, ok)
	s0, serr := CopyInString(cpu, p0, maxPathLen)
	require.Equal(t, common.OK, serr)
	assert.Equal(t, "foo", s0)

	p1, ok := cpu.ReadMem(argvBase+4, 4)
	require.True(t, ok)
	s1, serr := CopyInString(cpu, p1, maxPathLen)
	require.Equal(t, common.OK, serr)
	assert.Equal(t, "bar", s1)

	term, ok := cpu.ReadMem(argvBase+8, 4)
	require.True(t, ok)
	assert.Equal(t, uint32(0), term)
}
