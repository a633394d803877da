package trap

import (
	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/machine"
)

// maxPathLen and maxArgv bound the untrusted sizes a syscall will copy
// in from user memory before giving up with EFAULT (spec §7
// "syscall-argument" error kind: "oversize string... reported as...
// never fatal").
const (
	maxPathLen = 256
	maxArgv    = 64
)

// CopyInString reads a NUL-terminated string from user address addr,
// refusing to read more than maxLen bytes (spec §4.5: "bounds and
// pointer validation"). cpu.ReadMem already retries once through the
// registered page-fault handler, so a false here means the address is
// genuinely outside the address space.
func CopyInString(cpu machine.CPU, addr uint32, maxLen int) (string, common.Err_t) {
	buf := make([]byte, 0, 32)
	for i := 0; i < maxLen; i++ {
		v, ok := cpu.ReadMem(addr+uint32(i), 1)
		if !ok {
			return "", common.EFAULT
		}
		if v == 0 {
			return string(buf), common.OK
		}
		buf = append(buf, byte(v))
	}
	return "", common.EFAULT
}

// CopyInBuf reads n bytes from user address addr.
func CopyInBuf(cpu machine.CPU, addr uint32, n int) ([]byte, common.Err_t) {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		v, ok := cpu.ReadMem(addr+uint32(i), 1)
		if !ok {
			return nil, common.EFAULT
		}
		buf[i] = byte(v)
	}
	return buf, common.OK
}

// CopyOutBuf writes buf to user address addr.
func CopyOutBuf(cpu machine.CPU, addr uint32, buf []byte) common.Err_t {
	for i, b := range buf {
		if !cpu.WriteMem(addr+uint32(i), 1, uint32(b)) {
			return common.EFAULT
		}
	}
	return common.OK
}

// SaveArgs implements spec §4.5's argument marshalling: argvAddr points
// to a user-space array of user pointers terminated by zero; each
// pointed-to string is copied into kernel memory. An array with no zero
// terminator within maxArgv entries is rejected with EINVAL, bounding the
// work a hostile program can force.
func SaveArgs(cpu machine.CPU, argvAddr uint32) ([]string, common.Err_t) {
	var args []string
	for i := 0; i < maxArgv; i++ {
		ptr, ok := cpu.ReadMem(argvAddr+uint32(i*4), 4)
		if !ok {
			return nil, common.EFAULT
		}
		if ptr == 0 {
			return args, common.OK
		}
		s, err := CopyInString(cpu, ptr, maxPathLen)
		if err != common.OK {
			return nil, err
		}
		args = append(args, s)
	}
	return nil, common.EINVAL
}

// WriteArgs lays out argc/argv on the new thread's user stack per MIPS
// calling convention: strings are packed just below spBase, a
// NUL-terminated pointer array just below the strings, argv's base goes
// in register 5 and argc in register 4, and the stack pointer is
// decremented by a further 24 bytes for the standard argument-area
// reservation (spec §4.5). Returns the new stack pointer.
func WriteArgs(cpu machine.CPU, args []string, spBase uint32) (uint32, common.Err_t) {
	sp := spBase
	ptrs := make([]uint32, len(args))

	for i, a := range args {
		b := append([]byte(a), 0)
		sp -= uint32(len(b))
		sp &^= 3 // word-align
		if err := CopyOutBuf(cpu, sp, b); err != common.OK {
			return 0, err
		}
		ptrs[i] = sp
	}

	argvSize := uint32(4 * (len(ptrs) + 1))
	sp -= argvSize
	sp &^= 3
	argvBase := sp
	for i, p := range ptrs {
		if !cpu.WriteMem(argvBase+uint32(i*4), 4, p) {
			return 0, common.EFAULT
		}
	}
	if !cpu.WriteMem(argvBase+uint32(len(ptrs)*4), 4, 0) {
		return 0, common.EFAULT
	}

	sp -= 24
	cpu.WriteRegister(machine.RegArg0, uint32(len(args)))
	cpu.WriteRegister(machine.RegArg1, argvBase)
	cpu.WriteRegister(machine.RegSP, sp)
	return sp, common.OK
}
