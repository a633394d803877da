package trap

import (
	"strconv"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/machine"
	"github.com/pablos123/paldos/internal/threads"
)

// readConsole services a Read on fd 0 one byte at a time through
// console.SynchConsole, copying each byte out to the user buffer as it
// arrives (spec §4.5 supplement: console_syscalls.go).
func (d *Dispatcher) readConsole(cpu machine.CPU, self *threads.Thread, bufAddr uint32, n int) common.Err_t {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := d.Console.ReadConsole(self)
		if err != common.OK {
			return err
		}
		buf[i] = b
	}
	if err := CopyOutBuf(cpu, bufAddr, buf); err != common.OK {
		return err
	}
	return common.Err_t(n)
}

// writeConsole services a Write on fd 1, delivering buf one byte at a
// time through console.SynchConsole.
func (d *Dispatcher) writeConsole(self *threads.Thread, buf []byte) common.Err_t {
	for _, b := range buf {
		if err := d.Console.WriteConsole(self, b); err != common.OK {
			return err
		}
	}
	return common.Err_t(len(buf))
}

// PrintInt, PrintChar, and ReadInt are thin kernel-side conveniences that
// go straight to the console driver without a file descriptor; user
// programs go through the Read/Write syscalls above instead. Nothing in
// cmd/paldos calls them.
func (d *Dispatcher) PrintChar(self *threads.Thread, c byte) common.Err_t {
	return d.Console.WriteConsole(self, c)
}

func (d *Dispatcher) PrintInt(self *threads.Thread, n int) common.Err_t {
	s := strconv.Itoa(n)
	for i := 0; i < len(s); i++ {
		if err := d.Console.WriteConsole(self, s[i]); err != common.OK {
			return err
		}
	}
	return common.OK
}

func (d *Dispatcher) ReadInt(self *threads.Thread) (int, common.Err_t) {
	n := 0
	neg := false
	first := true
	for {
		b, err := d.Console.ReadConsole(self)
		if err != common.OK {
			return 0, err
		}
		if first && b == '-' {
			neg = true
			first = false
			continue
		}
		first = false
		if b < '0' || b > '9' {
			break
		}
		n = n*10 + int(b-'0')
	}
	if neg {
		n = -n
	}
	return n, common.OK
}

