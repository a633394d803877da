package trap

import (
	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/machine"
	"github.com/pablos123/paldos/internal/threads"
)

// sysCreate implements spec §4.5's Create: make an empty file of the
// given initial size in the root directory.
func (d *Dispatcher) sysCreate(cpu machine.CPU, self *threads.Thread, pathAddr uint32, size int) common.Err_t {
	path, err := CopyInString(cpu, pathAddr, maxPathLen)
	if err != common.OK {
		return err
	}
	return d.Fsys.Create(self, path, size)
}

// sysRemove implements spec §4.5's Remove.
func (d *Dispatcher) sysRemove(cpu machine.CPU, self *threads.Thread, pathAddr uint32) common.Err_t {
	path, err := CopyInString(cpu, pathAddr, maxPathLen)
	if err != common.OK {
		return err
	}
	return d.Fsys.Remove(self, path)
}

// sysOpen implements spec §4.5's Open, returning a per-process file
// descriptor on success or a negative error.
func (d *Dispatcher) sysOpen(cpu machine.CPU, self *threads.Thread, pathAddr uint32) common.Err_t {
	path, err := CopyInString(cpu, pathAddr, maxPathLen)
	if err != common.OK {
		return err
	}
	f, ferr := d.Fsys.Open(self, path)
	if ferr != common.OK {
		return ferr
	}
	ps := procStateFor(self)
	return common.Err_t(ps.add(f))
}

// sysClose implements spec §4.5's Close.
func (d *Dispatcher) sysClose(self *threads.Thread, fd int) common.Err_t {
	if fd == fdStdin || fd == fdStdout {
		return common.OK
	}
	ps := procStateFor(self)
	f, err := ps.remove(fd)
	if err != common.OK {
		return err
	}
	f.Close(self)
	return common.OK
}

// sysRead implements spec §4.5's Read: fd 0 reads from the console one
// byte at a time (spec §4.4 supplement, console_syscalls.go); any other
// fd reads from its open file.
func (d *Dispatcher) sysRead(cpu machine.CPU, self *threads.Thread, fd int, bufAddr uint32, n int) common.Err_t {
	if n <= 0 {
		return common.OK
	}
	if fd == fdStdin {
		return d.readConsole(cpu, self, bufAddr, n)
	}
	ps := procStateFor(self)
	f, err := ps.get(fd)
	if err != common.OK {
		return err
	}
	buf := make([]byte, n)
	read, rerr := f.Read(buf)
	if rerr != common.OK {
		return rerr
	}
	if cerr := CopyOutBuf(cpu, bufAddr, buf[:read]); cerr != common.OK {
		return cerr
	}
	return common.Err_t(read)
}

// sysWrite implements spec §4.5's Write: fd 1 writes to the console one
// byte at a time; any other fd writes to its open file.
func (d *Dispatcher) sysWrite(cpu machine.CPU, self *threads.Thread, fd int, bufAddr uint32, n int) common.Err_t {
	if n <= 0 {
		return common.OK
	}
	buf, err := CopyInBuf(cpu, bufAddr, n)
	if err != common.OK {
		return err
	}
	if fd == fdStdout {
		return d.writeConsole(self, buf)
	}
	ps := procStateFor(self)
	f, ferr := ps.get(fd)
	if ferr != common.OK {
		return ferr
	}
	written, werr := f.Write(self, buf)
	if werr != common.OK {
		return werr
	}
	return common.Err_t(written)
}

// sysLsDir implements the LsDir supplement (spec §4.4 "List"): copies
// the root directory's entry names, newline-separated, into the user
// buffer at bufAddr, truncating to maxLen bytes.
func (d *Dispatcher) sysLsDir(cpu machine.CPU, self *threads.Thread, bufAddr uint32, maxLen int) common.Err_t {
	names, err := d.Fsys.List(self)
	if err != common.OK {
		return err
	}
	var joined []byte
	for _, name := range names {
		joined = append(joined, name...)
		joined = append(joined, '\n')
	}
	if len(joined) > maxLen {
		joined = joined[:maxLen]
	}
	if cerr := CopyOutBuf(cpu, bufAddr, joined); cerr != common.OK {
		return cerr
	}
	return common.Err_t(len(joined))
}

// sysCd implements the Cd supplement. internal/fs has no hierarchical
// path-walking (fs.go's own CreateDir comment: "paldos does not
// implement ChangeDir's full path-walking"), so this only checks that
// name opens as an existing entry, a file or a directory (the entry's
// type is not checked); it does not change any per-process notion of a
// current directory, since none exists.
func (d *Dispatcher) sysCd(cpu machine.CPU, self *threads.Thread, pathAddr uint32) common.Err_t {
	path, err := CopyInString(cpu, pathAddr, maxPathLen)
	if err != common.OK {
		return err
	}
	f, ferr := d.Fsys.Open(self, path)
	if ferr != common.OK {
		return ferr
	}
	f.Close(self)
	return common.OK
}
