package trap

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/console"
	"github.com/pablos123/paldos/internal/disk"
	"github.com/pablos123/paldos/internal/fs"
	"github.com/pablos123/paldos/internal/kconfig"
	"github.com/pablos123/paldos/internal/machine/sim"
	"github.com/pablos123/paldos/internal/threads"
	"github.com/pablos123/paldos/internal/vm"
)

func testCfg() kconfig.Config {
	cfg := kconfig.Default()
	cfg.SectorSize = 128
	cfg.NumDirect = 30
	cfg.NumSectors = 400
	cfg.PageSize = 16
	cfg.NumFrames = 8
	cfg.UserStack = 1
	return cfg
}

func withThread(sched *threads.Scheduler, name string, fn func(self *threads.Thread)) {
	var wg sync.WaitGroup
	wg.Add(1)
	sched.Fork(name, 5, false, func(self *threads.Thread) {
		defer wg.Done()
		fn(self)
	})
	wg.Wait()
}

func newDispatcherForTest(t *testing.T) (*Dispatcher, *threads.Scheduler) {
	t.Helper()
	cfg := testCfg()
	sched := threads.New(cfg)

	d, err := disk.Open(filepath.Join(t.TempDir(), "disk.img"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	var fsys *fs.FileSystem
	withThread(sched, "boot", func(self *threads.Thread) {
		var ferr common.Err_t
		fsys, ferr = fs.MkFS(d, cfg, sched, self, true)
		require.Equal(t, common.OK, ferr)
	})

	in := bytes.NewBufferString("")
	var out bytes.Buffer
	cons := console.New(sched, in, &out)

	frames := vm.NewFrameTable(cfg.NumFrames)
	replacer := vm.NewReplacer(cfg.Replace, frames, 1)
	processes := vm.NewProcessTable()
	mem := sim.NewPhysMem(cfg.NumFrames, cfg.PageSize)

	disp := &Dispatcher{
		Sched:     sched,
		Fsys:      fsys,
		Processes: processes,
		Frames:    frames,
		Replacer:  replacer,
		Cfg:       cfg,
		Faulter:   &vm.Faulter{Frames: frames, Replacer: replacer, Processes: processes, Mem: mem},
		Console:   cons,
		Mem:       mem,
	}
	return disp, sched
}

func TestSysCreateAndOpenViaUserPath(t *testing.T) {
	d, sched := newDispatcherForTest(t)
	cpu := newFakeCPU(64)
	copy(cpu.mem[0:], "report\x00")

	withThread(sched, "creator", func(self *threads.Thread) {
		require.Equal(t, common.OK, d.sysCreate(cpu, self, 0, 0))
		fd := d.sysOpen(cpu, self, 0)
		assert.GreaterOrEqual(t, int(fd), firstFD)
		assert.Equal(t, common.OK, d.sysClose(self, int(fd)))
	})
}

func TestFileDescriptorsRoundTripThroughProcState(t *testing.T) {
	d, sched := newDispatcherForTest(t)

	withThread(sched, "writer", func(self *threads.Thread) {
		require.Equal(t, common.OK, d.Fsys.Create(self, "greeting", 0))
		f, err := d.Fsys.Open(self, "greeting")
		require.Equal(t, common.OK, err)

		ps := procStateFor(self)
		fd := ps.add(f)
		assert.GreaterOrEqual(t, fd, firstFD)

		n, werr := f.Write(self, []byte("hi"))
		require.Equal(t, common.OK, werr)
		assert.Equal(t, 2, n)

		removed, rerr := ps.remove(fd)
		require.Equal(t, common.OK, rerr)
		assert.Same(t, f, removed)

		_, err = ps.get(fd)
		assert.Equal(t, common.EINVAL, err)
	})
}

func TestSysWriteThroughConsole(t *testing.T) {
	d, sched := newDispatcherForTest(t)
	cpu := newFakeCPU(64)
	copy(cpu.mem[0:], "hey")

	withThread(sched, "console-writer", func(self *threads.Thread) {
		err := d.sysWrite(cpu, self, fdStdout, 0, 3)
		require.Equal(t, common.Err_t(3), err)
	})
}

func TestSysLsDirListsCreatedFiles(t *testing.T) {
	d, sched := newDispatcherForTest(t)
	cpu := newFakeCPU(256)

	withThread(sched, "lister", func(self *threads.Thread) {
		require.Equal(t, common.OK, d.Fsys.Create(self, "a", 0))
		require.Equal(t, common.OK, d.Fsys.Create(self, "b", 0))

		err := d.sysLsDir(cpu, self, 0, 64)
		require.GreaterOrEqual(t, int(err), 0)

		buf, cerr := CopyInBuf(cpu, 0, int(err))
		require.Equal(t, common.OK, cerr)
		assert.Contains(t, string(buf), "a\n")
		assert.Contains(t, string(buf), "b\n")
	})
}

func TestSysCdValidatesExistenceOnly(t *testing.T) {
	d, sched := newDispatcherForTest(t)
	cpu := newFakeCPU(64)
	copy(cpu.mem[0:], "nosuchfile\x00")

	withThread(sched, "cd-tester", func(self *threads.Thread) {
		err := d.sysCd(cpu, self, 0)
		assert.Equal(t, common.ENOENT, err)
	})

	copy(cpu.mem[0:], "real\x00")
	withThread(sched, "cd-tester2", func(self *threads.Thread) {
		require.Equal(t, common.OK, d.Fsys.CreateDir(self, "real"))
		err := d.sysCd(cpu, self, 0)
		assert.Equal(t, common.OK, err)
	})
}

func TestOnSyscallHaltReturnsZero(t *testing.T) {
	d, sched := newDispatcherForTest(t)
	cpu := newFakeCPU(64)

	withThread(sched, "halter", func(self *threads.Thread) {
		cpu.WriteRegister(2, uint32(SysHalt))
		d.onSyscall(cpu, self)
		assert.Equal(t, uint32(0), cpu.ReadRegister(2))
	})
}
