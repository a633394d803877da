package fs

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/kconfig"
	"github.com/pablos123/paldos/internal/threads"
)

func testCfg() kconfig.Config {
	cfg := kconfig.Default()
	cfg.SectorSize = 128
	cfg.NumDirect = 30
	cfg.NumSectors = 400
	return cfg
}

// withThread forks a kernel thread to run fn, and blocks until fn
// returns — used so test bodies (which are not themselves *threads.Thread
// carriers) can call fs methods that require a `self`.
func withThread(sched *threads.Scheduler, name string, fn func(self *threads.Thread)) {
	var wg sync.WaitGroup
	wg.Add(1)
	sched.Fork(name, 5, false, func(self *threads.Thread) {
		defer wg.Done()
		fn(self)
	})
	wg.Wait()
}

func mkfsForTest(t *testing.T) (*FileSystem, *threads.Scheduler, Disk) {
	t.Helper()
	cfg := testCfg()
	sched := threads.New(cfg)
	disk := newMemDisk(cfg.SectorSize, cfg.NumSectors)

	var fsys *FileSystem
	var ferr common.Err_t
	withThread(sched, "boot", func(self *threads.Thread) {
		fsys, ferr = MkFS(disk, cfg, sched, self, true)
	})
	require.Equal(t, common.OK, ferr)
	return fsys, sched, disk
}

func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	fsys, sched, _ := mkfsForTest(t)

	var err common.Err_t
	withThread(sched, "writer", func(self *threads.Thread) {
		err = fsys.Create(self, "hello.txt", 0)
	})
	require.Equal(t, common.OK, err)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	var n int
	withThread(sched, "writer", func(self *threads.Thread) {
		var f *File
		f, err = fsys.Open(self, "hello.txt")
		require.Equal(t, common.OK, err)
		n, err = f.Write(self, payload)
		f.Close(self)
	})
	require.Equal(t, common.OK, err)
	assert.Equal(t, len(payload), n)

	var got []byte
	withThread(sched, "reader", func(self *threads.Thread) {
		var f *File
		f, err = fsys.Open(self, "hello.txt")
		require.Equal(t, common.OK, err)
		got = make([]byte, f.Length())
		_, err = f.Read(got)
		f.Close(self)
	})
	require.Equal(t, common.OK, err)
	assert.Equal(t, payload, got)
}

// TestMultiHeaderWrite pins spec.md scenario S2 literally: with
// SECTOR_SIZE=128 and NUM_DIRECT=30 (so a header holds 3840 bytes),
// create "big", write 10,000 bytes; Length == 10000; read back in 10-byte
// chunks; contents equal what was written; and — the assertion S2
// specifically calls out — inspection of the free-sector bitmap shows
// exactly ceil(10000/128) + ceil(10000/3840) more sectors marked than
// before the write (this is the bitmap-persistence path growTo drives).
func TestMultiHeaderWrite(t *testing.T) {
	fsys, sched, _ := mkfsForTest(t)

	const size = 10000
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	before := fsys.freeMap.NumClear()

	var err common.Err_t
	withThread(sched, "writer", func(self *threads.Thread) {
		err = fsys.Create(self, "big.bin", 0)
		require.Equal(t, common.OK, err)
		f, ferr := fsys.Open(self, "big.bin")
		require.Equal(t, common.OK, ferr)
		_, err = f.Write(self, payload)
		f.Close(self)
	})
	require.Equal(t, common.OK, err)

	after := fsys.freeMap.NumClear()
	headerBytes := fsys.cfg.NumDirect * fsys.cfg.SectorSize
	wantDelta := divRoundUp(size, fsys.cfg.SectorSize) + divRoundUp(size, headerBytes)
	assert.Equal(t, wantDelta, before-after, "free-sector bitmap delta must match spec S2's literal count")

	var got []byte
	withThread(sched, "reader", func(self *threads.Thread) {
		f, ferr := fsys.Open(self, "big.bin")
		require.Equal(t, common.OK, ferr)
		assert.Equal(t, size, f.Length())
		got = make([]byte, f.Length())
		for off := 0; off < size; off += 10 {
			n, rerr := f.Read(got[off : off+10])
			require.Equal(t, common.OK, rerr)
			assert.Equal(t, 10, n)
		}
		f.Close(self)
	})
	require.Equal(t, common.OK, err)
	assert.Equal(t, payload, got)
}

// TestConcurrentWriters pins spec.md scenario S3 literally: create "T" at
// size 0, fork 6 threads each sharing the same open file descriptor and
// each calling Write(fd, "1234567890", 10) 5 times; the per-file write
// lock must serialize them — growing the header chain under contention,
// the path where growTo persists the bitmap and rolls back on ENOSPC —
// so after join Length("T") == 300 and the bytes read back
// are 30 intact, uncorrupted copies of "1234567890".
func TestConcurrentWriters(t *testing.T) {
	fsys, sched, _ := mkfsForTest(t)

	const writers = 6
	const writesPerThread = 5
	const chunk = "1234567890"
	total := writers * writesPerThread * len(chunk)

	var err common.Err_t
	withThread(sched, "creator", func(self *threads.Thread) {
		err = fsys.Create(self, "T", 0)
	})
	require.Equal(t, common.OK, err)

	var shared *File
	withThread(sched, "opener", func(self *threads.Thread) {
		shared, err = fsys.Open(self, "T")
	})
	require.Equal(t, common.OK, err)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		sched.Fork(fmt.Sprintf("w%d", i), 5, false, func(self *threads.Thread) {
			defer wg.Done()
			for j := 0; j < writesPerThread; j++ {
				_, werr := shared.Write(self, []byte(chunk))
				require.Equal(t, common.OK, werr)
			}
		})
	}
	wg.Wait()
	withThread(sched, "closer", func(self *threads.Thread) {
		shared.Close(self)
	})

	withThread(sched, "verifier", func(self *threads.Thread) {
		f, ferr := fsys.Open(self, "T")
		require.Equal(t, common.OK, ferr)
		defer f.Close(self)

		assert.Equal(t, total, f.Length())
		buf := make([]byte, total)
		_, err = f.Read(buf)
		require.Equal(t, common.OK, err)

		want := ""
		for i := 0; i < writers*writesPerThread; i++ {
			want += chunk
		}
		assert.Equal(t, want, string(buf))
	})
}

// TestRemoveWhileOpen pins spec.md scenario S4: Remove on a still-open
// file must unlink the name immediately (a later Open sees ENOENT) but
// not reclaim sectors until the last Close, at which point the remover
// unblocks.
func TestRemoveWhileOpen(t *testing.T) {
	fsys, sched, _ := mkfsForTest(t)

	withThread(sched, "creator", func(self *threads.Thread) {
		err := fsys.Create(self, "doomed.txt", 0)
		require.Equal(t, common.OK, err)
	})

	var opener *File
	withThread(sched, "opener", func(self *threads.Thread) {
		var err common.Err_t
		opener, err = fsys.Open(self, "doomed.txt")
		require.Equal(t, common.OK, err)
	})

	removeDone := make(chan common.Err_t, 1)
	sched.Fork("remover", 5, false, func(self *threads.Thread) {
		removeDone <- fsys.Remove(self, "doomed.txt")
	})

	// The name is unlinked from the directory before Remove's blocking
	// wait for the last Close; poll (bounded) until that unlink is
	// visible, since Fork schedules the remover asynchronously.
	var unlinked bool
	for i := 0; i < 200 && !unlinked; i++ {
		withThread(sched, "prober", func(self *threads.Thread) {
			_, err := fsys.Open(self, "doomed.txt")
			unlinked = err == common.ENOENT
		})
		if !unlinked {
			time.Sleep(time.Millisecond)
		}
	}
	require.True(t, unlinked, "name was never unlinked from the directory")

	select {
	case <-removeDone:
		t.Fatal("Remove returned before the last handle closed")
	default:
	}

	withThread(sched, "closer", func(self *threads.Thread) {
		opener.Close(self)
	})

	err := <-removeDone
	assert.Equal(t, common.OK, err)
}
