package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/kconfig"
	"github.com/pablos123/paldos/internal/threads"
)

func withThread(sched *threads.Scheduler, fn func(self *threads.Thread)) {
	var wg sync.WaitGroup
	wg.Add(1)
	sched.Fork("console-test", 5, false, func(self *threads.Thread) {
		defer wg.Done()
		fn(self)
	})
	wg.Wait()
}

func TestReadConsoleReturnsEachByte(t *testing.T) {
	sched := threads.New(kconfig.Default())
	in := strings.NewReader("hi")
	var out bytes.Buffer
	c := New(sched, in, &out)

	var b1, b2 byte
	withThread(sched, func(self *threads.Thread) {
		var err common.Err_t
		b1, err = c.ReadConsole(self)
		require.Equal(t, common.OK, err)
		b2, err = c.ReadConsole(self)
		require.Equal(t, common.OK, err)
	})
	assert.Equal(t, byte('h'), b1)
	assert.Equal(t, byte('i'), b2)
}

func TestWriteConsoleDeliversBytesInOrder(t *testing.T) {
	sched := threads.New(kconfig.Default())
	var out bytes.Buffer
	c := New(sched, strings.NewReader(""), &out)

	withThread(sched, func(self *threads.Thread) {
		for _, b := range []byte("ok") {
			err := c.WriteConsole(self, b)
			require.Equal(t, common.OK, err)
		}
	})
	assert.Equal(t, "ok", out.String())
}

func TestReadersAndWritersDoNotDeadlockEachOther(t *testing.T) {
	sched := threads.New(kconfig.Default())
	in := strings.NewReader("xyz")
	var out bytes.Buffer
	c := New(sched, in, &out)

	var wg sync.WaitGroup
	wg.Add(2)
	sched.Fork("reader", 5, false, func(self *threads.Thread) {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			_, _ = c.ReadConsole(self)
		}
	})
	sched.Fork("writer", 5, false, func(self *threads.Thread) {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			_ = c.WriteConsole(self, 'a')
		}
	})
	wg.Wait()
	assert.Equal(t, "aaa", out.String())
}
