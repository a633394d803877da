//go:build unix

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

func readAt(f *os.File, buf []byte, off int64) error {
	_, err := unix.Pread(int(f.Fd()), buf, off)
	return err
}

func writeAt(f *os.File, buf []byte, off int64) error {
	_, err := unix.Pwrite(int(f.Fd()), buf, off)
	return err
}
