//go:build !unix

package disk

import "os"

func readAt(f *os.File, buf []byte, off int64) error {
	_, err := f.ReadAt(buf, off)
	return err
}

func writeAt(f *os.File, buf []byte, off int64) error {
	_, err := f.WriteAt(buf, off)
	return err
}
