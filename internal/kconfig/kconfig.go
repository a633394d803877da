// Package kconfig is the single explicit kernel context threaded into
// every subsystem constructor (spec.md §9, "Globals"): the scheduler
// variant, paging policy, and disk/file-system geometry all live here
// rather than as ambient package-level state, so tests can stand up many
// independent kernels in one process.
package kconfig

import (
	"fmt"

	"github.com/pkg/errors"
)

// ReplacePolicy selects the page-replacement policy used by internal/vm.
type ReplacePolicy int

const (
	ReplaceFIFO ReplacePolicy = iota
	ReplaceLRU
	ReplaceRandom
)

func (r ReplacePolicy) String() string {
	switch r {
	case ReplaceFIFO:
		return "fifo"
	case ReplaceLRU:
		return "lru"
	case ReplaceRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ParseReplacePolicy parses the --replace flag value.
func ParseReplacePolicy(s string) (ReplacePolicy, error) {
	switch s {
	case "fifo", "":
		return ReplaceFIFO, nil
	case "lru":
		return ReplaceLRU, nil
	case "random":
		return ReplaceRandom, nil
	default:
		return ReplaceFIFO, errors.Errorf("unknown page replacement policy %q", s)
	}
}

// Config is the kernel context: every size and policy knob a subsystem
// constructor needs. Defaults mirror the original NachOS build constants
// (SectorSize=128, NumDirect=30 so one header fits one sector: 72 of 128
// bytes used).
type Config struct {
	// Disk / file system geometry.
	SectorSize int
	NumDirect  int
	NumSectors int

	// Physical memory geometry.
	PageSize   int
	NumFrames  int
	UserStack  int // pages reserved for the user stack

	// Scheduler.
	MultiLevelQueue bool // priority donation requires this
	NumPriorities   int

	// Paging.
	DemandLoad bool
	SwapOn     bool
	Replace    ReplacePolicy

	// CLI passthrough (spec §6).
	FormatDisk bool
	ExecPath   string
	ExecArgs   []string
	DebugFlags string
	RandomSeed int64
	DiskImage  string
}

// Default returns the standard configuration used unless overridden by
// CLI flags: a 128-byte sector holding 30 two-byte direct data-sector
// indices plus the 12-byte bookkeeping fields of FileHeader, matching the
// NUM_DIRECT used by the original's file_system.cc and pinned by spec §8
// scenario S2.
func Default() Config {
	return Config{
		SectorSize:      128,
		NumDirect:       30,
		NumSectors:      2000,
		PageSize:        4096,
		NumFrames:       64,
		UserStack:       8,
		MultiLevelQueue: true,
		NumPriorities:   10,
		DemandLoad:      true,
		SwapOn:          true,
		Replace:         ReplaceFIFO,
		DiskImage:       "paldos.disk",
	}
}

// Validate checks the invariants the rest of the kernel assumes hold,
// returning a wrapped error (ambient-path error handling; syscall-facing
// code keeps using plain Err_t sentinels per spec §7).
func (c Config) Validate() error {
	if c.SectorSize <= 0 {
		return errors.New("sector size must be positive")
	}
	if c.NumDirect <= 0 {
		return errors.New("numdirect must be positive")
	}
	if c.PageSize <= 0 || c.PageSize%512 != 0 {
		return errors.New("page size must be a positive multiple of 512")
	}
	if c.NumFrames <= 0 {
		return errors.New("nframes must be positive")
	}
	if c.SwapOn && !c.DemandLoad {
		return errors.New("swap requires demand loading to be enabled")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("sector=%d numdirect=%d frames=%d page=%d replace=%s demand=%v swap=%v mlfq=%v",
		c.SectorSize, c.NumDirect, c.NumFrames, c.PageSize, c.Replace, c.DemandLoad, c.SwapOn, c.MultiLevelQueue)
}
