// Command paldos boots the kernel: it parses the NachOS-style `-f`/`-x`/
// `-d`/`--rs` flags plus the domain-stack knobs SPEC_FULL.md §0 adds, then
// brings up the subsystems in this order: disk, scheduler, file system
// (mounted from a forked boot thread), console, frame table, replacer,
// process table, physical memory, and finally the trap dispatcher.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/console"
	"github.com/pablos123/paldos/internal/disk"
	"github.com/pablos123/paldos/internal/fs"
	"github.com/pablos123/paldos/internal/kconfig"
	"github.com/pablos123/paldos/internal/klog"
	"github.com/pablos123/paldos/internal/machine/sim"
	"github.com/pablos123/paldos/internal/threads"
	"github.com/pablos123/paldos/internal/trap"
	"github.com/pablos123/paldos/internal/vm"
)

var replaceFlag string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := kconfig.Default()

	cmd := &cobra.Command{
		Use:   "paldos",
		Short: "A NachOS-style instructional kernel",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := kconfig.ParseReplacePolicy(replaceFlag)
			if err != nil {
				return err
			}
			cfg.Replace = policy
			cfg.ExecArgs = args
			if err := cfg.Validate(); err != nil {
				return err
			}
			return boot(cfg)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&cfg.FormatDisk, "format", "f", false, "format the disk before booting")
	flags.StringVarP(&cfg.ExecPath, "exec", "x", "", "NOFF executable to run at boot")
	flags.StringVarP(&cfg.DebugFlags, "debug", "d", "", "debug categories to enable (e.g. \"tfm\", or \"+\" for all)")
	// pflag shorthands are a single rune, so NachOS's "-rs" cannot be a
	// shorthand the way "-f"/"-x"/"-d" are; it is registered as a plain
	// long flag (--rs) instead.
	flags.Int64Var(&cfg.RandomSeed, "rs", 1, "seed for the page-replacement policy's tie-breaking")
	flags.StringVar(&cfg.DiskImage, "disk-image", "paldos.disk", "path to the backing disk image file")

	flags.IntVar(&cfg.SectorSize, "sectorsize", cfg.SectorSize, "disk sector size in bytes")
	flags.IntVar(&cfg.NumDirect, "numdirect", cfg.NumDirect, "direct data sectors per file header")
	flags.IntVar(&cfg.NumSectors, "numsectors", cfg.NumSectors, "total disk sectors")
	flags.IntVar(&cfg.PageSize, "pagesize", cfg.PageSize, "physical page size in bytes")
	flags.IntVar(&cfg.NumFrames, "nframes", cfg.NumFrames, "number of physical frames")
	flags.IntVar(&cfg.UserStack, "userstack", cfg.UserStack, "pages reserved for each user stack")
	flags.StringVar(&replaceFlag, "replace", "fifo", "page replacement policy: fifo, lru, or random")
	flags.BoolVar(&cfg.DemandLoad, "demand-load", true, "demand-load executable pages (pages are loaded on demand either way; false does not load eagerly)")
	flags.BoolVar(&cfg.SwapOn, "swap", true, "allow evicted dirty pages to be written to a swap file")
	flags.BoolVar(&cfg.MultiLevelQueue, "priority", true, "enable the multi-level priority scheduler and priority donation")
	flags.IntVar(&cfg.NumPriorities, "numpriorities", cfg.NumPriorities, "number of scheduler priority levels")

	return cmd
}

// boot brings up every kernel subsystem in order, then — if -x named an
// executable — execs it and waits for it to finish.
func boot(cfg kconfig.Config) error {
	klog.Configure(cfg.DebugFlags)
	klog.Infof("boot", "paldos starting: %s", cfg.String())
	klog.Infof("boot", "debug categories enabled: %s", klog.CategoriesFromFlag(cfg.DebugFlags))

	d, err := disk.Open(cfg.DiskImage, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	sched := threads.New(cfg)

	var fsys *fs.FileSystem
	var fsErr common.Err_t
	var bootDone = make(chan struct{})
	sched.Fork("boot", 0, false, func(self *threads.Thread) {
		fsys, fsErr = fs.MkFS(d, cfg, sched, self, cfg.FormatDisk)
		close(bootDone)
	})
	<-bootDone
	if fsErr != common.OK {
		return fmt.Errorf("mount file system: %w", fsErr)
	}

	cons := console.New(sched, os.Stdin, os.Stdout)

	frames := vm.NewFrameTable(cfg.NumFrames)
	replacer := vm.NewReplacer(cfg.Replace, frames, cfg.RandomSeed)
	processes := vm.NewProcessTable()
	mem := sim.NewPhysMem(cfg.NumFrames, cfg.PageSize)

	disp := &trap.Dispatcher{
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

	if cfg.ExecPath == "" {
		klog.Infof("boot", "no -x executable given, idling")
		return nil
	}

	done := make(chan int, 1)
	sched.Fork("init", cfg.NumPriorities-1, false, func(self *threads.Thread) {
		_, child, eerr := disp.ExecProgram(self, cfg.ExecPath, cfg.ExecArgs, self.Priority())
		if eerr != common.OK {
			done <- int(eerr)
			return
		}
		done <- sched.Join(self, child)
	})

	status := <-done
	klog.Infof("boot", "%s exited with status %d", cfg.ExecPath, status)
	if status != 0 {
		os.Exit(status)
	}
	return nil
}
