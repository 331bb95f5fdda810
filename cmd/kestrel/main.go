// Command kestrel is the kernel's entry point: it brings up the
// singletons internal/boot owns, mounts the root filesystem, loads the
// init ELF, and falls into the scheduler's idle loop. The sequencing
// mirrors krakeos's kernel/src/main.rs _start (memory, then IDT, then
// drivers, then spawn init, then sti+hlt loop) one step at a time,
// logging a SIGNPOST at each stage the way that original does.
//
// The freestanding build links this against a custom runtime (no
// os.Exit, no real stdin/stdout) and a linker script that places _start
// at the entry point described by the bootloader's handoff struct; this
// file models that sequencing on top of kestrel's hosted-simulation
// Memory (pmm.SimMemory), the same stand-in internal/vmm's and
// internal/pmm's own tests use in place of a real HHDM mapping.
package main

import (
	"flag"
	"fmt"
	"os"

	"kestrel/internal/boot"
	"kestrel/internal/compositor"
	"kestrel/internal/config"
	"kestrel/internal/defs"
	"kestrel/internal/diag"
	"kestrel/internal/elfload"
	"kestrel/internal/interrupt"
	"kestrel/internal/keyboard"
	"kestrel/internal/klog"
	"kestrel/internal/pmm"
	"kestrel/internal/sched"
	"kestrel/internal/shell"
)

// initELFPath is where the shell and the boot sequence agree the root
// userland binary lives, per spec.md §6's BinRoot convention.
const initELFPath = "@0xE0/sys/bin/init.elf"

func main() {
	tunables := config.Default()
	configPath := flag.String("config", "", "JSON tunables file (overrides defaults)")
	imagePath := flag.String("image", "", "root filesystem image built by cmd/mkimage")
	memMB := flag.Uint64("mem-mb", 128, "simulated physical memory size in MiB, hosted build only")
	config.RegisterFlags(flag.CommandLine, &tunables)
	flag.Parse()

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kestrel: reading %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		tunables = loaded
	}

	klog.Printf("boot", "SIGNPOST: initializing memory")
	mem, err := pmm.NewSimMemory(0, *memMB*1024*1024)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: simulating physical memory: %v\n", err)
		os.Exit(1)
	}
	defer mem.Close()

	regions := tunables.MemMap
	if len(regions) == 0 {
		regions = []config.MemRegion{{Start: 0, Len: *memMB * 1024 * 1024}}
	}

	k := boot.New()
	dis := diag.New()
	if errt := k.Init(regions, tunables, mem, dis); errt != defs.ENONE {
		fmt.Fprintf(os.Stderr, "kestrel: boot.Init: %v\n", errt)
		os.Exit(1)
	}
	klog.Printf("boot", "SIGNPOST: kernel singletons ready")

	kbd := &keyboard.Decoder{}
	k.IDT.Register(interrupt.VecKeyboard, keyboardHandler(k.Compositor, kbd))

	root := shell.NewFS()
	if errt := root.Mkdir("/sys"); errt != defs.ENONE && errt != defs.EEXIST {
		klog.Printf("boot", "mkdir /sys: %v", errt)
	}
	if errt := root.Mkdir("/sys/bin"); errt != defs.ENONE && errt != defs.EEXIST {
		klog.Printf("boot", "mkdir /sys/bin: %v", errt)
	}
	if *imagePath != "" {
		imgFile, err := os.Open(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kestrel: opening image %s: %v\n", *imagePath, err)
			os.Exit(1)
		}
		n, err := shell.LoadImage(imgFile, root)
		imgFile.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "kestrel: loading image %s: %v\n", *imagePath, err)
			os.Exit(1)
		}
		klog.Printf("boot", "loaded %d files from %s", n, *imagePath)
	}
	klog.Printf("boot", "SIGNPOST: root filesystem mounted at @0xE0")

	pid, errt := spawnInit(k, root, mem)
	if errt != defs.ENONE {
		klog.Printf("boot", "spawn init: %v (no init.elf staged, idling)", errt)
	} else {
		klog.Printf("boot", "SIGNPOST: init process spawned with pid %d", pid)
	}

	klog.Printf("boot", "SIGNPOST: kernel initialized, entering idle loop")
	idle(k.Sched)
}

// spawnInit loads initELFPath from root, maps it into a fresh address
// space and starts its first thread, mirroring krakeos's
// spawn_process("@0xE0/user.elf", ...) call at the tail of _start.
func spawnInit(k *boot.Kernel, root *shell.FS, pages elfload.PageWriter) (uint32, defs.Err_t) {
	backing, errt := root.Open(initELFPath, false, false)
	if errt != defs.ENONE {
		return 0, errt
	}
	data := make([]byte, backing.Size())
	if _, err := backing.ReadAt(data, 0); err != nil {
		return 0, defs.EDEVFAIL
	}

	const pid = 1
	owner := defs.MkPid(pid, 0)
	pml4, errt := k.NewUserAddressSpace(owner)
	if errt != defs.ENONE {
		return 0, errt
	}

	res, errt := elfload.Load(data, k.PMM, k.VMM, pages, pml4, owner)
	if errt != defs.ENONE {
		return 0, errt
	}

	const userStackTop = 0x7fff_ffff_f000
	const kernelStackTop = 0xffff_8000_0001_0000
	proc := sched.NewProcess(pid, pml4)
	// The initial CPU-state frame (entry = res.Entry, rsp = userStackTop)
	// is primed on the kernel stack by the freestanding trampoline that
	// calls SpawnUserThread; kestrel's hosted Thread model only tracks the
	// stack addresses themselves, per internal/sched's own doc comment.
	th := k.Sched.SpawnUserThread(proc, 1, "init", kernelStackTop, userStackTop)
	k.Sched.Activate(th)
	klog.Printf("boot", "init entry=%#x ustack=%#x", res.Entry, userStackTop)
	return pid, defs.ENONE
}

// keyboardHandler feeds raw scancodes into kbd, forwarding decoded key
// events to the compositor's focused window as spec.md §4.9's Event
// union expects.
func keyboardHandler(c *compositor.Compositor, kbd *keyboard.Decoder) interrupt.Handler {
	return func(frame *interrupt.CPUState) *interrupt.CPUState {
		scancode := byte(frame.ErrorCode)
		if ev, ok := kbd.Feed(scancode); ok {
			c.KeyEvent(ev.Rune, ev.Pressed)
		}
		return frame
	}
}

// idle runs the scheduler's Schedule loop in lieu of a real sti;hlt spin:
// the hosted build has no timer interrupt driving TimerHandler on its own,
// so it drives Schedule directly until no thread is left runnable, at
// which point the real kernel would sit in hlt forever and this one simply
// returns.
func idle(s *sched.Scheduler) {
	for {
		res := s.Schedule(nil, 0, false)
		if res.Next == nil {
			klog.Printf("boot", "no runnable thread, halting")
			return
		}
	}
}
