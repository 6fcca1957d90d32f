//go:build linux

package subproc

import (
	"errors"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// cpuSetBits is the capacity of unix.CPUSet.
const cpuSetBits = 1024

const taskDir = "/proc/self/task"

// UnbindCores widens the affinity of every thread of the process to every
// CPU, so the engine's native threads are not pinned to the cores the parent
// was bound to, whichever thread the engine call lands on. Threads created
// afterwards inherit the widened mask. The kernel drops CPUs that are
// offline or outside the cgroup.
func UnbindCores() error {
	var set unix.CPUSet
	for i := 0; i < cpuSetBits; i++ {
		set.Set(i)
	}

	// the runtime may start threads while we walk, repeat until a pass finds
	// nothing new
	done := make(map[int]struct{})
	for {
		tids, err := threadIDs()
		if err != nil {
			return err
		}
		fresh := 0
		for _, tid := range tids {
			if _, ok := done[tid]; ok {
				continue
			}
			done[tid] = struct{}{}
			fresh++
			if err := unix.SchedSetaffinity(tid, &set); err != nil {
				if errors.Is(err, unix.ESRCH) {
					continue // exited
				}
				return xerrors.Errorf("sched_setaffinity(%d): %w", tid, err)
			}
		}
		if fresh == 0 {
			break
		}
	}

	if err := unix.SchedGetaffinity(0, &set); err == nil {
		log.Infow("cores unbound", "cpus", set.Count(), "threads", len(done))
	}
	return nil
}

func threadIDs() ([]int, error) {
	ents, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, xerrors.Errorf("listing threads: %w", err)
	}
	tids := make([]int, 0, len(ents))
	for _, ent := range ents {
		tid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}
