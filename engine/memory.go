package engine

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/errors"
)

const (
	DefaultInitialMB = 64
	DefaultMaxMB     = 2048
	DefaultFloorMB   = 512

	pageSize   = 65536
	pagesPerMB = (1 << 20) / pageSize
)

// Pages converts megabytes to 64 KiB pages.
func Pages(mb uint32) uint32 {
	return mb * pagesPerMB
}

// MemoryBudget picks the maximum size of the engine's shared memory.
type MemoryBudget struct {
	InitialMB uint32
	MaxMB     uint32
	FloorMB   uint32
	// Available reports free host memory in bytes; nil reads it from the OS.
	Available func() (uint64, error)
}

// DefaultMemoryBudget returns the 64 MB / 2048 MB / 512 MB budget.
func DefaultMemoryBudget() MemoryBudget {
	return MemoryBudget{InitialMB: DefaultInitialMB, MaxMB: DefaultMaxMB, FloorMB: DefaultFloorMB}
}

// Size returns the largest maximum, in megabytes, that the host can back.
// It starts at MaxMB and halves after each failed attempt while above
// FloorMB. The last attempt is made even when it is likely to fail; its
// error is returned.
func (b MemoryBudget) Size() (uint32, error) {
	maxMB := b.MaxMB
	for maxMB > b.FloorMB {
		err := b.reserve(maxMB)
		if err == nil {
			return maxMB, nil
		}
		Logger().Debug("shared memory reservation failed, halving",
			zap.Uint32("max_mb", maxMB), zap.Error(err))
		maxMB /= 2
	}

	if err := b.reserve(maxMB); err != nil {
		return 0, errors.AllocationFailed(maxMB, err)
	}
	return maxMB, nil
}

func (b MemoryBudget) reserve(maxMB uint32) error {
	if maxMB < b.InitialMB {
		return fmt.Errorf("maximum %d MB below initial %d MB", maxMB, b.InitialMB)
	}

	available := b.Available
	if available == nil {
		available = hostAvailable
	}
	free, err := available()
	if err != nil {
		// unknown host memory: let wazero enforce the limit
		Logger().Debug("host memory unknown", zap.Error(err))
		return nil
	}

	need := uint64(maxMB) << 20
	if need > free {
		return fmt.Errorf("need %s, host has %s available", humanize.IBytes(need), humanize.IBytes(free))
	}
	return nil
}

func hostAvailable() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
