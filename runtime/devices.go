package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/petal-labs/multitool/core"
)

// ErrNoDevice is returned when a hardware attach request cannot be satisfied.
var ErrNoDevice = errors.New("runtime: no device available")

// MaxDevices is the largest number of devices one attach may request,
// simulated or hardware.
const MaxDevices = 1024

// DevicePool hands out device IDs. Simulated devices are unlimited; hardware
// devices are limited to the number the pool was created with.
type DevicePool struct {
	mu    sync.Mutex
	size  int
	inUse map[int]bool
}

// NewDevicePool creates a pool of size hardware devices.
func NewDevicePool(size int) *DevicePool {
	if size < 0 {
		size = 0
	}
	return &DevicePool{size: size, inUse: make(map[int]bool)}
}

// Free returns the number of hardware devices not attached.
func (p *DevicePool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size - len(p.inUse)
}

// Acquire attaches count devices.
func (p *DevicePool) Acquire(count uint, simulated bool) (*core.Device, error) {
	if count == 0 {
		return nil, errors.New("runtime: device count must be at least 1")
	}
	if count > MaxDevices {
		return nil, fmt.Errorf("runtime: device count %d exceeds the maximum of %d", count, MaxDevices)
	}
	if simulated {
		ids := make([]int, count)
		for i := range ids {
			ids[i] = i
		}
		return &core.Device{IDs: ids, Simulated: true}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	free := p.size - len(p.inUse)
	if count > uint(free) {
		return nil, fmt.Errorf("%w: requested %d, %d of %d free (use --model for the simulator)", ErrNoDevice, count, free, p.size)
	}
	ids := make([]int, 0, count)
	for id := 0; id < p.size && uint(len(ids)) < count; id++ {
		if !p.inUse[id] {
			p.inUse[id] = true
			ids = append(ids, id)
		}
	}
	return &core.Device{IDs: ids}, nil
}

// Release detaches d. Releasing a simulated device is a no-op.
func (p *DevicePool) Release(d *core.Device) {
	if d == nil || d.Simulated {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range d.IDs {
		delete(p.inUse, id)
	}
}
