package kernel

import "github.com/shirou/gopsutil/v4/mem"

func hostMemAvailable() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
