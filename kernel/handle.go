package kernel

import (
	"log/slog"
	"math"
	"sync"

	abi "github.com/wnxd/microdbg-abi"
)

type object struct {
	name string
	refs int
}

type handleEntry struct {
	obj    *object
	rights abi.Rights
}

type handle struct {
	rw      sync.RWMutex
	next    uint64
	max     int
	count   int
	objects int
	tasks   map[uint64]map[abi.HandleID]handleEntry

	minFree      uint64
	memAvailable func() (uint64, error)
	logger       *slog.Logger
}

func (h *handle) ctor(cfg Config, logger *slog.Logger) {
	h.next = uint64(cfg.FirstHandle)
	h.max = cfg.MaxHandles
	h.minFree = cfg.MinFreeMemory
	h.memAvailable = hostMemAvailable
	h.tasks = make(map[uint64]map[abi.HandleID]handleEntry)
	h.logger = logger
}

func (h *handle) dtor() {
	h.rw.Lock()
	h.tasks = nil
	h.count = 0
	h.objects = 0
	h.rw.Unlock()
}

// alloc reserves a fresh id. The caller holds h.rw.
func (h *handle) alloc() (abi.HandleID, error) {
	if h.tasks == nil {
		return 0, abi.ERR_BAD_STATE
	}
	if h.count >= h.max || h.next > math.MaxUint32 {
		return 0, abi.ERR_NO_RESOURCES
	}
	if h.minFree != 0 {
		avail, err := h.memAvailable()
		if err != nil {
			h.logger.Warn("probing host memory failed", "error", err)
			return 0, abi.ERR_INTERNAL
		}
		if avail < h.minFree {
			return 0, abi.ERR_NO_MEMORY
		}
	}
	id := abi.HandleID(h.next)
	h.next++
	return id, nil
}

// install records e under id for task. The caller holds h.rw.
func (h *handle) install(task uint64, id abi.HandleID, e handleEntry) {
	table, ok := h.tasks[task]
	if !ok {
		table = make(map[abi.HandleID]handleEntry)
		h.tasks[task] = table
	}
	table[id] = e
	e.obj.refs++
	h.count++
}

func (h *handle) lookup(task uint64, id abi.HandleID) (handleEntry, bool) {
	e, ok := h.tasks[task][id]
	return e, ok
}

func (h *handle) grant(task uint64, name string, rights abi.Rights) (abi.HandleID, error) {
	if rights&^abi.RIGHTS_ALL != 0 {
		return 0, abi.ERR_INVALID_ARG
	}
	h.rw.Lock()
	defer h.rw.Unlock()
	id, err := h.alloc()
	if err != nil {
		return 0, err
	}
	h.install(task, id, handleEntry{obj: &object{name: name}, rights: rights})
	h.objects++
	return id, nil
}

func (h *handle) handle_close(ctx abi.Context, id abi.HandleID) error {
	h.rw.Lock()
	defer h.rw.Unlock()
	e, ok := h.lookup(ctx.Task(), id)
	if !ok {
		return abi.ERR_BAD_HANDLE
	}
	delete(h.tasks[ctx.Task()], id)
	if len(h.tasks[ctx.Task()]) == 0 {
		delete(h.tasks, ctx.Task())
	}
	h.count--
	e.obj.refs--
	if e.obj.refs == 0 {
		h.objects--
		h.logger.Debug("object released", "object", e.obj.name, "handle", uint32(id))
	}
	return nil
}

func (h *handle) handle_duplicate(ctx abi.Context, id abi.HandleID, rights abi.Rights) (abi.HandleID, error) {
	h.rw.Lock()
	defer h.rw.Unlock()
	e, ok := h.lookup(ctx.Task(), id)
	if !ok {
		return 0, abi.ERR_BAD_HANDLE
	}
	if rights&^abi.RIGHTS_ALL != 0 {
		return 0, abi.ERR_INVALID_ARG
	}
	if err := e.rights.Has(abi.RIGHT_DUPLICATE | rights); err != nil {
		return 0, err
	}
	dup, err := h.alloc()
	if err != nil {
		return 0, err
	}
	h.install(ctx.Task(), dup, handleEntry{obj: e.obj, rights: rights})
	return dup, nil
}

// Info describes a live handle as the kernel sees it.
type Info struct {
	Object string
	Rights abi.Rights
	Refs   int
}

func (h *handle) info(task uint64, id abi.HandleID) (Info, bool) {
	h.rw.RLock()
	defer h.rw.RUnlock()
	e, ok := h.lookup(task, id)
	if !ok {
		return Info{}, false
	}
	return Info{Object: e.obj.name, Rights: e.rights, Refs: e.obj.refs}, true
}

func (h *handle) stats() (handles, objects int) {
	h.rw.RLock()
	defer h.rw.RUnlock()
	return h.count, h.objects
}
