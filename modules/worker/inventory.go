package worker

import (
	"sync"
	"time"
)

// inventoryScanInterval is how often the full directory scan runs to catch
// out-of-band modifications the in-memory cache wouldn't otherwise see.
const inventoryScanInterval = time.Hour

// inventory is the worker's in-memory view of what it holds, updated on
// every successful Put/Delete and reconciled by a periodic full scan.
type inventory struct {
	mu    sync.RWMutex
	sizes map[string]int64
}

func newInventory() *inventory {
	return &inventory{sizes: make(map[string]int64)}
}

func (inv *inventory) add(id string, size int64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.sizes[id] = size
}

func (inv *inventory) remove(id string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.sizes, id)
}

// ids returns a snapshot of every chunk id currently believed held.
func (inv *inventory) ids() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]string, 0, len(inv.sizes))
	for id := range inv.sizes {
		out = append(out, id)
	}
	return out
}

// replace swaps the cache contents wholesale, used after a full disk scan.
func (inv *inventory) replace(entries []validChunkEntry) {
	sizes := make(map[string]int64, len(entries))
	for _, e := range entries {
		sizes[e.ID] = e.Size
	}
	inv.mu.Lock()
	inv.sizes = sizes
	inv.mu.Unlock()
}

// threadedInventoryScan runs a full directory scan at startup and every
// inventoryScanInterval thereafter, replacing the cache with ground truth.
func (w *Worker) threadedInventoryScan() {
	if err := w.tg.Add(); err != nil {
		return
	}
	defer w.tg.Done()

	w.rescan()
	for {
		select {
		case <-w.tg.StopChan():
			return
		case <-time.After(inventoryScanInterval):
			w.rescan()
		}
	}
}

func (w *Worker) rescan() {
	entries, err := w.store.scan()
	if err != nil {
		w.log.Println("WARN: inventory scan failed:", err)
		return
	}
	w.inv.replace(entries)
	w.log.Printf("inventory scan found %d chunks\n", len(entries))
}
