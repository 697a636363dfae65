package coordinator

import (
	"testing"

	"github.com/shardfs/shardfs/modules"
)

func makeWorkers(n int) []modules.WorkerRecord {
	out := make([]modules.WorkerRecord, n)
	for i := 0; i < n; i++ {
		out[i] = modules.WorkerRecord{
			WorkerID:   string(rune('a' + i)),
			Host:       "host",
			Port:       9000 + i,
			FreeBytes:  1 << 30,
			TotalBytes: 2 << 30,
			State:      modules.WorkerActive,
		}
	}
	return out
}

func TestPlaceIsDeterministic(t *testing.T) {
	workers := makeWorkers(5)
	a, err := Place(workers, 2, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Place(workers, 2, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("mismatched lengths: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].WorkerID != b[i].WorkerID {
			t.Fatalf("placement not deterministic at index %d: %s vs %s", i, a[i].WorkerID, b[i].WorkerID)
		}
	}
}

func TestPlaceRotatesAcrossChunks(t *testing.T) {
	workers := makeWorkers(5)
	first, err := Place(workers, 0, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Place(workers, 1, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].WorkerID == second[0].WorkerID {
		t.Fatal("expected chunk index to rotate the primary replica")
	}
}

func TestPlaceInsufficientCapacity(t *testing.T) {
	workers := makeWorkers(2)
	if _, err := Place(workers, 0, 1<<20, 3); err != modules.ErrNoCapacity {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}
}

func TestPlaceSkipsIneligibleWorkers(t *testing.T) {
	workers := makeWorkers(4)
	workers[0].State = modules.WorkerInactive
	chosen, err := Place(workers, 0, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range chosen {
		if w.WorkerID == workers[0].WorkerID {
			t.Fatal("placement chose an inactive worker")
		}
	}
}

func TestPlaceRespectsFreeSpaceFloor(t *testing.T) {
	workers := makeWorkers(4)
	workers[0].FreeBytes = 1 << 10
	workers[0].TotalBytes = 1 << 30 // free ratio far below MinFreeRatio
	chosen, err := Place(workers, 0, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range chosen {
		if w.WorkerID == workers[0].WorkerID {
			t.Fatal("placement chose a worker below the free-space floor")
		}
	}
}
