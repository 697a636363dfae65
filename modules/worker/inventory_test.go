package worker

import "testing"

func TestInventoryAddRemoveIDs(t *testing.T) {
	inv := newInventory()
	inv.add("a", 10)
	inv.add("b", 20)
	if ids := inv.ids(); len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	inv.remove("a")
	ids := inv.ids()
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected only b to remain, got %v", ids)
	}
}

func TestInventoryReplaceSwapsContents(t *testing.T) {
	inv := newInventory()
	inv.add("stale", 1)
	inv.replace([]validChunkEntry{{ID: "fresh", Size: 99}})
	ids := inv.ids()
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Fatalf("expected replace to discard stale entries, got %v", ids)
	}
}
