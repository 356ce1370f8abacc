package storage

import "testing"

func TestPut_MissingBucket(t *testing.T) {
	idx := NewIndex()
	err := idx.Put(DataItem{Bucket: "in", Name: "obj", Size: 10})
	if err == nil {
		t.Fatal("expected ErrMissingBucket, got nil")
	}
	if _, ok := err.(*ErrMissingBucket); !ok {
		t.Errorf("expected *ErrMissingBucket, got %T", err)
	}
}

func TestPutAndStat(t *testing.T) {
	idx := NewIndex()
	idx.MakeBucket("in", "storage-1")
	idx.MakeBucket("in", "storage-2")

	item := DataItem{Bucket: "in", Name: "obj", Size: 1024}
	if err := idx.Put(item); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := idx.Stat("in", "obj")
	if !ok {
		t.Fatal("Stat: expected item, got none")
	}
	if got != item {
		t.Errorf("Stat = %+v, want %+v", got, item)
	}

	nodes := idx.DataNodes("in", "obj")
	if len(nodes) != 2 {
		t.Errorf("DataNodes = %v, want 2 entries", nodes)
	}
	for _, n := range []string{"storage-1", "storage-2"} {
		if _, ok := nodes[n]; !ok {
			t.Errorf("DataNodes missing %q", n)
		}
	}
}

func TestStat_Unknown(t *testing.T) {
	idx := NewIndex()
	if _, ok := idx.Stat("none", "none"); ok {
		t.Error("expected ok=false for unknown item")
	}
}

func TestBucketNodes(t *testing.T) {
	idx := NewIndex()
	idx.MakeBucket("b", "n1")
	nodes := idx.BucketNodes("b")
	if len(nodes) != 1 {
		t.Fatalf("BucketNodes = %v, want 1 entry", nodes)
	}
	if _, ok := nodes["n1"]; !ok {
		t.Error("BucketNodes missing n1")
	}
}
