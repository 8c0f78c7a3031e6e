package syncdriver

import "testing"

type fixedHoles map[uint32]bool

func (f fixedHoles) needsFetch(msn uint32) bool { return f[msn] }

func TestBuildChunksCompressesRuns(t *testing.T) {
	holes := fixedHoles{1: true, 2: true, 3: true, 7: true, 9: true, 10: true, 11: true, 12: true}
	chunks := buildChunks(1, 12, holes, 0, 0)
	want := []string{"1:3,7,9:12"}
	if len(chunks) != len(want) || chunks[0] != want[0] {
		t.Fatalf("chunks = %v, want %v", chunks, want)
	}
}

func TestBuildChunksNoHolesIsEmpty(t *testing.T) {
	holes := fixedHoles{}
	chunks := buildChunks(1, 5, holes, 0, 0)
	if len(chunks) != 0 {
		t.Fatalf("chunks = %v, want none", chunks)
	}
}

func TestBuildChunksSplitsOnMaxNew(t *testing.T) {
	holes := fixedHoles{1: true, 2: true, 3: true, 4: true}
	chunks := buildChunks(1, 4, holes, 2, 0)
	want := []string{"1:2", "3:4"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunks[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestBuildChunksSplitsOnMaxBytes(t *testing.T) {
	holes := fixedHoles{100: true, 200: true, 300: true}
	chunks := buildChunks(100, 300, holes, 0, 8)
	want := []string{"100,200", "300"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunks[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestBuildChunksEmptyRange(t *testing.T) {
	if chunks := buildChunks(5, 2, fixedHoles{}, 0, 0); chunks != nil {
		t.Fatalf("chunks = %v, want nil", chunks)
	}
}
