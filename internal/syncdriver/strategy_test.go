package syncdriver

import (
	"context"
	"testing"

	"spilled.ink/mailengine/internal/hcache"
)

func TestChooseStrategy(t *testing.T) {
	tests := []struct {
		name   string
		server ServerState
		cached cachedState
		want   Strategy
	}{
		{
			name:   "no cache yet",
			server: ServerState{UIDValidity: 1, UIDNext: 10},
			cached: cachedState{},
			want:   StrategyFull,
		},
		{
			name:   "uidvalidity changed",
			server: ServerState{UIDValidity: 2, UIDNext: 10},
			cached: cachedState{uidValidity: 1, uidNext: 10},
			want:   StrategyFull,
		},
		{
			name:   "uidnext moved, no condstore/qresync",
			server: ServerState{UIDValidity: 1, UIDNext: 11},
			cached: cachedState{uidValidity: 1, uidNext: 10},
			want:   StrategyFull,
		},
		{
			name:   "matches, no server support",
			server: ServerState{UIDValidity: 1, UIDNext: 10},
			cached: cachedState{uidValidity: 1, uidNext: 10},
			want:   StrategyEval,
		},
		{
			name:   "condstore advertised and cached modseq",
			server: ServerState{UIDValidity: 1, UIDNext: 10, CondstoreOK: true},
			cached: cachedState{uidValidity: 1, uidNext: 10, hasModSeq: true, modSeq: 99},
			want:   StrategyCondstore,
		},
		{
			name:   "condstore advertised but no cached modseq",
			server: ServerState{UIDValidity: 1, UIDNext: 10, CondstoreOK: true},
			cached: cachedState{uidValidity: 1, uidNext: 10},
			want:   StrategyEval,
		},
		{
			name:   "qresync enabled and cache has seqset",
			server: ServerState{UIDValidity: 1, UIDNext: 10, CondstoreOK: true, QresyncEnabled: true},
			cached: cachedState{uidValidity: 1, uidNext: 10, hasModSeq: true, modSeq: 99, hasSeqSet: true, uidSeqSet: "1,2,3"},
			want:   StrategyQresync,
		},
		{
			name:   "qresync enabled but cache lacks seqset falls back to condstore",
			server: ServerState{UIDValidity: 1, UIDNext: 10, CondstoreOK: true, QresyncEnabled: true},
			cached: cachedState{uidValidity: 1, uidNext: 10, hasModSeq: true, modSeq: 99},
			want:   StrategyCondstore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseStrategy(tt.server, tt.cached); got != tt.want {
				t.Errorf("chooseStrategy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadCachedStateEmpty(t *testing.T) {
	rig := newTestRig(t, Config{})
	cs, err := rig.d.loadCachedState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cs.uidValidity != 0 || cs.hasModSeq || cs.hasSeqSet {
		t.Errorf("cached = %+v, want zero value", cs)
	}
}

func TestLoadCachedStateRoundTrip(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDValidity, 7); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDNext, 42); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint64(ctx, hcache.KeyModSeq, 1000); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreRaw(ctx, []byte(hcache.KeyUIDSeqSet), []byte("1,2,3")); err != nil {
		t.Fatal(err)
	}

	cs, err := rig.d.loadCachedState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cs.uidValidity != 7 || cs.uidNext != 42 {
		t.Errorf("uidvalidity/uidnext = %d/%d", cs.uidValidity, cs.uidNext)
	}
	if !cs.hasModSeq || cs.modSeq != 1000 {
		t.Errorf("modseq = %v/%d", cs.hasModSeq, cs.modSeq)
	}
	if !cs.hasSeqSet || cs.uidSeqSet != "1,2,3" {
		t.Errorf("seqset = %v/%q", cs.hasSeqSet, cs.uidSeqSet)
	}
}
