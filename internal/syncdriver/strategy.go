package syncdriver

import (
	"context"

	"spilled.ink/mailengine/internal/hcache"
)

// ServerState is the subset of selected-mailbox state the server
// reported on SELECT: the fields strategy selection compares against
// the header cache.
type ServerState struct {
	UIDValidity    uint32
	UIDNext        uint32
	ExistsCount    uint32 // MSN count reported by the SELECT's EXISTS response
	CondstoreOK    bool   // server advertised CONDSTORE
	QresyncEnabled bool   // client ENABLEd QRESYNC and the server accepted it
}

// cachedState is what the header cache remembers from the previous
// sync of this mailbox.
type cachedState struct {
	uidValidity uint32
	uidNext     uint32
	modSeq      uint64
	hasModSeq   bool
	uidSeqSet   string
	hasSeqSet   bool
}

func (d *Driver) loadCachedState(ctx context.Context) (cachedState, error) {
	var cs cachedState
	uv, found, err := d.HC.FetchUint32(ctx, hcache.KeyUIDValidity)
	if err != nil {
		return cs, err
	}
	if !found {
		return cs, nil
	}
	cs.uidValidity = uv

	un, found, err := d.HC.FetchUint32(ctx, hcache.KeyUIDNext)
	if err != nil {
		return cs, err
	}
	if !found {
		return cs, nil
	}
	cs.uidNext = un

	if ms, found, err := d.HC.FetchUint64(ctx, hcache.KeyModSeq); err != nil {
		return cs, err
	} else if found {
		cs.modSeq = ms
		cs.hasModSeq = true
	}

	if raw, found, err := d.HC.FetchRaw(ctx, []byte(hcache.KeyUIDSeqSet)); err != nil {
		return cs, err
	} else if found {
		cs.uidSeqSet = string(raw)
		cs.hasSeqSet = true
	}
	return cs, nil
}

// chooseStrategy implements the strategy ladder: QRESYNC when both the
// server and the cache support it, CONDSTORE when the server
// advertises it and a cached MODSEQ exists, a plain cache-assisted
// pass ("evalhc") when UIDVALIDITY and UIDNEXT both still match, and a
// full fetch from scratch otherwise.
func chooseStrategy(server ServerState, cached cachedState) Strategy {
	validityMatches := cached.uidValidity != 0 && cached.uidValidity == server.UIDValidity && cached.uidNext == server.UIDNext
	if !validityMatches {
		return StrategyFull
	}
	if server.QresyncEnabled && cached.hasModSeq && cached.hasSeqSet {
		return StrategyQresync
	}
	if server.CondstoreOK && cached.hasModSeq {
		return StrategyCondstore
	}
	return StrategyEval
}
