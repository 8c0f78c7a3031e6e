package syncdriver

import (
	"context"
	"fmt"
	"strings"

	"spilled.ink/mailengine/internal/hcache"
)

// ServerState gains ExistsCount for the MSN count reported by the
// server's EXISTS response at SELECT time, the msn_end bound the
// initial download range walks up to.

// InitialDownload implements the full control flow of the initial
// download pass: strategy selection, cache-assisted placement,
// chunked download of whatever's still missing, meta-key persistence,
// and (for QRESYNC) a verification pass that retries as a full fetch
// if the placement turned out inconsistent.
func (d *Driver) InitialDownload(ctx context.Context, server ServerState) (Strategy, error) {
	cached, err := d.loadCachedState(ctx)
	if err != nil {
		return StrategyFull, err
	}

	strategy := chooseStrategy(server, cached)
	return d.runInitialDownload(ctx, server, cached, strategy)
}

func (d *Driver) runInitialDownload(ctx context.Context, server ServerState, cached cachedState, strategy Strategy) (Strategy, error) {
	if strategy == StrategyFull && cached.uidValidity != 0 && cached.uidValidity != server.UIDValidity {
		if err := d.HC.WipeMailbox(ctx); err != nil {
			return strategy, err
		}
		if d.BC != nil {
			if err := d.BC.Clean(server.UIDValidity, nil); err != nil {
				return strategy, err
			}
		}
	}

	d.Mailbox.Reserve(int(server.ExistsCount))
	d.Mailbox.IMAP.UIDValidity = server.UIDValidity
	d.Mailbox.IMAP.QResyncEnabled = server.QresyncEnabled

	switch strategy {
	case StrategyEval:
		if err := d.checkInterrupt(ctx); err != nil {
			return strategy, err
		}
		if err := d.placeFromEvalCache(ctx, server.UIDNext, false); err != nil {
			return strategy, err
		}
	case StrategyCondstore:
		if err := d.checkInterrupt(ctx); err != nil {
			return strategy, err
		}
		if err := d.placeFromEvalCache(ctx, server.UIDNext, true); err != nil {
			return strategy, err
		}
	case StrategyQresync:
		if err := d.checkInterrupt(ctx); err != nil {
			return strategy, err
		}
		if err := d.placeFromQresync(ctx, cached); err != nil {
			return strategy, err
		}
	}

	maxUID, err := d.downloadMissing(ctx, server.ExistsCount)
	if err != nil {
		return strategy, err
	}

	if err := d.persistMeta(ctx, strategy, server, maxUID); err != nil {
		return strategy, err
	}

	if strategy == StrategyQresync {
		if !d.verifyQresync() {
			if err := d.invalidateQresync(ctx); err != nil {
				return strategy, err
			}
			d.resetMailboxState()
			return d.runInitialDownload(ctx, server, cachedState{uidValidity: cached.uidValidity, uidNext: cached.uidNext}, StrategyFull)
		}
	}

	d.Mailbox.Recompute()
	return strategy, nil
}

// downloadMissing issues chunked FETCH commands for every MSN in
// [1, msnEnd] not yet installed, parsing and installing each arriving
// row. It returns the highest UID observed across the whole pass.
func (d *Driver) downloadMissing(ctx context.Context, msnEnd uint32) (uint32, error) {
	if msnEnd == 0 {
		return 0, nil
	}
	holes := mailboxHoles{get: func(msn uint32) bool { return d.Mailbox.Get(msn) == nil }}
	chunks := buildChunks(1, msnEnd, holes, d.Config.ChunkMaxNewMSN, d.Config.chunkMaxBytes())

	var maxUID uint32
	items := fmt.Sprintf("(UID FLAGS INTERNALDATE RFC822.SIZE BODY.PEEK[HEADER.FIELDS (%s)])",
		strings.Join(HeaderFields, " "))

	for _, chunk := range chunks {
		if err := d.checkInterrupt(ctx); err != nil {
			return maxUID, err
		}
		cmd := fmt.Sprintf("FETCH %s %s", chunk, items)
		events, _, err := d.runCommand(cmd)
		if err != nil {
			return maxUID, err
		}
		for _, ev := range events.Fetches {
			e, err := d.installFromFetch(ev)
			if err != nil {
				return maxUID, err
			}
			if ev.UID > maxUID {
				maxUID = ev.UID
			}
			if err := d.HC.Store(ctx, msgKey(ev.UID), e, d.Mailbox.IMAP.UIDValidity); err != nil {
				return maxUID, err
			}
		}
	}
	return maxUID, nil
}

// persistMeta writes the header cache's meta keys once the download
// pass (cache placement plus network fill-in) has completed.
func (d *Driver) persistMeta(ctx context.Context, strategy Strategy, server ServerState, maxUID uint32) error {
	uidNext := server.UIDNext
	if maxUID+1 > uidNext {
		uidNext = maxUID + 1
	}
	d.Mailbox.IMAP.UIDNext = uidNext

	if err := d.HC.StoreUint32(ctx, hcache.KeyUIDValidity, server.UIDValidity); err != nil {
		return err
	}
	if err := d.HC.StoreUint32(ctx, hcache.KeyUIDNext, uidNext); err != nil {
		return err
	}

	switch strategy {
	case StrategyCondstore, StrategyQresync:
		// A real server reports the mailbox's current HIGHESTMODSEQ on
		// SELECT/OK [HIGHESTMODSEQ n]; callers that track it should set
		// Mailbox.IMAP.ModSeq before calling InitialDownload so it
		// round-trips here. Absent that, leave the cached value alone
		// rather than clobbering it with a stale zero.
		if d.Mailbox.IMAP.ModSeq != 0 {
			if err := d.HC.StoreUint64(ctx, hcache.KeyModSeq, d.Mailbox.IMAP.ModSeq); err != nil {
				return err
			}
		}
	}
	if strategy == StrategyQresync {
		if err := d.HC.StoreRaw(ctx, []byte(hcache.KeyUIDSeqSet), []byte(d.encodeUIDSeqSet())); err != nil {
			return err
		}
	}
	return nil
}
