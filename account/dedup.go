package account

import (
	"github.com/withobsrvr/asset-ledger/types"
)

// DefaultTTL bounds the dedup window to thirty days.
const DefaultTTL uint64 = 30 * 24 * 60 * 60

// ProcessedTransactions is the bounded dedup window over recently processed
// transaction ids: a map from txid to first-seen timestamp plus a queue in
// insertion order. Both structures always hold the same set, and after every
// insert no entry is older than the newest timestamp minus the TTL.
//
// Fields are exported only so the window survives aggregate snapshots.
type ProcessedTransactions struct {
	TTL        uint64                         `json:"ttl"`
	Txids      map[types.ID32]types.Timestamp `json:"txids"`
	Timeseries []TxRecord                     `json:"timeseries"`
}

// TxRecord is one queue entry.
type TxRecord struct {
	Timestamp types.Timestamp `json:"timestamp"`
	Txid      types.ID32      `json:"txid"`
}

// NewProcessedTransactions builds an empty window with the given TTL.
func NewProcessedTransactions(ttl uint64) *ProcessedTransactions {
	return &ProcessedTransactions{
		TTL:   ttl,
		Txids: make(map[types.ID32]types.Timestamp),
	}
}

// Timestamp returns the first-seen timestamp for txid.
func (p *ProcessedTransactions) Timestamp(txid types.ID32) (types.Timestamp, bool) {
	ts, ok := p.Txids[txid]
	return ts, ok
}

// Insert records txid at timestamp and prunes entries that fell out of the
// TTL window. Re-inserting a known txid returns its prior timestamp and
// leaves the window untouched.
func (p *ProcessedTransactions) Insert(txid types.ID32, timestamp types.Timestamp) (types.Timestamp, bool) {
	if prior, ok := p.Txids[txid]; ok {
		return prior, false
	}
	if p.Txids == nil {
		p.Txids = make(map[types.ID32]types.Timestamp)
	}
	p.Txids[txid] = timestamp
	p.Timeseries = append(p.Timeseries, TxRecord{Timestamp: timestamp, Txid: txid})

	for len(p.Timeseries) > 0 {
		head := p.Timeseries[0]
		if head.Timestamp+p.TTL >= timestamp {
			break
		}
		delete(p.Txids, head.Txid)
		p.Timeseries = p.Timeseries[1:]
	}
	return timestamp, true
}

// Remove erases txid from the window, returning its timestamp. Used by the
// reversal commands: once reversed, the original txid may be processed
// again.
func (p *ProcessedTransactions) Remove(txid types.ID32) (types.Timestamp, bool) {
	ts, ok := p.Txids[txid]
	if !ok {
		return 0, false
	}
	delete(p.Txids, txid)
	kept := p.Timeseries[:0]
	for _, record := range p.Timeseries {
		if record.Txid != txid {
			kept = append(kept, record)
		}
	}
	p.Timeseries = kept
	return ts, true
}

// Len reports the number of txids currently in the window.
func (p *ProcessedTransactions) Len() int {
	return len(p.Txids)
}
