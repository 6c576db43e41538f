package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"creditpool/native/pool"
	"creditpool/native/quota"
	"creditpool/native/ratekeeper"
	"creditpool/storage/trie"
)

// Snapshot is the complete persisted state of one market. Exactly one of
// Gauge and Tumbler is set, matching KeeperKind. Paused lists the modules
// switched off by a pauser.
type Snapshot struct {
	SavedAt    uint64
	Pool       pool.Snapshot
	Quota      quota.Snapshot
	KeeperKind string
	Gauge      *ratekeeper.GaugeSnapshot   `rlp:"nil"`
	Tumbler    *ratekeeper.TumblerSnapshot `rlp:"nil"`
	Paused     []string                    `rlp:"optional"`
}

// Validate checks that the keeper section agrees with KeeperKind.
func (s *Snapshot) Validate() error {
	switch ratekeeper.Kind(s.KeeperKind) {
	case ratekeeper.KindGauge:
		if s.Gauge == nil || s.Tumbler != nil {
			return fmt.Errorf("%w: gauge snapshot expected", ErrMalformed)
		}
	case ratekeeper.KindTumbler:
		if s.Tumbler == nil || s.Gauge != nil {
			return fmt.Errorf("%w: tumbler snapshot expected", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown keeper kind %q", ErrMalformed, s.KeeperKind)
	}
	return nil
}

type quotaMeta struct {
	RateKeeper     common.Address
	LastRateUpdate uint64
}

// StateRoot commits to the ledger state of snap: the pool, every quota
// asset, every position quota, the pause switches and the keeper each become
// one trie leaf. The
// save timestamp is not part of the commitment, so two snapshots of the same
// state share a root.
func StateRoot(snap *Snapshot) (common.Hash, error) {
	var entries []trie.Entry
	add := func(key string, value interface{}) error {
		encoded, err := rlp.EncodeToBytes(value)
		if err != nil {
			return fmt.Errorf("ledger: encode %s: %w", key, err)
		}
		entries = append(entries, trie.Entry{Key: []byte(key), Value: encoded})
		return nil
	}

	if err := add("pool", snap.Pool); err != nil {
		return common.Hash{}, err
	}
	if err := add("quota", quotaMeta{RateKeeper: snap.Quota.RateKeeper, LastRateUpdate: snap.Quota.LastRateUpdate}); err != nil {
		return common.Hash{}, err
	}
	for _, asset := range snap.Quota.Assets {
		if err := add("quota/asset/"+asset.Asset.Hex(), asset); err != nil {
			return common.Hash{}, err
		}
	}
	for _, position := range snap.Quota.Positions {
		if err := add("quota/position/"+position.Position.Hex()+"/"+position.Asset.Hex(), position); err != nil {
			return common.Hash{}, err
		}
	}
	if len(snap.Paused) > 0 {
		if err := add("paused", snap.Paused); err != nil {
			return common.Hash{}, err
		}
	}
	switch {
	case snap.Gauge != nil:
		if err := add("keeper/gauge", snap.Gauge); err != nil {
			return common.Hash{}, err
		}
	case snap.Tumbler != nil:
		if err := add("keeper/tumbler", snap.Tumbler); err != nil {
			return common.Hash{}, err
		}
	}
	return trie.Root(entries)
}
