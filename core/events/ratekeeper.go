package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// TypeKeeperVote is emitted when a voter casts or withdraws votes.
	TypeKeeperVote = "ratekeeper.vote"
	// TypeKeeperEpoch is emitted when a keeper pushes a new rate set.
	TypeKeeperEpoch = "ratekeeper.epoch"
)

// KeeperVote captures a vote movement on a gauge.
type KeeperVote struct {
	Voter   common.Address
	Asset   common.Address
	Votes   *uint256.Int
	Side    string
	Removed bool
}

func (KeeperVote) EventType() string { return TypeKeeperVote }

// Event renders the vote for downstream consumers.
func (e KeeperVote) Event() *Record {
	votes := "0"
	if e.Votes != nil {
		votes = e.Votes.Dec()
	}
	return &Record{
		Type: TypeKeeperVote,
		Attributes: map[string]string{
			"voter":   addressString(e.Voter),
			"asset":   addressString(e.Asset),
			"votes":   votes,
			"side":    e.Side,
			"removed": strconv.FormatBool(e.Removed),
		},
	}
}

// KeeperEpoch captures a rate push by a keeper.
type KeeperEpoch struct {
	Keeper common.Address
	Kind   string
	Epoch  uint64
	Assets int
}

func (KeeperEpoch) EventType() string { return TypeKeeperEpoch }

// Event renders the epoch advance for downstream consumers.
func (e KeeperEpoch) Event() *Record {
	return &Record{
		Type: TypeKeeperEpoch,
		Attributes: map[string]string{
			"keeper": addressString(e.Keeper),
			"kind":   e.Kind,
			"epoch":  strconv.FormatUint(e.Epoch, 10),
			"assets": strconv.Itoa(e.Assets),
		},
	}
}
