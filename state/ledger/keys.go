package ledger

import "fmt"

const (
	ledgerPrefix   = "ledger"
	snapshotsInfix = "snapshots"
	headSuffix     = "head"
)

func snapshotKey(version uint64) []byte {
	return []byte(fmt.Sprintf("%s/%s/%020d", ledgerPrefix, snapshotsInfix, version))
}

func snapshotsPrefix() []byte {
	return []byte(fmt.Sprintf("%s/%s/", ledgerPrefix, snapshotsInfix))
}

func headKey() []byte {
	return []byte(fmt.Sprintf("%s/%s", ledgerPrefix, headSuffix))
}
