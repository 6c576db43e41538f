package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"creditpool/storage"
)

var (
	// ErrNoSnapshot is returned when nothing has been saved yet.
	ErrNoSnapshot = errors.New("ledger: no snapshot stored")
	// ErrChecksumMismatch is returned when a stored payload does not hash to
	// its recorded checksum.
	ErrChecksumMismatch = errors.New("ledger: snapshot checksum mismatch")
	// ErrMalformed is returned for snapshots that decode but are inconsistent.
	ErrMalformed = errors.New("ledger: malformed snapshot")
)

// Receipt describes a stored snapshot.
type Receipt struct {
	Version  uint64
	SavedAt  uint64
	Root     common.Hash
	Checksum [32]byte
}

type record struct {
	Version  uint64
	Root     common.Hash
	Checksum [32]byte
	Payload  []byte
}

// Store keeps versioned market snapshots in a key-value database. Every
// record carries the blake3 checksum of its RLP payload and the state root of
// the snapshot it holds.
type Store struct {
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) withDB() (storage.Database, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("ledger store not initialised")
	}
	return s.db, nil
}

// Head returns the latest stored version, zero when the store is empty.
func (s *Store) Head() (uint64, error) {
	db, err := s.withDB()
	if err != nil {
		return 0, err
	}
	raw, err := db.Get(headKey())
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: load head: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: head is %d bytes", ErrMalformed, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Save stores snap as the next version and moves the head to it.
func (s *Store) Save(snap *Snapshot) (Receipt, error) {
	db, err := s.withDB()
	if err != nil {
		return Receipt{}, err
	}
	if err := snap.Validate(); err != nil {
		return Receipt{}, err
	}
	root, err := StateRoot(snap)
	if err != nil {
		return Receipt{}, err
	}
	payload, err := rlp.EncodeToBytes(snap)
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger: encode snapshot: %w", err)
	}
	head, err := s.Head()
	if err != nil {
		return Receipt{}, err
	}
	rec := record{Version: head + 1, Root: root, Checksum: blake3.Sum256(payload), Payload: payload}
	encoded, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger: encode record: %w", err)
	}
	if err := db.Put(snapshotKey(rec.Version), encoded); err != nil {
		return Receipt{}, fmt.Errorf("ledger: persist snapshot: %w", err)
	}
	var version [8]byte
	binary.BigEndian.PutUint64(version[:], rec.Version)
	if err := db.Put(headKey(), version[:]); err != nil {
		return Receipt{}, fmt.Errorf("ledger: update head: %w", err)
	}
	return Receipt{Version: rec.Version, SavedAt: snap.SavedAt, Root: root, Checksum: rec.Checksum}, nil
}

// Load returns the snapshot at the head.
func (s *Store) Load() (*Snapshot, Receipt, error) {
	head, err := s.Head()
	if err != nil {
		return nil, Receipt{}, err
	}
	if head == 0 {
		return nil, Receipt{}, ErrNoSnapshot
	}
	return s.LoadVersion(head)
}

// LoadVersion returns the snapshot stored as version, verifying its checksum
// and state root.
func (s *Store) LoadVersion(version uint64) (*Snapshot, Receipt, error) {
	db, err := s.withDB()
	if err != nil {
		return nil, Receipt{}, err
	}
	raw, err := db.Get(snapshotKey(version))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, Receipt{}, fmt.Errorf("%w: version %d", ErrNoSnapshot, version)
	}
	if err != nil {
		return nil, Receipt{}, fmt.Errorf("ledger: load snapshot: %w", err)
	}
	var rec record
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, Receipt{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if blake3.Sum256(rec.Payload) != rec.Checksum {
		return nil, Receipt{}, fmt.Errorf("%w: version %d", ErrChecksumMismatch, version)
	}
	snap := new(Snapshot)
	if err := rlp.DecodeBytes(rec.Payload, snap); err != nil {
		return nil, Receipt{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, Receipt{}, err
	}
	root, err := StateRoot(snap)
	if err != nil {
		return nil, Receipt{}, err
	}
	if root != rec.Root {
		return nil, Receipt{}, fmt.Errorf("%w: state root %s, recorded %s", ErrMalformed, root.Hex(), rec.Root.Hex())
	}
	return snap, Receipt{Version: rec.Version, SavedAt: snap.SavedAt, Root: rec.Root, Checksum: rec.Checksum}, nil
}

// Versions lists stored versions in ascending order.
func (s *Store) Versions() ([]uint64, error) {
	db, err := s.withDB()
	if err != nil {
		return nil, err
	}
	prefix := snapshotsPrefix()
	keys, err := db.Keys(prefix)
	if err != nil {
		return nil, fmt.Errorf("ledger: list snapshots: %w", err)
	}
	out := make([]uint64, 0, len(keys))
	for _, key := range keys {
		version, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q", ErrMalformed, key)
		}
		out = append(out, version)
	}
	return out, nil
}

// Prune deletes all but the newest keep versions.
func (s *Store) Prune(keep int) error {
	db, err := s.withDB()
	if err != nil {
		return err
	}
	versions, err := s.Versions()
	if err != nil {
		return err
	}
	if keep < 1 {
		keep = 1
	}
	for len(versions) > keep {
		if err := db.Delete(snapshotKey(versions[0])); err != nil {
			return fmt.Errorf("ledger: prune snapshot: %w", err)
		}
		versions = versions[1:]
	}
	return nil
}
