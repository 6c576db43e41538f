package market

import (
	"errors"
	"fmt"

	"creditpool/config"
	"creditpool/native/ratekeeper"
	"creditpool/state/ledger"
)

// Snapshot captures the complete market state.
func (m *Market) Snapshot() *ledger.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Market) snapshot() *ledger.Snapshot {
	snap := &ledger.Snapshot{
		SavedAt:    m.now(),
		Pool:       m.pool.Snapshot(),
		Quota:      m.quota.Snapshot(),
		KeeperKind: string(m.keeper.Kind()),
		Paused:     m.pauses.Paused(),
	}
	if m.gauge != nil {
		g := m.gauge.Snapshot()
		snap.Gauge = &g
	} else {
		t := m.tumbler.Snapshot()
		snap.Tumbler = &t
	}
	return snap
}

// Persist saves the market state as the store's next version.
func (m *Market) Persist(store *ledger.Store) (ledger.Receipt, error) {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()
	receipt, err := store.Save(snap)
	if err != nil {
		return ledger.Receipt{}, err
	}
	m.logger.Debug("market persisted", "version", receipt.Version, "root", receipt.Root.Hex())
	return receipt, nil
}

// StateRoot commits to the current market state.
func (m *Market) StateRoot() (string, error) {
	root, err := ledger.StateRoot(m.Snapshot())
	if err != nil {
		return "", err
	}
	return root.Hex(), nil
}

// Load replaces the market state with snap. The keeper kind must match the
// market's.
func (m *Market) Load(snap *ledger.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ratekeeper.Kind(snap.KeeperKind) != m.keeper.Kind() {
		return fmt.Errorf("%w: snapshot keeper %s, market keeper %s", ledger.ErrMalformed, snap.KeeperKind, m.keeper.Kind())
	}
	m.pool.Restore(snap.Pool)
	m.quota.Restore(snap.Quota)
	m.pauses.Restore(snap.Paused)
	if m.gauge != nil {
		m.gauge.Restore(*snap.Gauge)
	} else {
		m.tumbler.Restore(*snap.Tumbler)
	}
	return nil
}

// Open builds a market from cfg and loads the newest snapshot in store over
// it. An empty store leaves the freshly bootstrapped state.
func Open(cfg config.Market, store *ledger.Store, opts ...Option) (*Market, error) {
	m, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	snap, receipt, err := store.Load()
	if errors.Is(err, ledger.ErrNoSnapshot) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := m.Load(snap); err != nil {
		return nil, err
	}
	m.logger.Info("market restored", "version", receipt.Version, "root", receipt.Root.Hex())
	return m, nil
}
