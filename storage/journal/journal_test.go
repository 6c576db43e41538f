package journal

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"creditpool/core/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open(DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "test.bare" }

func TestAppendAssignsSequence(t *testing.T) {
	j := openTestJournal(t)
	j.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })

	lp := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	first, err := j.Append(events.PoolDeposit{Receiver: lp, Assets: big.NewInt(100), Shares: big.NewInt(100)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := j.Append(bareEvent{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("unexpected sequences %d, %d", first.Sequence, second.Sequence)
	}
	if first.Type != events.TypePoolDeposit {
		t.Fatalf("unexpected type %q", first.Type)
	}
	attrs, err := first.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if attrs["assets"] != "100" {
		t.Fatalf("expected assets attribute 100, got %q", attrs["assets"])
	}
	bare, err := second.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bare) != 0 {
		t.Fatalf("expected no attributes, got %v", bare)
	}
}

func TestRecentSinceAndByType(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		j.Emit(bareEvent{})
	}
	j.Emit(events.QuotaRateUpdated{Asset: common.HexToAddress("0x0c01"), Rate: 250})

	recent, err := j.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Sequence != 6 || recent[1].Sequence != 5 {
		t.Fatalf("unexpected recent entries %+v", recent)
	}

	since, err := j.Since(3, 10)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(since) != 3 || since[0].Sequence != 4 {
		t.Fatalf("unexpected since entries %+v", since)
	}

	rates, err := j.ByType(events.TypeQuotaRateUpdated, 10)
	if err != nil {
		t.Fatalf("by type: %v", err)
	}
	if len(rates) != 1 {
		t.Fatalf("expected one rate entry, got %d", len(rates))
	}
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	first, err := Open(DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer first.Close()
	first.Emit(bareEvent{})
	first.Emit(bareEvent{})

	second, err := Open(DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entry, err := second.Append(bareEvent{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.Sequence != 3 {
		t.Fatalf("expected sequence 3, got %d", entry.Sequence)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
