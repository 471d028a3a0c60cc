package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chainprobe/business/report/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
)

type execCall struct {
	query string
	arg   any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) NamedExecContext(_ context.Context, query string, arg any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, arg: arg})
	if f.err != nil {
		return nil, f.err
	}
	return driverResult(1), nil
}

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestWriter_Write(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name      string
		event     domain.Event
		wantTable string
		check     func(t *testing.T, arg any)
	}{
		{
			name: "reorganization",
			event: domain.Reorganization{
				Time:           at,
				AttachedLength: 10,
				OldTip:         domain.BlockRef{Number: 100, Hash: common.HexToHash("0x01")},
				NewTip:         domain.BlockRef{Number: 100, Hash: common.HexToHash("0x02")},
				Ancestor:       domain.BlockRef{Number: 90, Hash: common.HexToHash("0x03")},
			},
			wantTable: "reorganization",
			check: func(t *testing.T, arg any) {
				row := arg.(reorganizationRow)
				if row.AttachedLength != 10 || row.AncestorNumber != 90 || row.OldTipNumber != 100 {
					t.Errorf("unexpected row %+v", row)
				}
				if row.AncestorHash != common.HexToHash("0x03").Hex() {
					t.Errorf("unexpected ancestor hash %s", row.AncestorHash)
				}
				if len(row.NewTipHash) != 66 {
					t.Errorf("hash should be 66 chars, got %d", len(row.NewTipHash))
				}
			},
		},
		{
			name:      "propagation",
			event:     domain.Propagation{Time: at, MessageType: domain.MessageTransactionHash, Percentile: 80, TimeInterval: 1234 * time.Millisecond},
			wantTable: "propagation_percentile",
			check: func(t *testing.T, arg any) {
				row := arg.(propagationRow)
				if row.MessageType != "transaction_hash" || row.Percentile != 80 || row.ElapsedMS != 1234 {
					t.Errorf("unexpected row %+v", row)
				}
			},
		},
		{
			name:      "high latency",
			event:     domain.HighLatency{Time: at, PeerAddress: "1.2.3.4:30303", TimeInterval: 8500 * time.Millisecond},
			wantTable: "high_latency",
			check: func(t *testing.T, arg any) {
				row := arg.(highLatencyRow)
				if row.PeerAddress != "1.2.3.4:30303" || row.ElapsedMS != 8500 {
					t.Errorf("unexpected row %+v", row)
				}
			},
		},
		{
			name:      "peers total",
			event:     domain.PeerCount{Time: at, PeersTotal: 12},
			wantTable: "peers_total",
			check: func(t *testing.T, arg any) {
				row := arg.(peersTotalRow)
				if row.PeersTotal != 12 {
					t.Errorf("unexpected row %+v", row)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeExecer{}
			w := NewWriter(db, "mirana")

			if err := w.Write(context.Background(), tt.event); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if len(db.calls) != 1 {
				t.Fatalf("expected 1 exec, got %d", len(db.calls))
			}

			call := db.calls[0]
			if !strings.Contains(call.query, "INSERT INTO "+tt.wantTable+"\n") {
				t.Errorf("expected insert into %s, got %q", tt.wantTable, call.query)
			}
			tt.check(t, call.arg)
		})
	}
}

func TestWriter_RowsAreStampedWithNetworkAndUTC(t *testing.T) {
	db := &fakeExecer{}
	w := NewWriter(db, "mirana")
	at := time.Date(2024, 3, 1, 13, 0, 0, 0, time.FixedZone("X", 3600))

	_ = w.Write(context.Background(), domain.PeerCount{Time: at, PeersTotal: 1})

	row := db.calls[0].arg.(peersTotalRow)
	if row.Network != "mirana" {
		t.Errorf("expected network mirana, got %q", row.Network)
	}
	if row.Time.Location() != time.UTC || row.Time.Hour() != 12 {
		t.Errorf("expected UTC time 12:00, got %s", row.Time)
	}
}

func TestWriter_ExecFailure(t *testing.T) {
	cause := errors.New("connection refused")
	w := NewWriter(&fakeExecer{err: cause}, "mirana")

	err := w.Write(context.Background(), domain.PeerCount{Time: time.Now(), PeersTotal: 1})
	if !apperror.IsCode(err, apperror.CodeReportStoreFailed) {
		t.Fatalf("expected %s, got %v", apperror.CodeReportStoreFailed, err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	data, err := migrations.ReadFile("migrations/00001_init.sql")
	if err != nil {
		t.Fatalf("read embedded migration: %v", err)
	}
	for _, table := range []string{"reorganization", "propagation_percentile", "high_latency", "peers_total"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("migration does not create %s", table)
		}
	}
}
