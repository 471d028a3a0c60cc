package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chainprobe/business/report/domain"
)

func TestWriter_Write(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event domain.Event
		want  []string
	}{
		{
			name: "reorganization",
			event: domain.Reorganization{
				Time:           at,
				AttachedLength: 10,
				OldTip:         domain.BlockRef{Number: 100, Hash: common.HexToHash("0xaa")},
				NewTip:         domain.BlockRef{Number: 100, Hash: common.HexToHash("0xbb")},
				Ancestor:       domain.BlockRef{Number: 90, Hash: common.HexToHash("0xcc")},
			},
			want: []string{"2024-03-01T12:00:00Z", "mainnet", "reorganization", "attached=10", "old=#100", "ancestor=#90"},
		},
		{
			name:  "propagation",
			event: domain.Propagation{Time: at, MessageType: domain.MessageCompactBlock, Percentile: 95, TimeInterval: 1500 * time.Millisecond},
			want:  []string{"propagation", "compact_block p95 after 1.5s"},
		},
		{
			name:  "high latency",
			event: domain.HighLatency{Time: at, PeerAddress: "10.0.0.1:8115", TimeInterval: 8500 * time.Millisecond},
			want:  []string{"high_latency", "peer=10.0.0.1:8115 after 8.5s"},
		},
		{
			name:  "peer count",
			event: domain.PeerCount{Time: at, PeersTotal: 7},
			want:  []string{"peer_count", "peers=7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, "mainnet")

			if err := w.Write(context.Background(), tt.event); err != nil {
				t.Fatalf("Write: %v", err)
			}

			line := buf.String()
			if !strings.HasSuffix(line, "\n") {
				t.Errorf("expected trailing newline, got %q", line)
			}
			for _, want := range tt.want {
				if !strings.Contains(line, want) {
					t.Errorf("expected %q in %q", want, line)
				}
			}
		})
	}
}

func TestShort(t *testing.T) {
	if got := short("0x1234"); got != "0x1234" {
		t.Errorf("short hash changed: %q", got)
	}
	full := common.HexToHash("0xdeadbeef").Hex()
	if got := short(full); got != "0x000000..beef" {
		t.Errorf("unexpected abbreviation %q", got)
	}
}
