// Package postgres stores metric events in PostgreSQL, one table per event
// kind, every row stamped with the network name.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fd1az/chainprobe/business/report/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
)

const (
	insertReorganization = `INSERT INTO reorganization
		(network, time, attached_length, old_tip_number, new_tip_number, ancestor_number, old_tip_hash, new_tip_hash, ancestor_hash)
		VALUES (:network, :time, :attached_length, :old_tip_number, :new_tip_number, :ancestor_number, :old_tip_hash, :new_tip_hash, :ancestor_hash)`

	insertPropagation = `INSERT INTO propagation_percentile
		(network, time, message_type, percentile, elapsed_ms)
		VALUES (:network, :time, :message_type, :percentile, :elapsed_ms)`

	insertHighLatency = `INSERT INTO high_latency
		(network, time, peer_address, elapsed_ms)
		VALUES (:network, :time, :peer_address, :elapsed_ms)`

	insertPeersTotal = `INSERT INTO peers_total
		(network, time, peers_total)
		VALUES (:network, :time, :peers_total)`
)

// Execer is the subset of *sqlx.DB the writer needs.
type Execer interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

type reorganizationRow struct {
	Network        string    `db:"network"`
	Time           time.Time `db:"time"`
	AttachedLength int64     `db:"attached_length"`
	OldTipNumber   int64     `db:"old_tip_number"`
	NewTipNumber   int64     `db:"new_tip_number"`
	AncestorNumber int64     `db:"ancestor_number"`
	OldTipHash     string    `db:"old_tip_hash"`
	NewTipHash     string    `db:"new_tip_hash"`
	AncestorHash   string    `db:"ancestor_hash"`
}

type propagationRow struct {
	Network     string    `db:"network"`
	Time        time.Time `db:"time"`
	MessageType string    `db:"message_type"`
	Percentile  int       `db:"percentile"`
	ElapsedMS   int64     `db:"elapsed_ms"`
}

type highLatencyRow struct {
	Network     string    `db:"network"`
	Time        time.Time `db:"time"`
	PeerAddress string    `db:"peer_address"`
	ElapsedMS   int64     `db:"elapsed_ms"`
}

type peersTotalRow struct {
	Network    string    `db:"network"`
	Time       time.Time `db:"time"`
	PeersTotal int       `db:"peers_total"`
}

// Writer inserts events as rows.
type Writer struct {
	db      Execer
	network string
}

// NewWriter creates a writer over db.
func NewWriter(db Execer, network string) *Writer {
	return &Writer{db: db, network: network}
}

// Name implements app.Writer.
func (w *Writer) Name() string { return "postgres" }

// Write implements app.Writer.
func (w *Writer) Write(ctx context.Context, ev domain.Event) error {
	query, row := w.row(ev)
	if query == "" {
		return apperror.New(apperror.CodeInternalError,
			apperror.WithContextf("postgres: unsupported event %T", ev))
	}

	if _, err := w.db.NamedExecContext(ctx, query, row); err != nil {
		return apperror.New(apperror.CodeReportStoreFailed,
			apperror.WithContext(string(ev.Kind())),
			apperror.WithCause(err))
	}
	return nil
}

func (w *Writer) row(ev domain.Event) (string, any) {
	at := ev.OccurredAt().UTC()

	switch e := ev.(type) {
	case domain.Reorganization:
		return insertReorganization, reorganizationRow{
			Network:        w.network,
			Time:           at,
			AttachedLength: int64(e.AttachedLength),
			OldTipNumber:   int64(e.OldTip.Number),
			NewTipNumber:   int64(e.NewTip.Number),
			AncestorNumber: int64(e.Ancestor.Number),
			OldTipHash:     e.OldTip.Hash.Hex(),
			NewTipHash:     e.NewTip.Hash.Hex(),
			AncestorHash:   e.Ancestor.Hash.Hex(),
		}
	case domain.Propagation:
		return insertPropagation, propagationRow{
			Network:     w.network,
			Time:        at,
			MessageType: string(e.MessageType),
			Percentile:  e.Percentile,
			ElapsedMS:   e.TimeInterval.Milliseconds(),
		}
	case domain.HighLatency:
		return insertHighLatency, highLatencyRow{
			Network:     w.network,
			Time:        at,
			PeerAddress: e.PeerAddress,
			ElapsedMS:   e.TimeInterval.Milliseconds(),
		}
	case domain.PeerCount:
		return insertPeersTotal, peersTotalRow{
			Network:    w.network,
			Time:       at,
			PeersTotal: e.PeersTotal,
		}
	default:
		return "", nil
	}
}

// Config holds connection settings.
type Config struct {
	DSN          string
	MaxOpenConns int
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, apperror.New(apperror.CodeReportStoreFailed,
			apperror.WithContext("open"), apperror.WithCause(err))
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, apperror.New(apperror.CodeReportStoreFailed,
			apperror.WithContext("ping"), apperror.WithCause(err))
	}
	return db, nil
}

// HealthCheck returns a health check function for db.
func HealthCheck(db *sqlx.DB) func(ctx context.Context) (bool, string) {
	return func(ctx context.Context) (bool, string) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var one int
		if err := db.GetContext(ctx, &one, "SELECT 1"); err != nil {
			return false, fmt.Sprintf("query failed: %v", err)
		}
		return true, "connected"
	}
}
