package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	"SigPull/pkg/cache"
	pkgch "SigPull/pkg/clickhouse"
	applogger "SigPull/pkg/logger"
)

// conn is the part of *sql.DB the stores use.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CHSignalStore keeps signals in ClickHouse. ClickHouse has no conditional
// update, so SaveResult first claims the signal id in the shared cache
// (SETNX on redis) and only the claimant appends the result row.
type CHSignalStore struct {
	db     conn
	claims cache.Service
	dbName string
	l      *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client, claims cache.Service, lgr *applogger.Logger) *CHSignalStore {
	return newCHSignalStore(ch.DB(), ch.Database(), claims, lgr)
}

func newCHSignalStore(db conn, dbName string, claims cache.Service, lgr *applogger.Logger) *CHSignalStore {
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &CHSignalStore{db: db, claims: claims, dbName: dbName, l: lgr.With("signal_store")}
}

func (s *CHSignalStore) table(name string) string {
	return s.dbName + "." + name
}

func (s *CHSignalStore) Insert(ctx context.Context, sig models.Signal) error {
	fv, err := json.Marshal(sig.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, symbol, market, direction, entry, confidence, ts, expiry, features, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table(signalsTable))
	_, err = s.db.ExecContext(ctx, q,
		sig.ID,
		sig.Symbol,
		sig.Market,
		string(sig.Direction),
		sig.Entry,
		uint8(sig.Confidence),
		sig.Time.UTC(),
		sig.Expiry.UTC(),
		string(fv),
		sig.Notes,
	)
	if err != nil {
		s.l.Error("clickhouse insert signal error", applogger.String("id", sig.ID), applogger.Error(err))
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// ListRecent joins the newest n signals with their result rows. A missing
// result row comes back as an empty string, which is the pending result.
func (s *CHSignalStore) ListRecent(ctx context.Context, n int) ([]models.Signal, error) {
	const qtpl = `
        SELECT s.id, s.symbol, s.market, s.direction, s.entry, s.confidence,
               s.ts, s.expiry, s.features, s.notes, r.result, r.final_price
        FROM (SELECT * FROM %s ORDER BY ts DESC LIMIT ?) AS s
        LEFT JOIN (
            SELECT id, argMin(result, resolved_at) AS result, argMin(final_price, resolved_at) AS final_price
            FROM %s GROUP BY id
        ) AS r ON s.id = r.id
        ORDER BY s.ts DESC
    `
	q := fmt.Sprintf(qtpl, s.table(signalsTable), s.table(resultsTable))
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		s.l.Error("clickhouse list signals query error", applogger.Error(err))
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Signal, 0, n)
	for rows.Next() {
		var (
			r          signalRow
			confidence uint8
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Market, &r.Direction, &r.Entry, &confidence,
			&r.Time, &r.Expiry, &r.Features, &r.Notes, &r.Result, &r.FinalPrice); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		r.Confidence = int(confidence)
		sig, err := r.signal()
		if err != nil {
			s.l.Warn("skipping malformed signal row", applogger.String("id", r.ID), applogger.Error(err))
			continue
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// SaveResult claims id and appends the result row. A lost claim returns
// ErrAlreadyResolved. When the insert fails the claim is released so a later
// cycle can retry.
func (s *CHSignalStore) SaveResult(ctx context.Context, id string, u models.ResultUpdate) error {
	if !u.Result.Terminal() {
		return fmt.Errorf("save result %s: result must be terminal", id)
	}
	claim := cache.Key("signal", "result", id)
	ok, err := s.claims.TryLock(ctx, claim, 0)
	if err != nil {
		return fmt.Errorf("claim result %s: %w", id, err)
	}
	if !ok {
		return domrepo.ErrAlreadyResolved
	}

	q := fmt.Sprintf("INSERT INTO %s (id, result, final_price, resolved_at) VALUES (?, ?, ?, ?)", s.table(resultsTable))
	if _, err := s.db.ExecContext(ctx, q, id, string(u.Result), u.FinalPrice, u.ResolvedAt.UTC()); err != nil {
		if uerr := s.claims.Unlock(ctx, claim); uerr != nil {
			s.l.Error("release result claim failed", applogger.String("id", id), applogger.Error(uerr))
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// signalRow is the flat column layout of a joined signal.
type signalRow struct {
	ID         string
	Symbol     string
	Market     string
	Direction  string
	Entry      string
	Confidence int
	Time       time.Time
	Expiry     time.Time
	Features   string
	Notes      string
	Result     string
	FinalPrice float64
}

var errBadDirection = errors.New("bad direction")

func (r signalRow) signal() (models.Signal, error) {
	dir := models.Direction(r.Direction)
	if dir != models.DirectionCall && dir != models.DirectionPut {
		return models.Signal{}, fmt.Errorf("%w: %q", errBadDirection, r.Direction)
	}
	var fv models.FeatureVector
	if r.Features != "" {
		if err := json.Unmarshal([]byte(r.Features), &fv); err != nil {
			return models.Signal{}, fmt.Errorf("decode features: %w", err)
		}
	}
	expiry := r.Expiry.UTC()
	if expiry.Unix() <= 0 {
		expiry = time.Time{}
	}
	return models.Signal{
		ID:         r.ID,
		Symbol:     r.Symbol,
		Market:     r.Market,
		Direction:  dir,
		Entry:      r.Entry,
		Confidence: r.Confidence,
		Time:       r.Time.UTC(),
		Expiry:     expiry,
		Features:   fv,
		Notes:      r.Notes,
		Result:     models.Result(r.Result),
		FinalPrice: r.FinalPrice,
	}, nil
}

var _ domrepo.SignalStore = (*CHSignalStore)(nil)
