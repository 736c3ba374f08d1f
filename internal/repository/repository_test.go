package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	"SigPull/pkg/cache"
)

func sig(id string, at time.Time) models.Signal {
	return models.Signal{ID: id, Symbol: "BTCUSDT", Direction: models.DirectionCall, Entry: "1–2", Time: at, Expiry: at.Add(time.Minute)}
}

func TestMemorySignalStore_ListRecentNewestFirst(t *testing.T) {
	s := NewMemorySignalStore(3)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Insert(ctx, sig(id, base.Add(time.Duration(i)*time.Second))))
	}

	rows, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"d", "c", "b"}, ids)

	rows, _ = s.ListRecent(ctx, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, "d", rows[0].ID)

	require.ErrorIs(t, s.SaveResult(ctx, "a", models.ResultUpdate{Result: models.ResultWin}), domrepo.ErrSignalNotFound)
}

func TestMemorySignalStore_SaveResultOnce(t *testing.T) {
	s := NewMemorySignalStore(10)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sig("a", time.Now())))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := models.ResultWin
			if i%2 == 1 {
				res = models.ResultLoss
			}
			err := s.SaveResult(ctx, "a", models.ResultUpdate{Result: res, FinalPrice: float64(i)})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domrepo.ErrAlreadyResolved)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	rows, _ := s.ListRecent(ctx, 1)
	assert.True(t, rows[0].Result.Terminal())
}

func TestFileLearnerStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "learner.json")
	s := NewFileLearnerStore(path)
	ctx := context.Background()

	_, found, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	st := models.DefaultLearnerState(0.05)
	st.Weights[models.FeatureBOS] = 0.2
	st.Stats = models.LearnerStats{Wins: 3, Losses: 1}
	require.NoError(t, s.Save(ctx, st))

	got, found, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, st, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileLearnerStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learner.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, _, err := NewFileLearnerStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestCacheLearnerStore_RoundTrip(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	s := NewCacheLearnerStore(c, "learner:state")
	ctx := context.Background()

	_, found, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	st := models.DefaultLearnerState(0.05)
	st.Weights[models.WeightManipulation] = -0.4
	require.NoError(t, s.Save(ctx, st))

	got, found, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, st, got)
}

type fakeConn struct {
	mu      sync.Mutex
	queries []string
	args    [][]any
	err     error
}

func (c *fakeConn) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.queries = append(c.queries, q)
	c.args = append(c.args, args)
	return nil, nil
}

func (c *fakeConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func TestCHSignalStore_SaveResultClaimsOnce(t *testing.T) {
	db := &fakeConn{}
	claims := cache.NewMemoryCache()
	defer claims.Close()
	s := newCHSignalStore(db, "sigpull", claims, nil)
	ctx := context.Background()
	u := models.ResultUpdate{Result: models.ResultWin, FinalPrice: 101, ResolvedAt: time.Unix(1_700_000_000, 0)}

	require.NoError(t, s.SaveResult(ctx, "a", u))
	require.ErrorIs(t, s.SaveResult(ctx, "a", u), domrepo.ErrAlreadyResolved)

	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "INSERT INTO sigpull.signal_results")
	assert.Equal(t, "a", db.args[0][0])
	assert.Equal(t, "WIN", db.args[0][1])

	require.Error(t, s.SaveResult(ctx, "b", models.ResultUpdate{}))
}

func TestCHSignalStore_FailedInsertReleasesClaim(t *testing.T) {
	db := &fakeConn{err: errors.New("down")}
	claims := cache.NewMemoryCache()
	defer claims.Close()
	s := newCHSignalStore(db, "sigpull", claims, nil)
	ctx := context.Background()
	u := models.ResultUpdate{Result: models.ResultLoss}

	require.Error(t, s.SaveResult(ctx, "a", u))
	db.err = nil
	require.NoError(t, s.SaveResult(ctx, "a", u))
}

func TestCHSignalStore_Insert(t *testing.T) {
	db := &fakeConn{}
	s := newCHSignalStore(db, "sigpull", cache.NewMemoryCache(), nil)
	in := sig("a", time.Unix(1_700_000_000, 0))
	in.Features = models.FeatureVector{BOS: true}

	require.NoError(t, s.Insert(context.Background(), in))
	require.Len(t, db.args, 1)
	assert.Equal(t, "CALL", db.args[0][3])
	assert.Contains(t, db.args[0][8], `"bos":true`)
}

func TestSignalRow(t *testing.T) {
	r := signalRow{
		ID: "a", Direction: "PUT", Entry: "1–2", Time: time.Unix(10, 0),
		Features: `{"fvg":true}`, Result: "",
	}
	got, err := r.signal()
	require.NoError(t, err)
	assert.True(t, got.Features.FVG)
	assert.True(t, got.Expiry.IsZero())
	assert.False(t, got.Pending(), "no expiry means nothing to resolve")

	r.Expiry = time.Unix(70, 0)
	r.Result = "LOSS"
	got, err = r.signal()
	require.NoError(t, err)
	assert.Equal(t, models.ResultLoss, got.Result)

	r.Direction = "SIDEWAYS"
	_, err = r.signal()
	require.ErrorIs(t, err, errBadDirection)
}

func TestTickInsert(t *testing.T) {
	q, args := tickInsert("db.ticks_raw", []models.Tick{
		{Symbol: "BTCUSDT", Price: 1, Qty: 2, Time: 10, Source: "binance"},
		{Symbol: "", Time: 11},
		{Symbol: "ETHUSDT", Price: 3, Qty: 4, Time: 12},
	})
	assert.True(t, strings.HasPrefix(q, "INSERT INTO db.ticks_raw"))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?)"))
	assert.Len(t, args, 10)

	q, _ = tickInsert("t", nil)
	assert.Empty(t, q)
}

func TestClickHouseSchema(t *testing.T) {
	stmts := ClickHouseSchema("sigpull")
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[2], "ReplacingMergeTree")
	for _, s := range stmts {
		assert.Contains(t, s, "sigpull")
	}
}
