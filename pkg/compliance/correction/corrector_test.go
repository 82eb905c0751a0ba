package correction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
	"github.com/Mindburn-Labs/doctrine/pkg/compliance/rules"
)

var at = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func violation(t *testing.T, ruleID string, e catalog.Entry) rules.Violation {
	t.Helper()
	for _, r := range rules.Builtin() {
		if r.ID == ruleID {
			return r.Violation(rules.Finding{Entry: e, Detail: "test"}, at)
		}
	}
	t.Fatalf("unknown rule %s", ruleID)
	return rules.Violation{}
}

type failingWriter struct {
	*catalog.Memory
	failKey string
}

func (f failingWriter) SetAnnotation(ctx context.Context, e catalog.Entry, text string) error {
	if e.Key() == f.failKey {
		return errors.New("permission denied")
	}
	return f.Memory.SetAnnotation(ctx, e, text)
}

func TestSynthesize_NegativeOrdinal(t *testing.T) {
	col := catalog.Entry{Name: "x", Kind: catalog.KindColumn, Parent: "t", Ordinal: -1}
	text := Synthesize(col, "")
	assert.Equal(t, "[0000] X (unspecified, not null)", text)
	assert.True(t, Satisfies(rules.ColumnAnnotationID, text))
}

func TestCorrect_NegativeOrdinalIdempotent(t *testing.T) {
	col := catalog.Entry{Name: "x", Kind: catalog.KindColumn, Parent: "t", Ordinal: -1}
	mem := catalog.NewMemory(catalog.Entry{Name: "t", Kind: catalog.KindTable}, col)
	c := NewCorrector(mem)
	v := violation(t, rules.ColumnAnnotationID, col)

	assert.Equal(t, StatusCorrected, c.Correct(context.Background(), v).Status)
	assert.Equal(t, StatusAlreadyCompliant, c.Correct(context.Background(), v).Status)
	assert.Equal(t, 1, mem.Writes())
}

// Many workers against one SQLite file must not fail with SQLITE_BUSY.
func TestCorrectAll_SQLiteWorkers(t *testing.T) {
	s, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	for i := range 10 {
		cols := make([]string, 0, 11)
		for j := range 11 {
			cols = append(cols, fmt.Sprintf("c%d TEXT", j))
		}
		_, err := s.DB().Exec(fmt.Sprintf("CREATE TABLE t%d (%s)", i, strings.Join(cols, ", ")))
		require.NoError(t, err)
	}

	ctx := context.Background()
	entries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 120)

	var vs []rules.Violation
	for _, e := range entries {
		id := rules.ColumnAnnotationID
		if e.Kind == catalog.KindTable {
			id = rules.TableAnnotationID
		}
		vs = append(vs, violation(t, id, e))
	}

	c := NewCorrector(s, WithWorkers(8))
	for _, r := range c.CorrectAll(ctx, vs) {
		require.NoError(t, r.Err)
		assert.Equal(t, StatusCorrected, r.Status, r.EntryKey)
	}
	for _, r := range c.CorrectAll(ctx, vs) {
		assert.Equal(t, StatusAlreadyCompliant, r.Status, r.EntryKey)
	}
}

func TestSynthesize(t *testing.T) {
	col := catalog.Entry{Name: "user_email", Kind: catalog.KindColumn, Parent: "users", Ordinal: 7, DataType: "text", Nullable: true}
	assert.Equal(t, "[0007] User Email (text, nullable)", Synthesize(col, ""))
	assert.Equal(t, "[0007] User Email (text, nullable) | primary contact", Synthesize(col, "  primary contact "))

	col.Nullable = false
	col.DataType = ""
	assert.Equal(t, "[0007] User Email (unspecified, not null)", Synthesize(col, ""))

	tbl := catalog.Entry{Name: "orderItems", Kind: catalog.KindTable}
	assert.Equal(t, "Doctrine-governed table: Order Items", Synthesize(tbl, ""))
	assert.Equal(t, Synthesize(tbl, "x"), Synthesize(tbl, "x"))
}

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"user_email":  "User Email",
		"orderID":     "Order Id",
		"created-at":  "Created At",
		"SHOUTY_NAME": "Shouty Name",
		"___":         "___",
	}
	for in, want := range cases {
		assert.Equal(t, want, Humanize(in), in)
	}
}

func TestSatisfies(t *testing.T) {
	assert.True(t, Satisfies(rules.TableAnnotationID, "Doctrine-governed table: Users"))
	assert.False(t, Satisfies(rules.TableAnnotationID, "users"))
	assert.True(t, Satisfies(rules.ColumnAnnotationID, "[0001] Id"))
	assert.False(t, Satisfies(rules.ColumnAnnotationID, "  "))
	assert.False(t, Satisfies(rules.RequiredFieldsID, "anything"))
}

// A single table with no annotation is corrected once; correcting the same
// violation again is a no-op.
func TestCorrect_TableIdempotent(t *testing.T) {
	ctx := context.Background()
	users := catalog.Entry{Name: "users", Kind: catalog.KindTable}
	mem := catalog.NewMemory(users)
	c := NewCorrector(mem)
	v := violation(t, rules.TableAnnotationID, users)

	first := c.Correct(ctx, v)
	require.Equal(t, StatusCorrected, first.Status)
	assert.Equal(t, "Doctrine-governed table: Users", first.Annotation)

	second := c.Correct(ctx, v)
	assert.Equal(t, StatusAlreadyCompliant, second.Status)
	assert.Equal(t, 1, mem.Writes())

	text, ok, err := mem.GetAnnotation(ctx, users)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Doctrine-governed table: Users", text)
}

func TestCorrect_ManualReview(t *testing.T) {
	tbl := catalog.Entry{Name: "steps", Kind: catalog.KindTable}
	mem := catalog.NewMemory(tbl)
	res := NewCorrector(mem).Correct(context.Background(), violation(t, rules.RequiredFieldsID, tbl))

	assert.Equal(t, StatusManualReview, res.Status)
	assert.Equal(t, 0, mem.Writes())
}

func TestCorrect_FailureIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := catalog.Entry{Name: "a", Kind: catalog.KindColumn, Parent: "t", Ordinal: 1, DataType: "int"}
	b := catalog.Entry{Name: "b", Kind: catalog.KindColumn, Parent: "t", Ordinal: 2, DataType: "int"}
	mem := catalog.NewMemory(a, b)
	c := NewCorrector(failingWriter{Memory: mem, failKey: "t.a"})

	results := c.CorrectAll(context.Background(), []rules.Violation{
		violation(t, rules.ColumnAnnotationID, a),
		violation(t, rules.ColumnAnnotationID, b),
	})
	require.Len(t, results, 2)

	assert.Equal(t, StatusFailed, results[0].Status)
	var cerr *CorrectionError
	require.ErrorAs(t, results[0].Err, &cerr)
	assert.Equal(t, "t.a", cerr.EntryKey)
	assert.True(t, IsCorrectionError(results[0].Err))
	assert.Contains(t, results[0].Error, "permission denied")

	assert.Equal(t, StatusCorrected, results[1].Status)
	assert.Equal(t, "[0002] B (int, not null)", results[1].Annotation)
}

func TestCorrect_ReadFailure(t *testing.T) {
	ghost := catalog.Entry{Name: "ghost", Kind: catalog.KindTable}
	res := NewCorrector(catalog.NewMemory()).Correct(context.Background(), violation(t, rules.TableAnnotationID, ghost))

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, catalog.ErrEntryNotFound)
}

func TestCorrectAll_SameEntryWrittenOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	users := catalog.Entry{Name: "users", Kind: catalog.KindTable}
	mem := catalog.NewMemory(users)
	c := NewCorrector(mem, WithWorkers(8))

	vs := make([]rules.Violation, 20)
	for i := range vs {
		vs[i] = violation(t, rules.TableAnnotationID, users)
	}
	results := c.CorrectAll(context.Background(), vs)

	corrected := 0
	for _, r := range results {
		if r.Status == StatusCorrected {
			corrected++
		} else {
			assert.Equal(t, StatusAlreadyCompliant, r.Status)
		}
	}
	assert.Equal(t, 1, corrected)
	assert.Equal(t, 1, mem.Writes())
}

func TestKeyedMutex(t *testing.T) {
	defer goleak.VerifyNone(t)

	k := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "same")
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.held())
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, k.held())
}

func TestKeyedMutex_DisjointKeys(t *testing.T) {
	k := NewKeyedMutex()
	ua, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer ua()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ub, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	ub()
}
