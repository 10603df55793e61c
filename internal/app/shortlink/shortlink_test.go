package shortlink_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"filedrop.local/internal/app/shortlink"
	"filedrop.local/internal/app/shortlink/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// flakyStore 包一层 Store，用来注入存储故障。
type flakyStore struct {
	shortlink.Store
	findErr      error
	incrementErr error
	creates      atomic.Int32
	increments   atomic.Int32
}

func (f *flakyStore) Create(ctx context.Context, longURL string, expiresAt *time.Time) (shortlink.ShortLink, error) {
	f.creates.Add(1)
	return f.Store.Create(ctx, longURL, expiresAt)
}

func (f *flakyStore) FindByCode(ctx context.Context, code string) (shortlink.ShortLink, error) {
	if f.findErr != nil {
		return shortlink.ShortLink{}, f.findErr
	}
	return f.Store.FindByCode(ctx, code)
}

func (f *flakyStore) IncrementVisits(ctx context.Context, id string) error {
	f.increments.Add(1)
	if f.incrementErr != nil {
		return f.incrementErr
	}
	return f.Store.IncrementVisits(ctx, id)
}

func fixedCodes(codes ...string) shortlink.CodeGenerator {
	var mu sync.Mutex
	i := 0
	return shortlink.CodeGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c
	})
}

func TestRandomCode_LengthAndAlphabet(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code := shortlink.RandomCode{}.NewCode()
		require.Len(t, code, shortlink.CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q in %q", r, code)
		}
		seen[code] = struct{}{}
	}
	// 1000 次里出现重复几乎不可能，出现就说明随机源有问题
	assert.Len(t, seen, 1000)
}

func TestShortenResolveScenario(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(memstore.WithCodeGenerator(fixedCodes("ab12CD34")), memstore.WithClock(func() time.Time { return t0 }))
	shortener := shortlink.NewShortener(store, "https://s.example")
	resolver := shortlink.NewResolver(store)
	accounting := shortlink.NewAccounting(store)

	created, err := shortener.Shorten(ctx, "https://store.example/uploads/f1-a.png", t0)
	require.NoError(t, err)
	assert.Equal(t, "ab12CD34", created.Link.Code)
	assert.Equal(t, "https://s.example/s/ab12CD34", created.ShortURL)
	require.NotNil(t, created.Link.ExpiresAt)
	assert.Equal(t, t0.Add(7*24*time.Hour), *created.Link.ExpiresAt)
	assert.Zero(t, created.Link.Visits)

	link, err := resolver.Resolve(ctx, "ab12CD34", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "https://store.example/uploads/f1-a.png", link.LongURL)

	visits, err := accounting.Visits(ctx, "ab12CD34")
	require.NoError(t, err)
	assert.EqualValues(t, 1, visits)

	// 模拟过期：过期后跳转失败，计数冻结
	past := t0.Add(-time.Hour)
	require.True(t, store.SetExpiresAt(created.Link.ID, &past))

	_, err = resolver.Resolve(ctx, "ab12CD34", t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, shortlink.ErrNotFound)
	assert.ErrorIs(t, err, shortlink.ErrExpired)

	visits, err = accounting.Visits(ctx, "ab12CD34")
	require.NoError(t, err)
	assert.EqualValues(t, 1, visits)
}

func TestShorten_ValidationNeverTouchesStore(t *testing.T) {
	store := &flakyStore{Store: memstore.New()}
	shortener := shortlink.NewShortener(store, "")

	for _, in := range []string{"", "   ", "example.com", "ftp://example.com/x", "https://"} {
		_, err := shortener.Shorten(context.Background(), in, t0)
		assert.ErrorIs(t, err, shortlink.ErrValidation, "input %q", in)

		var verr *shortlink.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "url", verr.Field)
	}
	assert.Zero(t, store.creates.Load())
}

func TestShorten_NotIdempotent(t *testing.T) {
	store := memstore.New()
	shortener := shortlink.NewShortener(store, "")

	a, err := shortener.Shorten(context.Background(), "https://example.com/same", t0)
	require.NoError(t, err)
	b, err := shortener.Shorten(context.Background(), "https://example.com/same", t0)
	require.NoError(t, err)

	assert.NotEqual(t, a.Link.ID, b.Link.ID)
	assert.NotEqual(t, a.Link.Code, b.Link.Code)
	assert.Empty(t, a.ShortURL, "no base url configured")
}

func TestResolveAndAccounting_UnknownCode(t *testing.T) {
	store := memstore.New()
	resolver := shortlink.NewResolver(store)
	accounting := shortlink.NewAccounting(store)

	for _, in := range []string{"nope1234", "", strings.Repeat("x", 200)} {
		_, err := resolver.Resolve(context.Background(), in, t0)
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
		assert.NotErrorIs(t, err, shortlink.ErrExpired)

		_, err = accounting.Visits(context.Background(), in)
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
	}
}

func TestResolve_ExpiryIsStrict(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	resolver := shortlink.NewResolver(store)

	exp := t0
	link, err := store.Create(ctx, "https://example.com/edge", &exp)
	require.NoError(t, err)

	_, err = resolver.Resolve(ctx, link.Code, t0)
	require.NoError(t, err, "now == expiresAt is still valid")

	_, err = resolver.Resolve(ctx, link.Code, t0.Add(time.Nanosecond))
	assert.ErrorIs(t, err, shortlink.ErrExpired)
}

func TestResolve_NilExpiryNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	link, err := store.Create(ctx, "https://example.com/forever", nil)
	require.NoError(t, err)

	got, err := shortlink.NewResolver(store).Resolve(ctx, link.Code, t0.AddDate(100, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, link.LongURL, got.LongURL)
}

func TestResolve_IDFallback(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(memstore.WithCodeGenerator(fixedCodes("Xy9pQr2L")))
	resolver := shortlink.NewResolver(store)

	link, err := store.Create(ctx, "https://example.com/by-id", nil)
	require.NoError(t, err)

	byCode, err := resolver.Resolve(ctx, "Xy9pQr2L", t0)
	require.NoError(t, err)
	byID, err := resolver.Resolve(ctx, link.ID, t0)
	require.NoError(t, err)

	assert.Equal(t, byCode.LongURL, byID.LongURL)
	assert.Equal(t, link.ID, byID.ID)

	visits, err := shortlink.NewAccounting(store).Visits(ctx, link.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, visits)
}

func TestResolve_CodeMatchBeatsIDMatch(t *testing.T) {
	ctx := context.Background()
	var first shortlink.ShortLink
	// 第二条记录的短码等于第一条的 ID
	gen := shortlink.CodeGeneratorFunc(func() string {
		if first.ID == "" {
			return "aaaa1111"
		}
		return first.ID
	})
	store := memstore.New(memstore.WithCodeGenerator(gen))

	var err error
	first, err = store.Create(ctx, "https://example.com/first", nil)
	require.NoError(t, err)
	second, err := store.Create(ctx, "https://example.com/second", nil)
	require.NoError(t, err)

	got, err := shortlink.NewResolver(store).Resolve(ctx, first.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "https://example.com/second", got.LongURL)
}

func TestResolve_ConcurrentVisitsAreExact(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	resolver := shortlink.NewResolver(store)
	accounting := shortlink.NewAccounting(store)

	exp := t0.Add(time.Hour)
	link, err := store.Create(ctx, "https://example.com/hot", &exp)
	require.NoError(t, err)

	before, err := accounting.Visits(ctx, link.Code)
	require.NoError(t, err)

	const k = 256
	var wg sync.WaitGroup
	var ok atomic.Int64
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := resolver.Resolve(ctx, link.Code, t0); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	after, err := accounting.Visits(ctx, link.Code)
	require.NoError(t, err)
	assert.EqualValues(t, k, ok.Load())
	assert.Equal(t, before+ok.Load(), after)
}

func TestResolve_IncrementFailureStillRedirects(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	store := &flakyStore{Store: inner, incrementErr: shortlink.NewPersistenceError("increment visits", errors.New("connection reset"))}

	var reported []*shortlink.AccountingError
	resolver := shortlink.NewResolver(store, shortlink.WithAccountingErrorHook(func(_ context.Context, err *shortlink.AccountingError) {
		reported = append(reported, err)
	}))

	link, err := inner.Create(ctx, "https://example.com/best-effort", nil)
	require.NoError(t, err)

	got, err := resolver.Resolve(ctx, link.Code, t0)
	require.NoError(t, err)
	assert.Equal(t, link.LongURL, got.LongURL)

	require.Len(t, reported, 1)
	assert.Equal(t, link.ID, reported[0].ID)
	assert.ErrorIs(t, reported[0], shortlink.ErrPersistence)
	assert.EqualValues(t, 1, store.increments.Load(), "increment is attempted exactly once")

	visits, err := shortlink.NewAccounting(inner).Visits(ctx, link.Code)
	require.NoError(t, err)
	assert.Zero(t, visits)
}

func TestResolve_StorageErrorIsNotNotFound(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	store := &flakyStore{Store: memstore.New(), findErr: shortlink.NewPersistenceError("find by code", cause)}

	_, err := shortlink.NewResolver(store).Resolve(context.Background(), "whatever", t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, shortlink.ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, shortlink.ErrNotFound)
	assert.Zero(t, store.increments.Load())

	_, err = shortlink.NewAccounting(store).Visits(context.Background(), "whatever")
	assert.ErrorIs(t, err, shortlink.ErrPersistence)
}

func TestAccounting_IsReadOnly(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	link, err := store.Create(ctx, "https://example.com/inspect", nil)
	require.NoError(t, err)
	_, err = shortlink.NewResolver(store).Resolve(ctx, link.Code, t0)
	require.NoError(t, err)

	accounting := shortlink.NewAccounting(store)
	for i := 0; i < 5; i++ {
		visits, err := accounting.Visits(ctx, link.Code)
		require.NoError(t, err)
		assert.EqualValues(t, 1, visits)
	}
}

func TestShortURL(t *testing.T) {
	assert.Equal(t, "https://s.example/s/abc", shortlink.ShortURL("https://s.example/", "abc"))
	assert.Equal(t, "http://localhost:9999/s/abc", shortlink.ShortURL("http://localhost:9999", "abc"))
}

func TestMemstoreList_SameCreatedAtPagesByID(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(memstore.WithClock(func() time.Time { return t0 }))
	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, "https://example.com/same", nil)
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	var cur shortlink.Cursor
	for {
		page, err := store.List(ctx, 2, cur)
		require.NoError(t, err)
		for _, l := range page {
			assert.False(t, seen[l.ID], "duplicate %s", l.ID)
			seen[l.ID] = true
		}
		if len(page) < 2 {
			break
		}
		cur = shortlink.CursorOf(page[len(page)-1])
	}
	assert.Len(t, seen, 3)
}

func TestCursor_RoundTripAndReject(t *testing.T) {
	c := shortlink.Cursor{CreatedAt: t0.Add(123456789 * time.Nanosecond), ID: "0b4c1f5e-8f7a-4d2e-9a61-3f0d2c9b7e11"}
	got, err := shortlink.ParseCursor(c.String())
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, c.ID, got.ID)

	zero, err := shortlink.ParseCursor("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	for _, bad := range []string{"!!", "bm90LWEtY3Vyc29y", "fGFiYw"} {
		_, err := shortlink.ParseCursor(bad)
		assert.ErrorIs(t, err, shortlink.ErrValidation, bad)
	}
}

func TestCursor_Older(t *testing.T) {
	c := shortlink.Cursor{CreatedAt: t0, ID: "b"}
	assert.True(t, c.Older(shortlink.ShortLink{CreatedAt: t0.Add(-time.Second), ID: "z"}))
	assert.True(t, c.Older(shortlink.ShortLink{CreatedAt: t0, ID: "a"}))
	assert.False(t, c.Older(shortlink.ShortLink{CreatedAt: t0, ID: "b"}))
	assert.False(t, c.Older(shortlink.ShortLink{CreatedAt: t0, ID: "c"}))
	assert.False(t, c.Older(shortlink.ShortLink{CreatedAt: t0.Add(time.Second), ID: "a"}))
	assert.True(t, shortlink.Cursor{}.Older(shortlink.ShortLink{CreatedAt: t0}))
}

// Resolve 返回查询时刻的计数；自增之后的值要从 Accounting 读
func TestResolve_ReturnsLookupTimeVisits(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	created, err := shortlink.NewShortener(store, "").Shorten(ctx, "https://example.com/count", t0)
	require.NoError(t, err)

	r := shortlink.NewResolver(store)
	for want := int64(0); want < 3; want++ {
		got, err := r.Resolve(ctx, created.Link.Code, t0)
		require.NoError(t, err)
		assert.Equal(t, want, got.Visits)
	}
	visits, err := shortlink.NewAccounting(store).Visits(ctx, created.Link.Code)
	require.NoError(t, err)
	assert.EqualValues(t, 3, visits)
}
