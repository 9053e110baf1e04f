package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// --- モック定義 ---

type mockCacheRepo struct {
	entries map[string]*model.CacheEntry
	findErr error
	putErr  error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{entries: make(map[string]*model.CacheEntry)}
}

func (m *mockCacheRepo) Find(_ context.Context, cacheKey string) (*model.CacheEntry, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.entries[cacheKey], nil
}

func (m *mockCacheRepo) Put(_ context.Context, entry *model.CacheEntry) error {
	if m.putErr != nil {
		return m.putErr
	}
	if _, exists := m.entries[entry.CacheKey]; !exists {
		m.entries[entry.CacheKey] = entry
	}
	return nil
}

func (m *mockCacheRepo) Count(_ context.Context) (int, error) {
	return len(m.entries), nil
}

// --- テスト ---

// 正規化の揺れが同一キーに落ちることを検証
func TestCacheKey_Normalization(t *testing.T) {
	base := CacheKey("PUBG MOBILE x BLACKPINK", "New outfit reveal")

	same := []struct {
		title, desc string
	}{
		{"pubg mobile x blackpink", "new outfit reveal"},
		{"PUBG  MOBILE   x BLACKPINK", "New   outfit reveal"},
		{"  PUBG MOBILE x BLACKPINK  ", "\tNew outfit reveal\n"},
	}
	for _, tt := range same {
		if got := CacheKey(tt.title, tt.desc); got != base {
			t.Errorf("CacheKey(%q, %q) = %q, want same as base", tt.title, tt.desc, got)
		}
	}

	if CacheKey("different title", "new outfit reveal") == base {
		t.Error("different titles must not collide")
	}
	// タイトルと説明文の境界は保存される
	if CacheKey("a b", "c") == CacheKey("a", "b c") {
		t.Error("title/description boundary must affect the key")
	}
}

// 説明文が上限で打ち切られてからハッシュされることを検証
func TestCacheKey_DescriptionTruncation(t *testing.T) {
	long := make([]rune, maxDescriptionRunes+500)
	for i := range long {
		long[i] = 'a'
	}
	tail1 := string(long) + "xxx"
	tail2 := string(long) + "yyy"

	if CacheKey("title", tail1) != CacheKey("title", tail2) {
		t.Error("differences beyond the truncation limit must not affect the key")
	}
}

// ミス時に1回だけcomputeが呼ばれ、以降はヒットすることを検証
func TestCache_GetOrCompute_AtMostOneCall(t *testing.T) {
	repo := newMockCacheRepo()
	cache := NewCache(repo)
	ctx := context.Background()

	calls := 0
	compute := func(_ context.Context) (string, string, error) {
		calls++
		return `{"is_collab":true}`, "gpt-4o-mini", nil
	}

	key := CacheKey("title", "desc")

	out1, hit1, err := cache.GetOrCompute(ctx, key, "title\ndesc", compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if hit1 {
		t.Error("first call must be a miss")
	}

	out2, hit2, err := cache.GetOrCompute(ctx, key, "title\ndesc", compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if !hit2 {
		t.Error("second call must be a hit")
	}
	if out1 != out2 {
		t.Errorf("cached output %q differs from computed %q", out2, out1)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}

// compute失敗時に何も書き込まれないことを検証
func TestCache_GetOrCompute_NoWriteOnFailure(t *testing.T) {
	repo := newMockCacheRepo()
	cache := NewCache(repo)
	ctx := context.Background()

	wantErr := errors.New("service unavailable")
	_, _, err := cache.GetOrCompute(ctx, "key-1", "input", func(_ context.Context) (string, string, error) {
		return "", "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrCompute() error = %v, want %v", err, wantErr)
	}
	if len(repo.entries) != 0 {
		t.Error("failed compute must not be cached")
	}

	// 失敗後の再試行でcomputeが再度呼ばれる
	out, hit, err := cache.GetOrCompute(ctx, "key-1", "input", func(_ context.Context) (string, string, error) {
		return `{"ok":true}`, "m", nil
	})
	if err != nil || hit || out != `{"ok":true}` {
		t.Errorf("retry after failure: out=%q hit=%v err=%v", out, hit, err)
	}
}
