package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/brandshield/internal/model"
)

func newTestRecordRepo() (*KVSessionRecordRepo, *MemoryKVStore) {
	kv := NewMemoryKVStore()
	return NewKVSessionRecordRepo(kv), kv
}

func TestKVSessionRecordRepo_SaveAndLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, kv := newTestRecordRepo()

	at := time.UnixMilli(1_700_000_000_123)
	record := &model.SessionRecord{
		Identity: model.Identity{
			ID:    "1",
			Email: "admin@brandprotect.com",
			Role:  model.RoleAdmin,
			Name:  "Admin User",
		},
		LastActivity: at,
	}

	if err := repo.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// 永続化レイアウトの確認
	rawTS, found, _ := kv.Get(ctx, KeyLastActivity)
	if !found || rawTS != "1700000000123" {
		t.Errorf("%s = %q (found=%v), want %q", KeyLastActivity, rawTS, found, "1700000000123")
	}
	rawIdentity, found, _ := kv.Get(ctx, KeyIdentity)
	if !found {
		t.Fatalf("%s not written", KeyIdentity)
	}
	want := `{"id":"1","email":"admin@brandprotect.com","role":"admin","name":"Admin User"}`
	if rawIdentity != want {
		t.Errorf("%s = %s, want %s", KeyIdentity, rawIdentity, want)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil record")
	}
	if got.Identity != record.Identity {
		t.Errorf("Identity = %+v, want %+v", got.Identity, record.Identity)
	}
	if !got.LastActivity.Equal(at) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, at)
	}
}

func TestKVSessionRecordRepo_Load_EmptyStore_ReturnsNil(t *testing.T) {
	repo, _ := newTestRecordRepo()

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil record, got %+v", got)
	}
}

func TestKVSessionRecordRepo_Load_MissingTimestamp_ReturnsNil(t *testing.T) {
	ctx := context.Background()
	repo, kv := newTestRecordRepo()
	_ = kv.Set(ctx, KeyIdentity, `{"id":"1","email":"a@b.c","role":"user","name":"A"}`)

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil record, got %+v", got)
	}
}

func TestKVSessionRecordRepo_Load_CorruptData_ReturnsErrCorruptRecord(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		lastAct  string
	}{
		{"malformed json", `{"id":`, "1700000000000"},
		{"unknown role", `{"id":"1","email":"a@b.c","role":"root","name":"A"}`, "1700000000000"},
		{"missing id", `{"email":"a@b.c","role":"user","name":"A"}`, "1700000000000"},
		{"malformed timestamp", `{"id":"1","email":"a@b.c","role":"user","name":"A"}`, "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo, kv := newTestRecordRepo()
			_ = kv.Set(ctx, KeyIdentity, tt.identity)
			_ = kv.Set(ctx, KeyLastActivity, tt.lastAct)

			_, err := repo.Load(ctx)
			if !errors.Is(err, model.ErrCorruptRecord) {
				t.Errorf("Load() error = %v, want ErrCorruptRecord", err)
			}
		})
	}
}

func TestKVSessionRecordRepo_TouchLastActivity_UpdatesOnlyTimestamp(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRecordRepo()

	first := time.UnixMilli(1_000)
	_ = repo.Save(ctx, &model.SessionRecord{
		Identity:     model.Identity{ID: "2", Email: "user@brandprotect.com", Role: model.RoleUser, Name: "Regular User"},
		LastActivity: first,
	})

	later := first.Add(5 * time.Minute)
	if err := repo.TouchLastActivity(ctx, later); err != nil {
		t.Fatalf("TouchLastActivity() error = %v", err)
	}

	at, found, err := repo.LastActivity(ctx)
	if err != nil || !found {
		t.Fatalf("LastActivity() = %v, %v, %v", at, found, err)
	}
	if !at.Equal(later) {
		t.Errorf("LastActivity = %v, want %v", at, later)
	}

	got, _ := repo.Load(ctx)
	if got == nil || got.Identity.ID != "2" {
		t.Errorf("identity changed unexpectedly: %+v", got)
	}
}

func TestKVSessionRecordRepo_Clear_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, kv := newTestRecordRepo()

	_ = repo.Save(ctx, &model.SessionRecord{
		Identity:     model.Identity{ID: "2", Email: "user@brandprotect.com", Role: model.RoleUser, Name: "Regular User"},
		LastActivity: time.Now(),
		SessionID:    "sid-1",
	})

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if kv.Len() != 0 {
		t.Errorf("expected empty store, got %d keys", kv.Len())
	}
}

func TestKVSessionRecordRepo_Save_NilRecord_ReturnsError(t *testing.T) {
	repo, _ := newTestRecordRepo()
	if err := repo.Save(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestKVSessionRecordRepo_SessionID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, kv := newTestRecordRepo()

	err := repo.Save(ctx, &model.SessionRecord{
		Identity:     model.Identity{ID: "1", Email: "admin@brandprotect.com", Role: model.RoleAdmin, Name: "Admin User"},
		LastActivity: time.UnixMilli(1_000),
		SessionID:    "sid-1",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if raw, found, _ := kv.Get(ctx, KeySessionID); !found || raw != "sid-1" {
		t.Errorf("%s = %q (found=%v), want %q", KeySessionID, raw, found, "sid-1")
	}

	got, err := repo.Load(ctx)
	if err != nil || got == nil {
		t.Fatalf("Load() = %v, %v", got, err)
	}
	if got.SessionID != "sid-1" {
		t.Errorf("SessionID = %q, want %q", got.SessionID, "sid-1")
	}
}

func TestKVSessionRecordRepo_Load_MissingSessionIDIsStillARecord(t *testing.T) {
	ctx := context.Background()
	repo, kv := newTestRecordRepo()

	_ = kv.Set(ctx, KeyIdentity, `{"id":"2","email":"user@brandprotect.com","role":"user","name":"Regular User"}`)
	_ = kv.Set(ctx, KeyLastActivity, "1000")

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("a record without session.id should still load")
	}
	if got.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", got.SessionID)
	}
}
