package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/brandshield/internal/model"
)

// KVSessionRecordRepo はKeyValueStoreの上にセッションレコードを実装する。
// session.identity にIdentityのJSON、session.lastActivity にエポックミリ秒、
// session.id にセッションIDを格納する。
type KVSessionRecordRepo struct {
	kv KeyValueStore
}

// NewKVSessionRecordRepo はKVSessionRecordRepoを生成する。
func NewKVSessionRecordRepo(kv KeyValueStore) *KVSessionRecordRepo {
	return &KVSessionRecordRepo{kv: kv}
}

// Load は永続化されたレコードを取得する。
// identityかlastActivityが欠けている場合はレコード無しとして扱う。
func (r *KVSessionRecordRepo) Load(ctx context.Context) (*model.SessionRecord, error) {
	rawIdentity, found, err := r.kv.Get(ctx, KeyIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyIdentity, err)
	}
	if !found {
		return nil, nil
	}

	lastActivity, found, err := r.LastActivity(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var identity model.Identity
	if err := json.Unmarshal([]byte(rawIdentity), &identity); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", KeyIdentity, model.ErrCorruptRecord)
	}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyIdentity, err)
	}

	sessionID, _, err := r.kv.Get(ctx, KeySessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeySessionID, err)
	}

	return &model.SessionRecord{
		Identity:     identity,
		LastActivity: lastActivity,
		SessionID:    sessionID,
	}, nil
}

// Save はIdentityと最終アクティビティ時刻を書き込む。
func (r *KVSessionRecordRepo) Save(ctx context.Context, record *model.SessionRecord) error {
	if record == nil {
		return fmt.Errorf("session record is required")
	}

	data, err := json.Marshal(record.Identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	if err := r.kv.Set(ctx, KeyIdentity, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", KeyIdentity, err)
	}
	if record.SessionID != "" {
		if err := r.kv.Set(ctx, KeySessionID, record.SessionID); err != nil {
			return fmt.Errorf("failed to write %s: %w", KeySessionID, err)
		}
	}
	return r.TouchLastActivity(ctx, record.LastActivity)
}

// TouchLastActivity は最終アクティビティ時刻を更新する。
func (r *KVSessionRecordRepo) TouchLastActivity(ctx context.Context, at time.Time) error {
	if err := r.kv.Set(ctx, KeyLastActivity, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("failed to write %s: %w", KeyLastActivity, err)
	}
	return nil
}

// LastActivity は最終アクティビティ時刻を取得する。
func (r *KVSessionRecordRepo) LastActivity(ctx context.Context) (time.Time, bool, error) {
	raw, found, err := r.kv.Get(ctx, KeyLastActivity)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read %s: %w", KeyLastActivity, err)
	}
	if !found {
		return time.Time{}, false, nil
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse %s %q: %w", KeyLastActivity, raw, model.ErrCorruptRecord)
	}
	return time.UnixMilli(ms), true, nil
}

// Clear はレコードの全キーを削除する。
func (r *KVSessionRecordRepo) Clear(ctx context.Context) error {
	if err := r.kv.Delete(ctx, SessionKeys...); err != nil {
		return fmt.Errorf("failed to clear session record: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRecordStore = (*KVSessionRecordRepo)(nil)
