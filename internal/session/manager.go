// Package session は「誰がどのIdentityでログインしているか」を管理するセッションマネージャーを提供する。
//
// マネージャーはIdentityとセッションレコードの唯一の書き手であり、
// 永続化レコードからの起動時復元、アイドルタイムアウトによる失効、
// キャンセル可能なバックグラウンドのアイドルチェックを担う。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/brandshield/internal/auth"
	"github.com/hitoshi/brandshield/internal/model"
	"github.com/hitoshi/brandshield/internal/repository"
	"github.com/hitoshi/brandshield/internal/worker/idle"
)

const (
	// DefaultIdleTimeout は無操作でセッションが失効するまでの時間。
	DefaultIdleTimeout = time.Hour
	// DefaultCheckInterval はアイドルチェックの間隔。
	DefaultCheckInterval = idle.MaxInterval
)

// ErrAlreadyStarted はStartが2回以上呼ばれた場合のエラー。
var ErrAlreadyStarted = errors.New("session manager already started")

// Config はセッションマネージャーの設定。
type Config struct {
	IdleTimeout   time.Duration    // デフォルト: 1時間
	CheckInterval time.Duration    // デフォルト: 1分（上限1分）
	Now           func() time.Time // テスト用の時計
	NewID         func() string    // 登録ユーザーのID生成
	NewSessionID  func() string    // ログインごとのセッションID生成
	Logger        *slog.Logger
	Recorder      Recorder
}

// Manager はセッション状態の唯一の書き手。
// 状態のコミットはmuで直列化し、bcryptによる資格情報検証はロックの外で行う。
type Manager struct {
	store    repository.SessionRecordStore
	verifier auth.CredentialVerifier

	idleTimeout   time.Duration
	checkInterval time.Duration
	now           func() time.Time
	newID         func() string
	newSessionID  func() string
	logger        *slog.Logger
	recorder      Recorder

	mu           sync.Mutex
	state        State
	identity     *model.Identity
	sessionID    string
	lastActivity time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager はManagerを生成する。Startを呼ぶまではStateUninitializedのまま。
func NewManager(store repository.SessionRecordStore, verifier auth.CredentialVerifier, cfg Config) *Manager {
	m := &Manager{
		store:         store,
		verifier:      verifier,
		idleTimeout:   cfg.IdleTimeout,
		checkInterval: cfg.CheckInterval,
		now:           cfg.Now,
		newID:         cfg.NewID,
		newSessionID:  cfg.NewSessionID,
		logger:        cfg.Logger,
		recorder:      cfg.Recorder,
		state:         StateUninitialized,
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = DefaultIdleTimeout
	}
	if m.checkInterval <= 0 || m.checkInterval > idle.MaxInterval {
		m.checkInterval = DefaultCheckInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.newSessionID == nil {
		m.newSessionID = uuid.NewString
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	return m
}

// IdleTimeout は設定済みのアイドルタイムアウトを返す。
func (m *Manager) IdleTimeout() time.Duration {
	return m.idleTimeout
}

// Start は起動チェックを実行し、アイドルチェックタスクを起動する。
// 起動チェックのストレージ障害はAnonymousへの遷移として扱い、エラーにはしない。
// Start前のLogin/Logoutは永続化レコードにだけ反映され、状態はUninitializedのまま。
// タスクはctxのキャンセルまたはStopで停止する。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = StateRestoring
	m.restoreLocked(ctx)

	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	watcher := idle.NewWatcher(m, m.checkInterval, m.logger)
	go func() {
		defer close(done)
		watcher.Start(taskCtx)
	}()

	return nil
}

// Stop はアイドルチェックタスクを停止し、終了を待つ。複数回呼んでもよい。
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) restoreLocked(ctx context.Context) {
	record, err := m.store.Load(ctx)
	now := m.now()

	switch {
	case err != nil:
		result := RestoreResultError
		if errors.Is(err, model.ErrCorruptRecord) {
			result = RestoreResultCorrupt
			m.logger.Warn("永続化されたセッションレコードを復元できません",
				slog.String("error", err.Error()),
			)
		} else {
			m.logger.Error("セッションレコードの読み込みに失敗しました",
				slog.String("error", err.Error()),
			)
		}
		m.clearLocked(ctx)
		m.becomeAnonymousLocked()
		m.recorder.RecordRestore(result)

	case record == nil:
		// 片方のキーだけが残っている場合に備えて消去する
		m.clearLocked(ctx)
		m.becomeAnonymousLocked()
		m.recorder.RecordRestore(RestoreResultEmpty)

	case !record.IsValid(now, m.idleTimeout):
		m.logger.Info("セッションはアイドルタイムアウトにより失効しています",
			slog.String("user_id", record.Identity.ID),
			slog.Time("last_activity", record.LastActivity),
		)
		m.clearLocked(ctx)
		m.becomeAnonymousLocked()
		m.recorder.RecordRestore(RestoreResultExpired)

	default:
		sessionID := record.SessionID
		if sessionID == "" {
			// セッションIDを持たないレコードは新しいIDで書き直す
			sessionID = m.newSessionID()
			refreshed := &model.SessionRecord{Identity: record.Identity, LastActivity: now, SessionID: sessionID}
			if err := m.store.Save(ctx, refreshed); err != nil {
				m.logger.Error("セッションレコードの更新に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		} else if err := m.store.TouchLastActivity(ctx, now); err != nil {
			m.logger.Error("最終アクティビティ時刻の更新に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		identity := record.Identity
		m.identity = &identity
		m.sessionID = sessionID
		m.lastActivity = now
		m.state = StateAuthenticated
		m.logger.Info("セッションを復元しました",
			slog.String("user_id", identity.ID),
			slog.String("role", string(identity.Role)),
		)
		m.recorder.RecordRestore(RestoreResultRestored)
	}
}

// Login は資格情報を検証し、成功した場合にセッションを確立する。
// 未知のメールアドレスとパスワード不一致はどちらもmodel.ErrInvalidCredentialsになる。
// 失敗してもセッションレコードは作成しない。
func (m *Manager) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	identity, err := m.verifier.Verify(ctx, email, password)
	if err != nil {
		m.recorder.RecordLogin(false)
		if errors.Is(err, model.ErrInvalidCredentials) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	if err := m.establish(ctx, *identity); err != nil {
		m.recorder.RecordLogin(false)
		return nil, err
	}

	m.recorder.RecordLogin(true)
	m.logger.Info("ログインしました",
		slog.String("user_id", identity.ID),
		slog.String("role", string(identity.Role)),
	)
	return identity, nil
}

// Register は新しいuserロールのIdentityを発行し、そのままセッションを確立する。
// email、password、nameのいずれかが空の場合はmodel.ErrInvalidRegistrationを返す。
// パスワードは保存しない。
func (m *Manager) Register(ctx context.Context, email, password, name string) (*model.Identity, error) {
	if strings.TrimSpace(email) == "" || password == "" || strings.TrimSpace(name) == "" {
		return nil, model.ErrInvalidRegistration
	}

	identity := model.Identity{
		ID:    m.newID(),
		Email: email,
		Role:  model.RoleUser,
		Name:  name,
	}
	if err := m.establish(ctx, identity); err != nil {
		return nil, err
	}

	m.recorder.RecordRegistration()
	m.logger.Info("新規ユーザーを登録しました",
		slog.String("user_id", identity.ID),
	)
	return &identity, nil
}

func (m *Manager) establish(ctx context.Context, identity model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sessionID := m.newSessionID()
	record := &model.SessionRecord{Identity: identity, LastActivity: now, SessionID: sessionID}
	if err := m.store.Save(ctx, record); err != nil {
		// 書きかけのレコードを認証済みとして残さない
		m.clearLocked(ctx)
		m.dropIdentityLocked()
		return fmt.Errorf("failed to persist session: %w", err)
	}

	m.identity = &identity
	m.sessionID = sessionID
	m.lastActivity = now
	if !m.state.Loading() {
		m.state = StateAuthenticated
	}
	return nil
}

// Logout はメモリ上のIdentityと永続化レコードを無条件に削除する。
// 未ログインでも残存キーを削除する。ストレージ障害はログに記録するだけで返さない。
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logoutLocked(ctx, LogoutReasonExplicit)
}

func (m *Manager) logoutLocked(ctx context.Context, reason string) {
	previous := m.identity
	m.clearLocked(ctx)
	m.dropIdentityLocked()

	if previous == nil {
		return
	}
	m.recorder.RecordLogout(reason)
	m.logger.Info("ログアウトしました",
		slog.String("user_id", previous.ID),
		slog.String("reason", reason),
	)
}

func (m *Manager) clearLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("セッションレコードの削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// dropIdentityLocked はIdentityを破棄する。起動チェック前の状態は維持する。
func (m *Manager) dropIdentityLocked() {
	m.identity = nil
	m.sessionID = ""
	m.lastActivity = time.Time{}
	if !m.state.Loading() {
		m.state = StateAnonymous
	}
}

func (m *Manager) becomeAnonymousLocked() {
	m.identity = nil
	m.sessionID = ""
	m.lastActivity = time.Time{}
	m.state = StateAnonymous
}

// CurrentIdentity は現在のIdentityのコピーを返す。
// セッションが無い、または失効している場合はnilを返し、失効していればその場で消去する。
func (m *Manager) CurrentIdentity(ctx context.Context) *model.Identity {
	identity, _ := m.CurrentSession(ctx)
	return identity
}

// CurrentSession は現在のIdentityのコピーとセッションIDを返す。
// セッションIDはログイン（または登録）ごとに新しく発行されるため、
// 同じユーザーでもログアウト前のログインとは区別できる。
// セッションが無い、または失効している場合は(nil, "")を返す。
func (m *Manager) CurrentSession(ctx context.Context) (*model.Identity, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil {
		return nil, ""
	}
	if !m.activeLocked(ctx) {
		return nil, ""
	}
	identity := *m.identity
	return &identity, m.sessionID
}

// activeLocked はセッションがまだ有効かを判定し、失効していればログアウトする。
// 永続化された最終アクティビティ時刻を優先し（last writer wins）、
// 読み取れない場合はメモリ上の時刻で判定する。
func (m *Manager) activeLocked(ctx context.Context) bool {
	now := m.now()
	if now.Sub(m.lastActivity) < m.idleTimeout {
		return true
	}

	at, found, err := m.store.LastActivity(ctx)
	switch {
	case errors.Is(err, model.ErrCorruptRecord):
		m.logger.Warn("最終アクティビティ時刻を復元できません",
			slog.String("error", err.Error()),
		)
		m.logoutLocked(ctx, LogoutReasonCorrupt)
		return false
	case err != nil:
		m.logger.Error("最終アクティビティ時刻の読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
	case found && at.After(m.lastActivity):
		m.lastActivity = at
	}

	if now.Sub(m.lastActivity) < m.idleTimeout {
		return true
	}
	m.logoutLocked(ctx, LogoutReasonExpired)
	return false
}

// IsLoading は起動チェックが完了するまでtrueを返す。
func (m *Manager) IsLoading() bool {
	return m.State().Loading()
}

// State は現在の状態を返す。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Touch は操作を観測したことを記録し、最終アクティビティ時刻を更新する。
// 未ログインまたは失効済みの場合はmodel.ErrSessionExpiredを返す。
func (m *Manager) Touch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil || !m.activeLocked(ctx) {
		return model.ErrSessionExpired
	}

	now := m.now()
	if err := m.store.TouchLastActivity(ctx, now); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	m.lastActivity = now
	return nil
}

// CheckIdle はアイドルチェックを1回実行する。
// 永続化された最終アクティビティ時刻がタイムアウトを超えていればログアウトする。
func (m *Manager) CheckIdle(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recorder.RecordIdleCheck()

	at, found, err := m.store.LastActivity(ctx)
	switch {
	case errors.Is(err, model.ErrCorruptRecord):
		m.logger.Warn("最終アクティビティ時刻を復元できません",
			slog.String("error", err.Error()),
		)
		m.logoutLocked(ctx, LogoutReasonCorrupt)
		return
	case err != nil:
		m.logger.Error("アイドルチェックに失敗しました",
			slog.String("error", err.Error()),
		)
		if m.identity != nil {
			m.activeLocked(ctx)
		}
		return
	case !found:
		if m.identity != nil {
			m.activeLocked(ctx)
		}
		return
	}

	if m.now().Sub(at) >= m.idleTimeout {
		m.logoutLocked(ctx, LogoutReasonExpired)
		return
	}
	if m.identity != nil && at.After(m.lastActivity) {
		m.lastActivity = at
	}
}

var _ idle.Checker = (*Manager)(nil)
