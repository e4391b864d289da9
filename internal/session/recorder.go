package session

// ログアウト理由（メトリクスのreasonラベル）。
const (
	LogoutReasonExplicit = "explicit"
	LogoutReasonExpired  = "expired"
	LogoutReasonCorrupt  = "corrupt"
)

// 起動時復元の結果（メトリクスのresultラベル）。
const (
	RestoreResultRestored = "restored"
	RestoreResultExpired  = "expired"
	RestoreResultEmpty    = "empty"
	RestoreResultCorrupt  = "corrupt"
	RestoreResultError    = "error"
)

// Recorder はセッションイベントの計測インターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordLogin(success bool)
	RecordRegistration()
	RecordLogout(reason string)
	RecordRestore(result string)
	RecordIdleCheck()
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(bool)     {}
func (nopRecorder) RecordRegistration()  {}
func (nopRecorder) RecordLogout(string)  {}
func (nopRecorder) RecordRestore(string) {}
func (nopRecorder) RecordIdleCheck()     {}
