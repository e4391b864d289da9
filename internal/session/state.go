package session

// State はセッションマネージャーの状態を表す。
//
//	Uninitialized → Restoring → {Authenticated, Anonymous}
//
// 起動チェック完了後はAuthenticatedとAnonymousの間を行き来し、終端状態は持たない。
type State int

const (
	// StateUninitialized は起動チェック前の状態。
	StateUninitialized State = iota
	// StateRestoring は永続化レコードからの復元中。
	StateRestoring
	// StateAuthenticated は有効なIdentityを保持している状態。
	StateAuthenticated
	// StateAnonymous はIdentityを保持していない状態。
	StateAnonymous
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Loading は起動チェックが完了していない状態かどうかを返す。
func (s State) Loading() bool {
	return s == StateUninitialized || s == StateRestoring
}
