// Package idle はセッションのアイドルタイムアウトを定期的に検査するバックグラウンドタスクを提供する。
package idle

import (
	"context"
	"log/slog"
	"time"
)

// MaxInterval はアイドルチェック間隔の上限。少なくとも1分に1回は検査する。
const MaxInterval = time.Minute

// Checker はアイドルチェックを1回実行するインターフェース。
// session.Managerが実装する。
type Checker interface {
	CheckIdle(ctx context.Context)
}

// Watcher は一定間隔のティッカーでCheckerを呼び出す。
type Watcher struct {
	checker  Checker
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher はWatcherを生成する。
// intervalが0以下またはMaxIntervalを超える場合はMaxIntervalを使用する。
func NewWatcher(checker Checker, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 || interval > MaxInterval {
		interval = MaxInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		checker:  checker,
		interval: interval,
		logger:   logger,
	}
}

// Interval は実際に使用するチェック間隔を返す。
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// Start はコンテキストがキャンセルされるまでアイドルチェックを繰り返す。
// 呼び出し元をブロックする。
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("アイドルチェックを開始しました",
		slog.Duration("interval", w.interval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("アイドルチェックを停止しました")
			return
		case <-ticker.C:
			w.checker.CheckIdle(ctx)
		}
	}
}
