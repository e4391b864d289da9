// Package cleanup はlocal_storageに残った期限切れセッションの削除ジョブを提供する。
// プロセスが停止している間にアイドルタイムアウトを過ぎたセッションは
// 次回起動時の復元まで残るため、PostgreSQLストア利用時は定期的に削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/brandshield/internal/repository"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DefaultRetention は最終アクティビティからセッション行を保持する期間。
const DefaultRetention = time.Hour

// purgeQuery はsession.lastActivityに保存されたエポックミリ秒が$3より古い、
// 数値として読めない、または存在しない場合にセッション関連キーをまとめて削除する。
// updated_atは使わない。値そのものがセッションの有効性を決める。
const purgeQuery = `DELETE FROM local_storage
WHERE key = ANY($1)
  AND NOT EXISTS (
    SELECT 1 FROM local_storage
    WHERE key = $2
      AND CASE WHEN value ~ '^[0-9]{1,18}$' THEN value::bigint ELSE 0 END >= $3
  )`

// CleanupJob は期限切れセッション行の削除ジョブ。冪等。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	now       func() time.Time
	Retention time.Duration // デフォルト: 1時間（アイドルタイムアウトと同じ）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:        db,
		logger:    logger,
		now:       time.Now,
		Retention: DefaultRetention,
	}
}

// Run は期限切れのセッション行を削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := j.now().Add(-j.Retention).UnixMilli()

	result, err := j.db.ExecContext(ctx, purgeQuery, pq.Array(repository.SessionKeys), repository.KeyLastActivity, cutoff)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunEvery はコンテキストがキャンセルされるまでinterval毎にRunを実行する。
// 起動直後に1回実行する。呼び出し元をブロックする。
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = j.Retention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// エラーはRun内でログ出力済み。次回の実行で再試行する
		_ = j.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
