// Package checkout は外部の決済チェックアウト連携を提供する。
// トライアル購読のチェックアウトセッションを作成し、そのIDを返す。
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/brandshield/internal/model"
)

const (
	// createTrialPath はトライアル購読作成APIのパス。
	createTrialPath = "/api/create-trial-subscription"
	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 1 << 20
)

// TrialRequest はトライアル購読作成APIのリクエストボディ。
type TrialRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	TrialDays   int    `json:"trialDays"`
	PriceAmount int    `json:"priceAmount"` // 月額（セント）
}

type trialResponse struct {
	SessionID string `json:"sessionId"`
}

// Client はチェックアウトセッションを作成するインターフェース。
type Client interface {
	// CreateTrialSubscription はチェックアウトセッションを作成し、そのIDを返す。
	// 失敗した場合はmodel.ErrCheckoutFailedをラップして返す。
	CreateTrialSubscription(ctx context.Context, req TrialRequest) (string, error)
}

// HTTPClient は外部チェックアウトAPIをHTTPで呼び出すClient実装。
type HTTPClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewHTTPClient はHTTPClientを生成する。
// httpClientには通常security.OutboundGuardが生成したクライアントを渡す。
func NewHTTPClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(baseURL, "/") + createTrialPath,
	}
}

// CreateTrialSubscription はチェックアウトAPIへPOSTし、sessionIdを返す。
// 2xx以外のステータス、または空のsessionIdは失敗として扱う。リトライはしない。
func (c *HTTPClient) CreateTrialSubscription(ctx context.Context, in TrialRequest) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "BrandShield/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("チェックアウトAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", model.ErrCheckoutFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("チェックアウトAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("%w: status %d", model.ErrCheckoutFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", model.ErrCheckoutFailed, err)
	}

	var out trialResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error("チェックアウトAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: invalid response body", model.ErrCheckoutFailed)
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("%w: empty sessionId", model.ErrCheckoutFailed)
	}

	return out.SessionID, nil
}

// StubClient はネットワークI/Oを行わないClient実装。
// CHECKOUT_BASE_URLが未設定の場合に使用する。
type StubClient struct {
	newID func() string
}

// NewStubClient はStubClientを生成する。
func NewStubClient() *StubClient {
	return &StubClient{newID: uuid.NewString}
}

// CreateTrialSubscription は cs_test_<uuid> 形式のセッションIDを返す。
func (s *StubClient) CreateTrialSubscription(ctx context.Context, _ TrialRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrCheckoutFailed, err)
	}
	return "cs_test_" + s.newID(), nil
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*StubClient)(nil)
)
