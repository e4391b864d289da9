package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/brandshield/internal/dashboard"
	"github.com/hitoshi/brandshield/internal/middleware"
	"github.com/hitoshi/brandshield/internal/model"
	"github.com/hitoshi/brandshield/internal/signup"
)

// maxRequestBodySize はJSONリクエストボディの上限（64KB）。
const maxRequestBodySize = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError())
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var validationErr *signup.ValidationError
	switch {
	case errors.As(err, &validationErr):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(validationErr.Fields))
	case errors.Is(err, model.ErrPasswordMismatch):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewPasswordMismatchError())
	case errors.Is(err, model.ErrInvalidRegistration):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(nil))
	case errors.Is(err, model.ErrInvalidCredentials):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
	case errors.Is(err, model.ErrCheckoutFailed):
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewCheckoutFailedError())
	case errors.Is(err, dashboard.ErrForbidden):
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
	default:
		// 詳細はログのみに記録する
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
