package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"recall/internal/pkg/logger"
	"recall/internal/service/recall/domain"
)

const (
	statusOK          = "200"
	internalErrorText = "服务器内部错误"
)

// envelope 是 JSON 接口的统一响应。业务失败也返回 HTTP 200，status_code 为 "500"。
type envelope struct {
	StatusCode string `json:"status_code"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
}

type loginResponse struct {
	StatusCode string `json:"status_code"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Token      string `json:"token"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{StatusCode: statusOK, Data: data})
}

// writeError 把业务错误写成 HTTP 200 的软失败，其余错误记日志后返回 HTTP 500。
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		writeJSON(w, http.StatusOK, envelope{StatusCode: appErr.Code, Message: appErr.Message})
		return
	}
	logger.Ctx(ctx).Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, envelope{StatusCode: domain.CodeSoftFailure, Message: internalErrorText})
}
