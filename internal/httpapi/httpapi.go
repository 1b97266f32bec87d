// Package httpapi は各ハンドラーで共通のリクエスト解析とエラー応答を提供します。
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/yourusername/account-portal/internal/accounts"
)

// StrictJSON は未知のフィールドと末尾の余分なデータを拒否する JSON バインディングです。
var StrictJSON binding.BindingBody = strictJSON{}

type strictJSON struct{}

func (strictJSON) Name() string {
	return "strict-json"
}

func (b strictJSON) Bind(req *http.Request, obj any) error {
	if req == nil || req.Body == nil {
		return errors.New("invalid request")
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	return b.BindBody(body, obj)
}

func (strictJSON) BindBody(body []byte, obj any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// Bind はリクエストボディを obj に読み込みます。
// 失敗した場合は 400 を返して false を返すので、呼び出し側はそのまま return すること。
func Bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindWith(obj, StrictJSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "リクエストの形式が正しくありません。JSON で送信してください。",
		})
		return false
	}
	return true
}

// RespondWithError はエラーの種類に応じたステータスと {code, message} を返します。
// 想定外のエラーは内容を隠してログにだけ残します。
func RespondWithError(c *gin.Context, logger *log.Logger, err error) {
	var apiErr *accounts.Error
	switch {
	case errors.As(err, &apiErr):
		c.JSON(statusFor(apiErr.Kind), gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		logf(logger, "internal error %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func statusFor(kind accounts.Kind) int {
	switch kind {
	case accounts.KindValidation:
		return http.StatusBadRequest
	case accounts.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger == nil {
		logger = log.Default()
	}
	logger.Output(2, fmt.Sprintf(format, args...))
}
