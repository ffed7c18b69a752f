package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
)

// BaseResponse is the envelope of every JSON response. Code 0 means success.
type BaseResponse struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, BaseResponse{Code: 0, Data: data, Message: "ok"})
}

// RespondWithAppError maps err through the apperr taxonomy.
func RespondWithAppError(c *gin.Context, err error) {
	number, status, message := apperr.Describe(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, BaseResponse{Code: number, Message: message})
}

func RespondWithError(c *gin.Context, status int, message string) {
	c.JSON(status, BaseResponse{Code: status * 100, Message: message})
}
