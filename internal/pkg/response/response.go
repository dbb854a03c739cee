package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/postvec/internal/pkg/errcode"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}

// FromError writes err with the code of the first sentinel it matches.
func FromError(c *gin.Context, err error) {
	Error(c, CodeOf(err), err.Error())
}

func CodeOf(err error) int {
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		return errcode.ErrInvalid
	case errors.Is(err, appErr.ErrDimensionMismatch):
		return errcode.ErrDimensionMismatch
	case errors.Is(err, appErr.ErrNotFound):
		return errcode.ErrNotFound
	case errors.Is(err, appErr.ErrUnauthorized):
		return errcode.ErrUnauthorized
	case errors.Is(err, appErr.ErrTimeout):
		return errcode.ErrTimeout
	case errors.Is(err, appErr.ErrDependencyUnavailable):
		return errcode.ErrDependencyUnavailable
	case errors.Is(err, appErr.ErrUnrecoverableSchemaMismatch), errors.Is(err, appErr.ErrSchemaDrift):
		return errcode.ErrSchemaMismatch
	case errors.Is(err, appErr.ErrTooMany):
		return errcode.ErrTooMany
	default:
		return errcode.ErrInternal
	}
}
