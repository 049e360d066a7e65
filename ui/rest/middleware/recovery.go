package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
	"github.com/AzielCF/az-mediacache/pkg/utils"
)

// Recovery turns panics raised by utils.PanicIfNeeded into JSON responses.
// Known errors keep their status and code; anything else is a 500.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			res := utils.ResponseData{
				Status:  http.StatusInternalServerError,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", rec),
			}

			var generic pkgError.GenericError
			if err, ok := rec.(error); ok && errors.As(err, &generic) {
				res.Status = generic.StatusCode()
				res.Code = generic.ErrCode()
				res.Message = generic.Error()
			}

			entry := logrus.WithField("request_id", ctx.Locals("requestid")).WithField("path", ctx.Path())
			if res.Status >= http.StatusInternalServerError {
				entry.Errorf("[REST] Panic recovered: %v", rec)
			} else {
				entry.Debugf("[REST] Request failed: %v", rec)
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
