package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/agentwa/wabridge/pkg/apperr"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				status := 500
				code := "INTERNAL_SERVER_ERROR"
				message := fmt.Sprintf("%v", err)

				logrus.Errorf("Panic recovered in middleware: %v", err)

				if generic, ok := err.(apperr.GenericError); ok {
					status = generic.StatusCode()
					code = generic.ErrCode()
					message = generic.Error()
				}

				_ = ctx.Status(status).JSON(fiber.Map{
					"status":  status,
					"code":    code,
					"message": message,
				})
			}
		}()

		return ctx.Next()
	}
}
