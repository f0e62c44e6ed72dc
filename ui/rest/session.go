package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/agentwa/wabridge/infrastructure/whatsapp"
	"github.com/agentwa/wabridge/pkg/msgworker"
)

type SessionHandler struct {
	Supervisor *whatsapp.Supervisor
	Pool       *msgworker.Pool
}

func InitSessionAPI(app fiber.Router, supervisor *whatsapp.Supervisor, pool *msgworker.Pool) SessionHandler {
	handler := SessionHandler{Supervisor: supervisor, Pool: pool}

	app.Get("/status", handler.Status)
	app.Post("/connect", handler.Connect)
	app.Post("/disconnect", handler.Disconnect)
	app.Post("/logout", handler.Logout)

	return handler
}

func (handler *SessionHandler) Status(c *fiber.Ctx) error {
	state, qr, account := handler.Supervisor.Status()

	response := StatusResponse{
		State:   string(state),
		QRCode:  qr,
		Account: account,
	}
	if handler.Pool != nil {
		response.Workers = handler.Pool.GetStats()
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Status fetched",
		Results: response,
	})
}

func (handler *SessionHandler) Connect(c *fiber.Ctx) error {
	if err := handler.Supervisor.Connect(c.UserContext()); err != nil {
		logrus.WithError(err).Error("[REST] Connect failed")
		return c.Status(500).JSON(ResponseData{
			Status:  500,
			Code:    "INTERNAL_ERROR",
			Message: err.Error(),
		})
	}

	state, qr, account := handler.Supervisor.Status()
	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Connection started",
		Results: StatusResponse{State: string(state), QRCode: qr, Account: account},
	})
}

func (handler *SessionHandler) Disconnect(c *fiber.Ctx) error {
	handler.Supervisor.Disconnect()
	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Disconnected",
	})
}

func (handler *SessionHandler) Logout(c *fiber.Ctx) error {
	handler.Supervisor.Logout()
	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Logged out, credentials wiped",
	})
}
