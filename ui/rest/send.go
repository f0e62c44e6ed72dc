package rest

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	domainControl "github.com/agentwa/wabridge/domains/control"
	"github.com/agentwa/wabridge/infrastructure/whatsapp"
	"github.com/agentwa/wabridge/validations"
)

type SendHandler struct {
	Supervisor *whatsapp.Supervisor
}

func InitSendAPI(app fiber.Router, supervisor *whatsapp.Supervisor) SendHandler {
	handler := SendHandler{Supervisor: supervisor}

	app.Post("/send", handler.Send)
	app.Post("/send/file", handler.SendFile)

	return handler
}

func (handler *SendHandler) Send(c *fiber.Ctx) error {
	var request domainControl.SendRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "BAD_REQUEST", Message: err.Error()})
	}
	if err := validations.ValidateSend(c.UserContext(), request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}

	adapter := handler.Supervisor.Adapter()
	if adapter == nil {
		return c.Status(503).JSON(ResponseData{Status: 503, Code: "NOT_CONNECTED", Message: "WhatsApp session is not connected"})
	}

	id, err := adapter.Send(c.UserContext(), request.To, request.Text, nil)
	if err != nil {
		logrus.WithError(err).Error("[REST] Send failed")
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sent",
		Results: fiber.Map{"message_id": id},
	})
}

// SendFile delivers a multipart upload as an image or document. The
// "to" and optional "caption" fields ride alongside the "file" part.
func (handler *SendHandler) SendFile(c *fiber.Ctx) error {
	to := c.FormValue("to")
	if to == "" {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: "to: cannot be blank"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: "file: cannot be blank"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "BAD_REQUEST", Message: err.Error()})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	adapter := handler.Supervisor.Adapter()
	if adapter == nil {
		return c.Status(503).JSON(ResponseData{Status: 503, Code: "NOT_CONNECTED", Message: "WhatsApp session is not connected"})
	}

	media := &whatsapp.OutboundMedia{
		Data:     data,
		MimeType: fileHeader.Header.Get("Content-Type"),
		FileName: fileHeader.Filename,
		Caption:  c.FormValue("caption"),
	}

	id, err := adapter.Send(c.UserContext(), to, "", media)
	if err != nil {
		logrus.WithError(err).Error("[REST] Send file failed")
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "File sent",
		Results: fiber.Map{"message_id": id},
	})
}
