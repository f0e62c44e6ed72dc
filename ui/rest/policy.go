package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	domainControl "github.com/agentwa/wabridge/domains/control"
	"github.com/agentwa/wabridge/domains/policy"
	"github.com/agentwa/wabridge/pkg/waid"
	"github.com/agentwa/wabridge/validations"
)

type PolicyHandler struct {
	Store policy.Store
}

func InitPolicyAPI(app fiber.Router, store policy.Store) PolicyHandler {
	handler := PolicyHandler{Store: store}

	app.Get("/allowlist", handler.ListAllowlist)
	app.Post("/allowlist", handler.AddToAllowlist)
	app.Delete("/allowlist/:phone", handler.RemoveFromAllowlist)

	app.Post("/pairing/approve", handler.ApprovePairing)

	app.Get("/groups", handler.ListGroups)
	app.Post("/groups", handler.UpsertGroup)
	app.Delete("/groups/:id", handler.RemoveGroup)

	return handler
}

func (handler *PolicyHandler) ListAllowlist(c *fiber.Ctx) error {
	entries, err := handler.Store.ListAllowlist(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	results := make([]AllowlistEntryResponse, 0, len(entries))
	for _, entry := range entries {
		results = append(results, AllowlistEntryResponse{
			Phone:     entry.Phone,
			RawID:     entry.RawID,
			Label:     entry.Label,
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Allowlist fetched",
		Results: results,
	})
}

func (handler *PolicyHandler) AddToAllowlist(c *fiber.Ctx) error {
	var request domainControl.AllowlistRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "BAD_REQUEST", Message: err.Error()})
	}
	if err := validations.ValidateAllowlistAdd(c.UserContext(), request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}

	entry := policy.AllowlistEntry{
		Phone: waid.Normalize(request.Phone),
		RawID: request.RawID,
		Label: request.Label,
	}
	if err := handler.Store.AddToAllowlist(c.UserContext(), entry); err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	logrus.Infof("[REST] Allowlist entry added for %s", entry.Phone)
	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Allowlist entry added",
	})
}

func (handler *PolicyHandler) RemoveFromAllowlist(c *fiber.Ctx) error {
	phone := c.Params("phone")
	if err := handler.Store.RemoveFromAllowlist(c.UserContext(), phone); err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Allowlist entry removed",
	})
}

// ApprovePairing turns a pending pairing code into an allowlist entry.
// The code must still be within its validity window.
func (handler *PolicyHandler) ApprovePairing(c *fiber.Ctx) error {
	var request domainControl.PairingApproveRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "BAD_REQUEST", Message: err.Error()})
	}
	if err := validations.ValidatePairingApprove(c.UserContext(), request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}

	pairing, err := handler.Store.GetPairing(c.UserContext(), request.Code)
	if err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}
	if pairing == nil {
		return c.Status(404).JSON(ResponseData{Status: 404, Code: "NOT_FOUND", Message: "Pairing code not found"})
	}
	if pairing.Expired(time.Now()) {
		_ = handler.Store.DeletePairing(c.UserContext(), request.Code)
		return c.Status(410).JSON(ResponseData{Status: 410, Code: "GONE", Message: "Pairing code expired"})
	}

	entry := policy.AllowlistEntry{
		Phone: waid.Normalize(pairing.RawID),
		RawID: pairing.RawID,
		Label: request.Label,
	}
	if err := handler.Store.AddToAllowlist(c.UserContext(), entry); err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}
	if err := handler.Store.DeletePairing(c.UserContext(), request.Code); err != nil {
		logrus.WithError(err).Warn("[REST] Failed to delete consumed pairing code")
	}

	logrus.Infof("[REST] Pairing approved for %s", entry.Phone)
	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Pairing approved",
		Results: AllowlistEntryResponse{Phone: entry.Phone, RawID: entry.RawID, Label: entry.Label},
	})
}

func (handler *PolicyHandler) ListGroups(c *fiber.Ctx) error {
	entries, err := handler.Store.ListGroups(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	results := make([]GroupEntryResponse, 0, len(entries))
	for _, entry := range entries {
		results = append(results, GroupEntryResponse{
			GroupID:   entry.GroupID,
			Label:     entry.Label,
			Allowed:   entry.Allowed,
			Mode:      string(entry.Mode),
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Groups fetched",
		Results: results,
	})
}

// UpsertGroup creates or updates a group entry. Allowed defaults to
// true and Mode to mentions for new entries.
func (handler *PolicyHandler) UpsertGroup(c *fiber.Ctx) error {
	var request domainControl.GroupRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "BAD_REQUEST", Message: err.Error()})
	}
	if err := validations.ValidateGroupUpsert(c.UserContext(), request); err != nil {
		return c.Status(400).JSON(ResponseData{Status: 400, Code: "VALIDATION_ERROR", Message: err.Error()})
	}

	allowed := true
	if request.Allowed != nil {
		allowed = *request.Allowed
	}
	mode := policy.ModeMentions
	if request.Mode != "" {
		mode = policy.GroupMode(request.Mode)
	}

	entry := policy.GroupEntry{
		GroupID: request.GroupID,
		Label:   request.Label,
		Allowed: allowed,
		Mode:    mode,
	}
	if err := handler.Store.AddGroup(c.UserContext(), entry); err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Group saved",
		Results: GroupEntryResponse{GroupID: entry.GroupID, Label: entry.Label, Allowed: entry.Allowed, Mode: string(entry.Mode)},
	})
}

func (handler *PolicyHandler) RemoveGroup(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := handler.Store.RemoveGroup(c.UserContext(), id); err != nil {
		return c.Status(500).JSON(ResponseData{Status: 500, Code: "INTERNAL_ERROR", Message: err.Error()})
	}

	return c.JSON(ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Group removed",
	})
}
