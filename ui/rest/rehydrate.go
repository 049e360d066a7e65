package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AzielCF/az-mediacache/mediacache/application"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
	"github.com/AzielCF/az-mediacache/pkg/utils"
)

type Rehydrate struct {
	Service *application.Rehydrator
	Session *application.Session
}

func InitRestRehydrate(app fiber.Router, handler Rehydrate) Rehydrate {
	app.Post("/rehydrate", handler.Enqueue)
	app.Post("/rehydrate/now", handler.RehydrateNow)
	app.Delete("/rehydrate/queue", handler.ClearQueue)
	app.Get("/rehydrate/status", handler.Status)
	app.Post("/session/sign-out", handler.SignOut)

	return handler
}

func parseRehydrate(c *fiber.Ctx) RehydrateRequest {
	var req RehydrateRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if err := req.Validate(); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	return req
}

func (handler *Rehydrate) Enqueue(c *fiber.Ctx) error {
	req := parseRehydrate(c)
	if req.ID == "" {
		req.ID = application.RefID(req.RemoteRef)
	}

	queued := handler.Service.Enqueue(req.ID, req.RemoteRef, req.OwnerID, req.GroupID)
	status, message := fiber.StatusAccepted, "Rehydration queued"
	if !queued {
		status, message = fiber.StatusOK, "Rehydration already pending"
	}

	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    "SUCCESS",
		Message: message,
		Results: fiber.Map{"id": req.ID, "queued": queued},
	})
}

func (handler *Rehydrate) RehydrateNow(c *fiber.Ctx) error {
	req := parseRehydrate(c)
	id := req.ID
	if id == "" {
		id = application.RefID(req.RemoteRef)
	}

	payload := handler.Service.RehydrateNow(c.UserContext(), id, req.RemoteRef, req.OwnerID, req.GroupID)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Payload resolved",
		Results: fiber.Map{
			"id":       id,
			"payload":  payload,
			"fallback": payload == req.RemoteRef,
		},
	})
}

func (handler *Rehydrate) ClearQueue(c *fiber.Ctx) error {
	dropped := handler.Service.ClearQueue()

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Rehydration queue cleared",
		Results: fiber.Map{"dropped": dropped},
	})
}

func (handler *Rehydrate) Status(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Rehydration status retrieved",
		Results: handler.Service.Stats(),
	})
}

func (handler *Rehydrate) SignOut(c *fiber.Ctx) error {
	utils.PanicIfNeeded(handler.Session.SignOut(c.UserContext()))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Signed out, cache cleared",
	})
}
