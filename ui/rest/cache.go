package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	settingsApp "github.com/AzielCF/az-mediacache/core/settings/application"
	"github.com/AzielCF/az-mediacache/mediacache/application"
	"github.com/AzielCF/az-mediacache/mediacache/eviction"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
	"github.com/AzielCF/az-mediacache/pkg/utils"
)

type Cache struct {
	Service    *application.CacheService
	Rehydrator *application.Rehydrator
	Settings   *settingsApp.SettingsService
	// Base is the eviction config before runtime overrides.
	Base eviction.Config
}

func InitRestCache(app fiber.Router, handler Cache) Cache {
	app.Get("/cache/stats", handler.GetStats)
	app.Post("/cache/clear", handler.ClearAll)
	app.Post("/cache/prune", handler.Prune)
	app.Get("/cache/settings", handler.GetSettings)
	app.Put("/cache/settings", handler.UpdateSettings)
	app.Delete("/cache/settings", handler.ResetSettings)

	app.Post("/cache/entries", handler.StoreEntry)
	app.Get("/cache/entries/:id", handler.GetEntry)
	app.Delete("/cache/entries/:id", handler.DeleteEntry)
	app.Get("/cache/owners/:owner/entries", handler.ListByOwner)
	app.Delete("/cache/owners/:owner/entries", handler.DeleteByOwner)
	app.Get("/cache/groups/:group/entries", handler.ListByGroup)
	app.Delete("/cache/groups/:group/entries", handler.DeleteByGroup)

	return handler
}

func (handler *Cache) GetStats(c *fiber.Ctx) error {
	stats, err := handler.Service.Stats(c.UserContext())
	utils.PanicIfNeeded(err)

	res := StatsResponse{Cache: stats}
	if handler.Rehydrator != nil {
		res.Rehydrate = handler.Rehydrator.Stats()
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache stats retrieved",
		Results: res,
	})
}

func (handler *Cache) ClearAll(c *fiber.Ctx) error {
	err := handler.Service.ClearAll(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache cleared successfully",
	})
}

func (handler *Cache) Prune(c *fiber.Ctx) error {
	plan, err := handler.Service.Prune(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache pruned",
		Results: plan,
	})
}

func (handler *Cache) GetSettings(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache settings retrieved",
		Results: toSettingsResponse(handler.Service.Engine().Config()),
	})
}

func (handler *Cache) UpdateSettings(c *fiber.Ctx) error {
	if handler.Settings == nil {
		utils.PanicIfNeeded(pkgError.NotFoundError("runtime settings are not enabled for this store"))
	}

	var overrides settingsApp.EvictionOverrides
	if err := c.BodyParser(&overrides); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	merged, err := handler.Settings.Update(c.UserContext(), handler.Base, overrides)
	utils.PanicIfNeeded(err)
	utils.PanicIfNeeded(handler.Service.Engine().SetConfig(merged))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache settings updated successfully",
		Results: toSettingsResponse(merged),
	})
}

func (handler *Cache) ResetSettings(c *fiber.Ctx) error {
	if handler.Settings == nil {
		utils.PanicIfNeeded(pkgError.NotFoundError("runtime settings are not enabled for this store"))
	}

	utils.PanicIfNeeded(handler.Settings.Reset(c.UserContext()))
	utils.PanicIfNeeded(handler.Service.Engine().SetConfig(handler.Base))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache settings reset",
		Results: toSettingsResponse(handler.Base),
	})
}

func (handler *Cache) StoreEntry(c *fiber.Ctx) error {
	var req StoreEntryRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if err := req.Validate(); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	entry, err := handler.Service.Store(c.UserContext(), application.StoreRequest{
		ID:        req.ID,
		OwnerID:   req.OwnerID,
		GroupID:   req.GroupID,
		Payload:   req.Payload,
		Label:     req.Label,
		RemoteRef: req.RemoteRef,
	})
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Entry stored",
		Results: entry.Meta(),
	})
}

func (handler *Cache) GetEntry(c *fiber.Ctx) error {
	entry, ok, err := handler.Service.Get(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)
	if !ok {
		utils.PanicIfNeeded(pkgError.NotFoundError("cache entry not found"))
	}
	if c.QueryBool("meta") {
		entry = entry.Meta()
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Entry retrieved",
		Results: entry,
	})
}

func (handler *Cache) DeleteEntry(c *fiber.Ctx) error {
	n, err := handler.Service.Delete(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)
	return deleted(c, n)
}

func (handler *Cache) ListByOwner(c *fiber.Ctx) error {
	entries, err := handler.Service.GetByOwner(c.UserContext(), c.Params("owner"))
	utils.PanicIfNeeded(err)
	return listed(c, entries)
}

func (handler *Cache) DeleteByOwner(c *fiber.Ctx) error {
	n, err := handler.Service.DeleteByOwner(c.UserContext(), c.Params("owner"))
	utils.PanicIfNeeded(err)
	return deleted(c, n)
}

func (handler *Cache) ListByGroup(c *fiber.Ctx) error {
	entries, err := handler.Service.GetByGroup(c.UserContext(), c.Params("group"))
	utils.PanicIfNeeded(err)
	return listed(c, entries)
}

func (handler *Cache) DeleteByGroup(c *fiber.Ctx) error {
	n, err := handler.Service.DeleteByGroup(c.UserContext(), c.Params("group"))
	utils.PanicIfNeeded(err)
	return deleted(c, n)
}
