package rest

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	"github.com/AzielCF/az-mediacache/pkg/utils"
	"github.com/AzielCF/az-mediacache/ui/rest/middleware"
)

type ServerConfig struct {
	BasePath  string
	BasicAuth []string
	BodyLimit int
}

// NewServer builds the admin API. Routes live under <BasePath>/api.
func NewServer(cfg ServerConfig, cache Cache, rehydrate Rehydrate) (*fiber.App, error) {
	fiberConfig := fiber.Config{
		AppName:               "az-mediacache",
		DisableStartupMessage: true,
		ServerHeader:          "Hidden",
	}
	if cfg.BodyLimit > 0 {
		fiberConfig.BodyLimit = cfg.BodyLimit
	}

	app := fiber.New(fiberConfig)
	app.Use(requestid.New())
	app.Use(middleware.Recovery())

	apiGroup := app.Group(cfg.BasePath + "/api")

	if len(cfg.BasicAuth) > 0 {
		account, err := parseBasicAuth(cfg.BasicAuth)
		if err != nil {
			return nil, err
		}
		apiGroup.Use(basicauth.New(basicauth.Config{Users: account}))
	}

	apiGroup.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok"})
	})
	InitRestCache(apiGroup, cache)
	InitRestRehydrate(apiGroup, rehydrate)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(utils.ResponseData{
			Status:  404,
			Code:    "NOT_FOUND",
			Message: "API endpoint not found: " + c.Path(),
		})
	})

	return app, nil
}

func parseBasicAuth(credentials []string) (map[string]string, error) {
	account := make(map[string]string, len(credentials))
	for _, basicAuth := range credentials {
		user, pass, ok := strings.Cut(strings.TrimSpace(basicAuth), ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("basic auth is not valid, use <user>:<secret>")
		}
		account[user] = pass
	}
	return account, nil
}

func deleted(c *fiber.Ctx, n int) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Entries deleted",
		Results: DeleteResult{Removed: n},
	})
}

func listed(c *fiber.Ctx, entries []domain.Entry) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Entries retrieved",
		Results: metas(entries),
	})
}
