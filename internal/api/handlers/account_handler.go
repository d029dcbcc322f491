package handlers

import (
	"github.com/gofiber/fiber/v2"

	config "crosspost/configs"
	"crosspost/internal/service"
)

type AccountHandler struct {
	s   service.AccountService
	cfg config.Config
}

func NewAccountHandler(cfg config.Config, service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service, cfg: cfg}
}

func (h *AccountHandler) Connect(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platformName := c.Params("platform")

	url, err := h.s.ConnectURL(c.Context(), userID, platformName)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Redirect(url)
}

func (h *AccountHandler) Callback(c *fiber.Ctx) error {
	platformName := c.Params("platform")
	code := c.Query("code")
	state := c.Query("state")

	if err := h.s.Callback(c.Context(), platformName, code, state); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to connect account",
		})
	}

	return c.Redirect(h.cfg.FrontendURL+"/accounts", fiber.StatusTemporaryRedirect)
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accounts, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) Disconnect(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	if err := h.s.Disconnect(c.Context(), userID, int64(accountID)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *AccountHandler) SetPostingEnabled(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)
	enabled := c.QueryBool("enabled", true)

	if err := h.s.SetPostingEnabled(c.Context(), userID, int64(accountID), enabled); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
