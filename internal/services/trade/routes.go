package trade

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API обменов
func (s *TradeService) SetupRoutes(app *fiber.App) {
	// Группа для API обменов
	api := app.Group("/api/trades")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.CreateTrade)
	api.Get("/", s.GetMyTrades)
	api.Get("/:id", s.GetTrade)
	api.Post("/:id/cancel", s.CancelTrade)

	// Отклики
	api.Post("/:id/proposals", s.SubmitProposal)
	api.Get("/:id/proposals", s.ListProposals)
	api.Post("/:id/proposals/:proposalId/accept", s.AcceptProposal)

	// Протокол завершения
	api.Post("/:id/completion", s.RequestCompletion)
	api.Post("/:id/completion/confirm", s.ConfirmCompletion)
	api.Post("/:id/completion/changes", s.RequestChanges)
}
