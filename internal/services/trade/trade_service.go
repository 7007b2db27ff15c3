package trade

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/lifecycle"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

// TradeService представляет HTTP-слой для работы с обменами навыками
type TradeService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	lifecycle  *lifecycle.Service
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(cfg *config.Config, lc *lifecycle.Service) *TradeService {
	return &TradeService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		lifecycle:  lc,
	}
}

// actorID извлекает UUID пользователя из контекста запроса
func actorID(c fiber.Ctx) (uuid.UUID, error) {
	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		return uuid.Nil, errors.New("пользователь не авторизован")
	}
	return uuid.Parse(userID)
}

// CreateTrade создает новый обмен навыками
func (s *TradeService) CreateTrade(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var params lifecycle.CreateTradeParams
	if err := c.Bind().Body(&params); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trade, err := s.lifecycle.CreateTrade(ctx, userID, params)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"trade":   trade,
	})
}

// GetMyTrades возвращает обмены пользователя
func (s *TradeService) GetMyTrades(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	role := c.Query("role", "all")  // all, created, participating
	status := c.Query("status", "") // пусто — все статусы

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trades, err := s.lifecycle.ListUserTrades(ctx, userID, role, models.TradeStatus(status))
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"trades": trades,
		"count":  len(trades),
	})
}

// GetTrade возвращает один обмен по ID
func (s *TradeService) GetTrade(c fiber.Ctx) error {
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trade, err := s.lifecycle.GetTrade(ctx, tradeID)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"trade": trade})
}

// SubmitProposal создает отклик на обмен
func (s *TradeService) SubmitProposal(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	var params lifecycle.ProposalParams
	if err := c.Bind().Body(&params); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	proposal, err := s.lifecycle.SubmitProposal(ctx, tradeID, userID, params)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"proposal": proposal,
	})
}

// ListProposals возвращает отклики по обмену
func (s *TradeService) ListProposals(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	proposals, err := s.lifecycle.ListProposals(ctx, tradeID, userID)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

// AcceptProposal принимает отклик и запускает обмен
func (s *TradeService) AcceptProposal(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}
	proposalID, err := uuid.Parse(c.Params("proposalId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID отклика"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trade, err := s.lifecycle.AcceptProposal(ctx, tradeID, proposalID, userID)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Отклик принят, обмен запущен",
		"trade":   trade,
	})
}

// RequestCompletion фиксирует заявку на завершение обмена
func (s *TradeService) RequestCompletion(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	var requestData struct {
		Notes    string                    `json:"notes"`
		Evidence []lifecycle.EvidenceInput `json:"evidence"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trade, err := s.lifecycle.RequestCompletion(ctx, tradeID, userID, requestData.Notes, requestData.Evidence)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"trade":   trade,
	})
}

// ConfirmCompletion подтверждает заявку на завершение
func (s *TradeService) ConfirmCompletion(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trade, err := s.lifecycle.Confirm(ctx, tradeID, userID)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Обмен завершён",
		"trade":   trade,
	})
}

// RequestChanges возвращает обмен на доработку
func (s *TradeService) RequestChanges(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	var requestData struct {
		Feedback string `json:"feedback"`
	}
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trade, err := s.lifecycle.RequestChanges(ctx, tradeID, userID, requestData.Feedback)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Заявка возвращена на доработку",
		"trade":   trade,
	})
}

// CancelTrade отменяет обмен
func (s *TradeService) CancelTrade(c fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}
	tradeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID обмена"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	trade, err := s.lifecycle.CancelTrade(ctx, tradeID, userID)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Обмен отменён",
		"trade":   trade,
	})
}

// errorResponse переводит типизированные ошибки бизнес-логики в HTTP-статусы
func (s *TradeService) errorResponse(c fiber.Ctx, err error) error {
	var (
		notFound     *lifecycle.NotFoundError
		authErr      *lifecycle.AuthorizationError
		invalidState *lifecycle.InvalidStateError
		terminal     *lifecycle.AlreadyTerminalError
		validation   *lifecycle.ValidationError
		resolved     *lifecycle.ProposalResolvedError
	)

	switch {
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &authErr):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &invalidState), errors.As(err, &terminal), errors.As(err, &resolved):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrConcurrencyConflict):
		// повторы внутри сервиса исчерпаны
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Обмен изменяется другим пользователем, попробуйте еще раз"})
	}

	log.Printf("Ошибка операции с обменом: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Внутренняя ошибка сервера"})
}
