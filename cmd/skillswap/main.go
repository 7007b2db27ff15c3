package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/lifecycle"
	"github.com/rajivgeraev/skillswap-api/internal/notifications"
	"github.com/rajivgeraev/skillswap-api/internal/rewards"
	"github.com/rajivgeraev/skillswap-api/internal/services/auth"
	"github.com/rajivgeraev/skillswap-api/internal/services/evidence"
	"github.com/rajivgeraev/skillswap-api/internal/services/trade"
	"github.com/rajivgeraev/skillswap-api/internal/storage/postgres"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	// Инициализируем базу данных
	if err := db.InitDB(cfg); err != nil {
		log.Fatalf("❌ Ошибка при инициализации базы данных: %v", err)
	}
	defer db.CloseDB()

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "SkillSwap API (MVP)",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// Хранилище и ядро жизненного цикла
	store := postgres.NewStore(db.Pool)
	rewardClient := rewards.NewClient(cfg.GamificationURL)
	lifecycleService := lifecycle.NewService(store, rewardClient, cfg.TxRetryAttempts)

	// Создаём сервисы
	authService := auth.NewAuthService(cfg)
	evidenceService := evidence.NewEvidenceService(cfg)
	tradeService := trade.NewTradeService(cfg, lifecycleService)

	// Регистрируем маршруты
	authService.SetupRoutes(app)
	evidenceService.SetupRoutes(app)
	tradeService.SetupRoutes(app)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Асинхронная доставка уведомлений из очереди
	dispatcher := notifications.NewDispatcher(store, notifications.LogSender{}, 5*time.Second)
	go dispatcher.Run(ctx)

	// Планировщик авторазрешения зависших обменов
	if cfg.SchedulerConfig.Interval > 0 {
		resolver := lifecycle.NewResolver(store, rewardClient,
			cfg.SchedulerConfig.RemindAfter, cfg.SchedulerConfig.CompleteAfter)
		go runResolver(ctx, resolver, cfg.SchedulerConfig.Interval)
	}

	// Запускаем сервер
	log.Println("✅ SkillSwap API запущен на порту 8080")
	log.Fatal(app.Listen(":8080"))
}

// runResolver запускает периодические проходы планировщика
func runResolver(ctx context.Context, resolver *lifecycle.Resolver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := resolver.Run(ctx, time.Now())
			if err != nil {
				log.Printf("❌ Ошибка прохода планировщика: %v", err)
				continue
			}
			if stats.Scanned > 0 {
				log.Printf("⏰ Планировщик: проверено %d, напоминаний %d, автозавершено %d, ошибок %d",
					stats.Scanned, stats.Reminded, stats.AutoCompleted, stats.Failed)
			}
		}
	}
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
