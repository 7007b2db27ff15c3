package evidence

import (
	"fmt"
	"net/url"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

// EvidenceService выдает подписанные параметры загрузки файлов-подтверждений
// в Cloudinary. Сами файлы клиент загружает напрямую, в заявку на завершение
// попадает только итоговый URL.
type EvidenceService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
}

// NewEvidenceService создает новый экземпляр EvidenceService
func NewEvidenceService(cfg *config.Config) *EvidenceService {
	return &EvidenceService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
	}
}

// GenerateUploadParams создаёт подписанные параметры для загрузки подтверждений
func (s *EvidenceService) GenerateUploadParams(c fiber.Ctx) error {
	// Группируем загрузки по обмену
	tradeID := c.Query("trade_id")
	if tradeID == "" {
		tradeID = uuid.New().String()
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	params := url.Values{}
	params.Set("timestamp", timestamp)
	params.Set("upload_preset", s.cfg.CloudinaryConfig.UploadPreset)
	params.Set("folder", "evidence/"+tradeID)

	signature, err := api.SignParameters(params, s.cfg.CloudinaryConfig.APISecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка формирования подписи загрузки"})
	}

	return c.JSON(fiber.Map{
		"timestamp":     timestamp,
		"signature":     signature,
		"api_key":       s.cfg.CloudinaryConfig.APIKey,
		"cloud_name":    s.cfg.CloudinaryConfig.CloudName,
		"upload_preset": s.cfg.CloudinaryConfig.UploadPreset,
		"folder":        "evidence/" + tradeID,
		"trade_id":      tradeID,
	})
}
