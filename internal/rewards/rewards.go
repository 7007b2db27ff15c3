// Package rewards — клиент внешней подсистемы геймификации.
// Сам расчет XP живет в отдельном сервисе; здесь только вызов его API
// в момент завершения обмена.
package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client реализует lifecycle.RewardPort поверх HTTP API сервиса геймификации
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient создает новый экземпляр Client.
// Пустой baseURL отключает начисление (полезно для локальной разработки).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// AwardCompletion начисляет награду обеим сторонам завершенного обмена
func (c *Client) AwardCompletion(ctx context.Context, tradeID, creatorID, participantID uuid.UUID) error {
	if c.baseURL == "" {
		log.Printf("⚠️ Сервис геймификации не настроен, награда за обмен %s пропущена", tradeID)
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"trade_id":       tradeID.String(),
		"creator_id":     creatorID.String(),
		"participant_id": participantID.String(),
	})
	if err != nil {
		return fmt.Errorf("ошибка сериализации запроса награды: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/xp/award", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса награды: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка вызова сервиса геймификации: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("сервис геймификации вернул статус %d", resp.StatusCode)
	}
	return nil
}
