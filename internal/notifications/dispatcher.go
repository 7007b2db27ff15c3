// Package notifications — асинхронная доставка уведомлений из очереди.
// Записи очереди создаются в транзакции вместе с изменением обмена,
// поэтому доставка гарантируется как минимум однократная: пока отметки
// sent_at нет, уведомление будет подхвачено следующим проходом.
package notifications

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// Sender доставляет одно уведомление получателю
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// Outbox — очередь недоставленных уведомлений
type Outbox interface {
	PendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkNotificationFailed(ctx context.Context, id uuid.UUID) error
}

// Dispatcher периодически выгребает очередь и отправляет уведомления
type Dispatcher struct {
	outbox   Outbox
	sender   Sender
	interval time.Duration
	batch    int
}

// NewDispatcher создает новый экземпляр Dispatcher
func NewDispatcher(outbox Outbox, sender Sender, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		outbox:   outbox,
		sender:   sender,
		interval: interval,
		batch:    100,
	}
}

// Run запускает цикл доставки до отмены контекста
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DispatchOnce(ctx); err != nil {
				log.Printf("❌ Ошибка доставки уведомлений: %v", err)
			}
		}
	}
}

// DispatchOnce обрабатывает один пакет недоставленных уведомлений.
// Неудачная доставка учитывается и остается в очереди до следующего прохода.
func (d *Dispatcher) DispatchOnce(ctx context.Context) error {
	pending, err := d.outbox.PendingNotifications(ctx, d.batch)
	if err != nil {
		return err
	}

	for _, n := range pending {
		if err := d.deliver(ctx, n); err != nil {
			log.Printf("⚠️ Уведомление %s (%s) не доставлено: %v", n.ID, n.Event, err)
			if markErr := d.outbox.MarkNotificationFailed(ctx, n.ID); markErr != nil {
				log.Printf("❌ Ошибка учета попытки доставки %s: %v", n.ID, markErr)
			}
			continue
		}
		if err := d.outbox.MarkNotificationSent(ctx, n.ID, time.Now()); err != nil {
			// отметка не записалась — уведомление уйдет повторно, это допустимо
			log.Printf("❌ Ошибка отметки уведомления %s: %v", n.ID, err)
		}
	}
	return nil
}

// deliver отправляет уведомление с короткими повторами внутри прохода
func (d *Dispatcher) deliver(ctx context.Context, n *models.Notification) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)
	return backoff.Retry(func() error {
		return d.sender.Send(ctx, n)
	}, policy)
}

// LogSender пишет уведомления в лог. Используется, пока внешний канал
// доставки не сконфигурирован.
type LogSender struct{}

// Send выводит уведомление в лог
func (LogSender) Send(ctx context.Context, n *models.Notification) error {
	log.Printf("🔔 Уведомление %s пользователю %s по обмену %s", n.Event, n.RecipientID, n.TradeID)
	return nil
}
