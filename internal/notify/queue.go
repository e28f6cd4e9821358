package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// consumerTag: тег потребителя очереди писем.
const consumerTag = "eventgate-email-worker"

// Queue: очередь писем в RabbitMQ. Send публикует письмо (с подтверждением
// брокера), Consume забирает письма и доставляет их через указанный транспорт.
type Queue struct {
	conn   *amqp.Connection
	pub    *amqp.Channel
	name   string
	mu     sync.Mutex
	logger *slog.Logger
}

// DialQueue подключается к RabbitMQ и объявляет durable-очередь name.
func DialQueue(url, name string, logger *slog.Logger) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
	}

	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ошибка объявления очереди %s: %w", name, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ошибка включения подтверждений публикации: %w", err)
	}

	logger = logger.With(slog.String("component", "email_queue"))
	logger.Info("Очередь писем RabbitMQ инициализирована", slog.String("queue", name))

	return &Queue{conn: conn, pub: ch, name: name, logger: logger}, nil
}

// Send публикует письмо в очередь и ждёт подтверждения брокера.
func (q *Queue) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ошибка сериализации письма: %w", err)
	}

	q.mu.Lock()
	confirm, err := q.pub.PublishWithDeferredConfirmWithContext(ctx,
		"",     // exchange по умолчанию
		q.name, // routing key = имя очереди
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ошибка публикации письма: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("ошибка ожидания подтверждения публикации: %w", err)
	}
	if !acked {
		return errors.New("брокер отклонил публикацию письма")
	}

	q.logger.Debug("Письмо поставлено в очередь",
		slog.String("subject", msg.Subject),
		slog.String("ref", msg.Ref),
	)
	return nil
}

// Consume обрабатывает очередь до отмены ctx, доставляя письма через delivery.
// Успех: ack; ErrPermanent, битое сообщение или повторная неудача, nack без
// возврата в очередь; первая временная ошибка: nack с возвратом.
func (q *Queue) Consume(ctx context.Context, delivery Sender, prefetch int) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("ошибка открытия канала потребителя: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("ошибка настройки prefetch: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx,
		q.name,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("ошибка подписки на очередь %s: %w", q.name, err)
	}

	q.logger.Info("Обработчик очереди писем запущен", slog.String("queue", q.name))

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Обработчик очереди писем остановлен")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("канал доставки RabbitMQ закрыт")
			}
			q.handle(ctx, d, delivery)
		}
	}
}

func (q *Queue) handle(ctx context.Context, d amqp.Delivery, delivery Sender) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		q.logger.Error("Некорректное сообщение в очереди писем",
			slog.String("message_id", d.MessageId),
			slog.String("error", err.Error()),
		)
		_ = d.Nack(false, false)
		return
	}

	if err := delivery.Send(ctx, &msg); err != nil {
		requeue := !errors.Is(err, ErrPermanent) && !d.Redelivered
		q.logger.Error("Ошибка доставки письма из очереди",
			slog.String("message_id", d.MessageId),
			slog.String("ref", msg.Ref),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
}

// Close закрывает канал публикации и соединение.
func (q *Queue) Close() error {
	if err := q.pub.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		q.logger.Warn("Ошибка закрытия канала RabbitMQ", slog.String("error", err.Error()))
	}
	return q.conn.Close()
}
