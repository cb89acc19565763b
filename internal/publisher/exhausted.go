// Package publisher публикует позиции, которые не удалось записать в леджер.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/albinvayalil/emartCheck/internal/model"
)

// ExhaustedQueue получает записи, исчерпавшие все попытки доставки в леджер.
const ExhaustedQueue = "ledger.record.exhausted"

// Broker описывает отправку сообщений в очередь.
type Broker interface {
	DeclareQueue(name string) error
	Publish(ctx context.Context, queue string, headers map[string]any, body []byte) error
}

// ExhaustedPublisher отправляет неотправленные записи в очередь для последующей обработки.
type ExhaustedPublisher struct {
	broker Broker
}

// NewExhaustedPublisher объявляет очередь и создаёт публикатор.
func NewExhaustedPublisher(broker Broker) (*ExhaustedPublisher, error) {
	if err := broker.DeclareQueue(ExhaustedQueue); err != nil {
		return nil, err
	}
	return &ExhaustedPublisher{broker: broker}, nil
}

// PublishExhausted публикует запись леджера. Идентификатор заказа и число попыток
// передаются в заголовках, тело совпадает с телом запроса к леджеру.
func (p *ExhaustedPublisher) PublishExhausted(ctx context.Context, batchID string, attempts int, payload model.RecordPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	headers := map[string]any{
		"batch_id": batchID,
		"attempts": int32(attempts),
	}

	return p.broker.Publish(ctx, ExhaustedQueue, headers, body)
}
