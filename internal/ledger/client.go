// Package ledger предоставляет клиент сервиса леджера, в который записываются позиции заказов.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/albinvayalil/emartCheck/internal/model"
)

// DefaultTimeout ограничивает один вызов леджера.
const DefaultTimeout = 5 * time.Second

const maxBodyLen = 1024

// Result описывает вид исхода одного вызова леджера.
type Result int

const (
	// Success означает, что леджер ответил успешным статусом.
	Success Result = iota
	// Rejected означает, что леджер доступен, но вернул неуспешный статус.
	Rejected
	// TransportFailure означает, что ответ от леджера не получен.
	TransportFailure
)

// String возвращает название исхода для логов и метрик.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	default:
		return "transport_failure"
	}
}

// Outcome содержит исход одного вызова леджера.
type Outcome struct {
	Result     Result
	StatusCode int
	Body       string
	Reason     string
}

// OK сообщает, что запись принята леджером.
func (o Outcome) OK() bool {
	return o.Result == Success
}

// Client инкапсулирует HTTP-взаимодействие с леджером.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient создаёт клиент леджера по указанному адресу. Нулевой timeout заменяется на DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL:    base,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Record отправляет одну запись в леджер. Выполняет ровно один HTTP-запрос и не повторяет его.
func (c *Client) Record(ctx context.Context, payload model.RecordPayload) Outcome {
	if c == nil || c.baseURL == "" {
		return transportFailure(fmt.Errorf("ledger client not configured"))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return transportFailure(fmt.Errorf("encode payload: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/record", bytes.NewReader(body))
	if err != nil {
		return transportFailure(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportFailure(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLen))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{
			Result:     Rejected,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return Outcome{
		Result:     Success,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
}

func transportFailure(err error) Outcome {
	return Outcome{
		Result: TransportFailure,
		Reason: err.Error(),
	}
}
