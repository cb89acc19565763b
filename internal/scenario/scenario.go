// Package scenario содержит конфигурацию сценариев внедрения сбоев для отдельных пользователей.
package scenario

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// LoginDelay задерживает проверку учётных данных пользователя.
	LoginDelay = "login_delay"
	// Normal означает отсутствие сценария для пользователя.
	Normal = "normal_flow"
)

// DefaultLoginDelay задаёт длительность задержки сценария LoginDelay.
const DefaultLoginDelay = 5 * time.Second

// Injector сопоставляет идентификатор пользователя со сценарием. Не изменяется после создания.
type Injector struct {
	scenarios  map[string]string
	loginDelay time.Duration
}

// New создаёт Injector из готового набора сценариев.
func New(scenarios map[string]string, loginDelay time.Duration) *Injector {
	copied := make(map[string]string, len(scenarios))
	for k, v := range scenarios {
		copied[k] = v
	}

	return &Injector{
		scenarios:  copied,
		loginDelay: loginDelay,
	}
}

// Load читает сценарии из файла в формате JSON или YAML.
// Для отсутствующего файла ошибка оборачивает fs.ErrNotExist.
func Load(path string) (*Injector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario config: %w", err)
	}

	var scenarios map[string]string
	if err := yaml.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("parse scenario config: %w", err)
	}

	return New(scenarios, DefaultLoginDelay), nil
}

// For возвращает сценарий пользователя или Normal.
func (i *Injector) For(userID string) string {
	if i == nil {
		return Normal
	}
	if s, ok := i.scenarios[userID]; ok && s != "" {
		return s
	}
	return Normal
}

// Len возвращает число настроенных сценариев.
func (i *Injector) Len() int {
	if i == nil {
		return 0
	}
	return len(i.scenarios)
}

// BeforeLogin применяет сценарий перед проверкой учётных данных.
// Возвращает true, если была выполнена задержка.
func (i *Injector) BeforeLogin(ctx context.Context, userID string) (bool, error) {
	if i.For(userID) != LoginDelay {
		return false, nil
	}

	timer := time.NewTimer(i.loginDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}
