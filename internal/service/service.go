// Package service реализует бизнес-логику сервиса приёма заказов.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/albinvayalil/emartCheck/internal/dispatch"
	"github.com/albinvayalil/emartCheck/internal/metrics"
	"github.com/albinvayalil/emartCheck/internal/model"
	"github.com/albinvayalil/emartCheck/internal/repository"
	"github.com/albinvayalil/emartCheck/internal/scenario"
	"github.com/albinvayalil/emartCheck/internal/validation"
)

// ErrInvalidCredentials возвращается, если пользователь не найден или пароль не совпал.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DefaultWorkers задаёт число одновременных отправок позиций одного заказа.
const DefaultWorkers = 4

const sinkTimeout = 5 * time.Second

// Repository описывает контракт справочника пользователей, используемый сервисом.
type Repository interface {
	Close() error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserDetails(ctx context.Context, id string) (*model.UserDetails, error)
}

// ItemDispatcher доставляет одну позицию в леджер.
type ItemDispatcher interface {
	Dispatch(ctx context.Context, batch dispatch.Batch, item model.OrderItem) dispatch.Result
}

// ExhaustedSink принимает записи, которые не удалось доставить.
type ExhaustedSink interface {
	PublishExhausted(ctx context.Context, batchID string, attempts int, payload model.RecordPayload) error
}

// CredentialChecker сравнивает предъявленный пароль с учётной записью.
type CredentialChecker interface {
	Match(user *model.User, password string) bool
}

// PlaintextChecker сравнивает пароли в открытом виде, как они хранятся в справочнике.
type PlaintextChecker struct{}

// Match сравнивает пароли за постоянное время.
func (PlaintextChecker) Match(user *model.User, password string) bool {
	return subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) == 1
}

// Option настраивает Service.
type Option func(*Service)

// WithScenarios подключает сценарии внедрения сбоев.
func WithScenarios(s *scenario.Injector) Option {
	return func(svc *Service) {
		svc.scenarios = s
	}
}

// WithCredentialChecker заменяет способ проверки пароля.
func WithCredentialChecker(c CredentialChecker) Option {
	return func(svc *Service) {
		svc.credentials = c
	}
}

// WithExhaustedSink подключает очередь для недоставленных записей.
func WithExhaustedSink(sink ExhaustedSink) Option {
	return func(svc *Service) {
		svc.sink = sink
	}
}

// WithWorkers задаёт число одновременных отправок позиций. 1 означает последовательную отправку.
func WithWorkers(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.workers = n
		}
	}
}

// WithMetrics подключает сбор метрик по заказам.
func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) {
		svc.metrics = m
	}
}

// Service содержит бизнес-логику сервиса приёма заказов.
type Service struct {
	repo        Repository
	dispatcher  ItemDispatcher
	scenarios   *scenario.Injector
	credentials CredentialChecker
	sink        ExhaustedSink
	metrics     *metrics.Metrics
	logger      *zap.Logger
	workers     int
}

// NewService создаёт новый сервис.
func NewService(repo Repository, dispatcher ItemDispatcher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:        repo,
		dispatcher:  dispatcher,
		credentials: PlaintextChecker{},
		logger:      logger,
		workers:     DefaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// ValidateUser проверяет учётные данные и возвращает email пользователя.
// Для пользователей со сценарием login_delay проверка выполняется после задержки.
func (s *Service) ValidateUser(ctx context.Context, userID, password string) (string, error) {
	delayed, err := s.scenarios.BeforeLogin(ctx, userID)
	if delayed {
		s.logger.Info("simulated login delay", zap.String("user_id", userID))
	}
	if err != nil {
		return "", err
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Info("validate user", zap.String("user_id", userID), zap.Bool("found", false))
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !s.credentials.Match(u, password) {
		s.logger.Info("validate user", zap.String("user_id", userID), zap.Bool("found", false))
		return "", ErrInvalidCredentials
	}

	s.logger.Info("validate user", zap.String("user_id", userID), zap.Bool("found", true))
	return u.Email, nil
}

// GetUserDetails возвращает KYC-статус и баланс пользователя.
func (s *Service) GetUserDetails(ctx context.Context, userID string) (*model.UserDetails, error) {
	return s.repo.GetUserDetails(ctx, userID)
}

// SubmitOrder проверяет заказ, отправляет все позиции в леджер и агрегирует результат.
// Позиции независимы: исчерпание попыток по одной не прерывает остальные.
func (s *Service) SubmitOrder(ctx context.Context, req model.OrderRequest) (model.BatchResult, error) {
	if err := validation.ValidateOrder(req); err != nil {
		return model.BatchResult{}, err
	}

	batch := dispatch.Batch{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		TotalAmount: req.TotalAmount,
	}

	log := s.logger.With(zap.String("batch_id", batch.ID), zap.String("user_id", req.UserID))
	log.Info("order received", zap.Int("items", len(req.Items)), zap.Stringer("total", req.TotalAmount))

	results := make([]dispatch.Result, len(req.Items))
	var delivered atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, item := range req.Items {
		g.Go(func() error {
			res := s.dispatcher.Dispatch(ctx, batch, item)
			results[i] = res
			if res.Outcome == model.ItemDelivered {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.Outcome == model.ItemExhausted {
			s.publishExhausted(ctx, batch.ID, res)
		}
	}

	result := model.BatchResult{
		Delivered: int(delivered.Load()),
		Total:     len(req.Items),
	}

	s.metrics.ObserveBatch(string(result.Status()), strconv.Itoa(result.HTTPStatus()))
	log.Info("order processed",
		zap.Int("delivered", result.Delivered),
		zap.Int("total", result.Total),
		zap.String("status", string(result.Status())),
	)

	return result, nil
}

func (s *Service) publishExhausted(ctx context.Context, batchID string, res dispatch.Result) {
	if s.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := s.sink.PublishExhausted(ctx, batchID, len(res.Attempts), res.Payload); err != nil {
		s.logger.Error("publish exhausted record",
			zap.String("batch_id", batchID),
			zap.String("product_id", res.Payload.ProductID),
			zap.Error(err),
		)
	}
}
