package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/albinvayalil/emartCheck/internal/cache"
	"github.com/albinvayalil/emartCheck/internal/model"
)

// Cache описывает хранилище закэшированных значений.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Close() error
}

// UserStore описывает справочник пользователей.
type UserStore interface {
	Close() error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserDetails(ctx context.Context, id string) (*model.UserDetails, error)
}

// CachedRepository кэширует KYC-статус и баланс пользователей.
// Учётные данные всегда читаются из основного хранилища.
type CachedRepository struct {
	store  UserStore
	cache  Cache
	logger *zap.Logger
}

// NewCachedRepository оборачивает справочник кэшем.
func NewCachedRepository(store UserStore, c Cache, logger *zap.Logger) *CachedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRepository{
		store:  store,
		cache:  c,
		logger: logger,
	}
}

func detailsKey(id string) string {
	return "userdetails:" + id
}

// GetUserByID возвращает пользователя из основного хранилища.
func (r *CachedRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.store.GetUserByID(ctx, id)
}

// GetUserDetails возвращает данные из кэша, при промахе читает справочник и кэширует результат.
func (r *CachedRepository) GetUserDetails(ctx context.Context, id string) (*model.UserDetails, error) {
	key := detailsKey(id)

	var cached model.UserDetails
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn("user details cache read failed", zap.String("user_id", id), zap.Error(err))
	}

	details, err := r.store.GetUserDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, details); err != nil {
		r.logger.Warn("user details cache write failed", zap.String("user_id", id), zap.Error(err))
	}

	return details, nil
}

// Close закрывает кэш и основное хранилище.
func (r *CachedRepository) Close() error {
	cacheErr := r.cache.Close()
	storeErr := r.store.Close()
	return errors.Join(storeErr, cacheErr)
}
