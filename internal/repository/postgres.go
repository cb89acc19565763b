// Package repository содержит реализацию справочника пользователей в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/albinvayalil/emartCheck/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var ErrUserNotFound = errors.New("user not found")

const (
	// ConnectAttempts ограничивает число попыток подключения к БД при старте.
	ConnectAttempts = 10
	// ConnectBackoff задаёт паузу между попытками подключения.
	ConnectBackoff = 3 * time.Second

	pingTimeout = 5 * time.Second
)

// PostgresRepository предоставляет доступ к справочнику пользователей в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт пул соединений, дожидается доступности БД
// и применяет миграции (создание и начальное заполнение таблицы users).
func NewPostgresRepository(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := waitForDatabase(ctx, pool, logger, retry.NewConstant(ConnectBackoff)); err != nil {
		pool.Close()
		return nil, err
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func waitForDatabase(ctx context.Context, db pinger, logger *zap.Logger, backoff retry.Backoff) error {
	attempt := 0
	err := retry.Do(ctx, retry.WithMaxRetries(ConnectAttempts-1, backoff), func(ctx context.Context) error {
		attempt++

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := db.Ping(pingCtx); err != nil {
			logger.Warn("waiting for postgres",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", ConnectAttempts),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect to postgres after %d attempts: %w", attempt, err)
	}

	logger.Info("connected to postgres", zap.Int("attempt", attempt))
	return nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

func withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(retryDelays) {
			return err
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}

	return err
}

func isRetryable(err error) bool {
	// Ошибки контекста не повторяем
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgErr.Code == pgerrcode.AdminShutdown ||
			pgErr.Code == pgerrcode.CannotConnectNow
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetUserByID возвращает запись пользователя вместе с учётными данными.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var (
		u       model.User
		balance string
	)

	err := withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(password, ''),
			        COALESCE(kyc_verified, FALSE), COALESCE(balance, 0)::text
			 FROM users WHERE id = $1`,
			id,
		).Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.KYCVerified, &balance)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}

	return &u, nil
}

// GetUserDetails возвращает KYC-статус и баланс пользователя.
func (r *PostgresRepository) GetUserDetails(ctx context.Context, id string) (*model.UserDetails, error) {
	var (
		kyc     bool
		balance string
	)

	err := withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COALESCE(kyc_verified, FALSE), COALESCE(balance, 0)::text FROM users WHERE id = $1`,
			id,
		).Scan(&kyc, &balance)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user details: %w", err)
	}

	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}

	return &model.UserDetails{
		UserID:      id,
		KYCVerified: kyc,
		Balance:     amount,
	}, nil
}
