package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albinvayalil/emartCheck/internal/model"
)

func TestRedisCache_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCache(ctx, mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	want := model.UserDetails{UserID: "u1", KYCVerified: true, Balance: decimal.RequireFromString("50000.25")}
	require.NoError(t, c.Set(ctx, "userdetails:u1", want))

	raw, err := mr.Get("userdetails:u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u1","kyc_verified":true,"balance":50000.25}`, raw)
	assert.Equal(t, time.Minute, mr.TTL("userdetails:u1"))

	var got model.UserDetails
	require.NoError(t, c.Get(ctx, "userdetails:u1", &got))
	assert.Equal(t, want.UserID, got.UserID)
	assert.True(t, got.KYCVerified)
	assert.True(t, want.Balance.Equal(got.Balance))

	mr.FastForward(2 * time.Minute)

	err = c.Get(ctx, "userdetails:u1", &got)
	assert.True(t, errors.Is(err, ErrMiss))
}

func TestRedisCache_Miss(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCache(ctx, mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	var got model.UserDetails
	err = c.Get(ctx, "userdetails:ghost", &got)
	assert.True(t, errors.Is(err, ErrMiss))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewRedisCache(ctx, "127.0.0.1:1", time.Second)
	require.Error(t, err)
	require.Nil(t, c)
}
