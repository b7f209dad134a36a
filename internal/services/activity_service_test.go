package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/clock"
	"github.com/axellelanca/affiliatelinks/internal/database/dbtest"
	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
	"github.com/axellelanca/affiliatelinks/internal/repository"
)

func TestActivityService(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := NewActivityService(repository.NewActivityRepository(dbtest.New(t)), clk, zap.NewNop())

	t.Run("rejects click entries", func(t *testing.T) {
		_, err := svc.Log(ctx, ActivityInput{Type: models.ActivityClick})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("recent returns newest first", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			clk.Advance(time.Minute)
			_, err := svc.Log(ctx, ActivityInput{Type: models.ActivityLogin, Subject: "admin"})
			require.NoError(t, err)
		}
		clk.Advance(time.Minute)
		_, err := svc.Log(ctx, ActivityInput{Type: models.ActivityBroadcast, Subject: "weekly digest"})
		require.NoError(t, err)

		recent, err := svc.Recent(ctx, 0)
		require.NoError(t, err)
		require.Len(t, recent, 4)
		assert.Equal(t, models.ActivityBroadcast, recent[0].Type)

		two, err := svc.Recent(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, two, 2)
	})

	t.Run("prune", func(t *testing.T) {
		deleted, err := svc.Prune(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)

		recent, err := svc.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, models.ActivityBroadcast, recent[0].Type)
	})
}
