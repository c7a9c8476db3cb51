package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "immersion/pkg/domain-errors"
)

func TestInMemory_RunInTx(t *testing.T) {
	uow := NewInMemory()

	t.Run("commit keeps writes", func(t *testing.T) {
		state := 0
		err := uow.RunInTx(context.Background(), func(ctx context.Context) error {
			state = 1
			OnRollback(ctx, func() { state = 0 })
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, state)
	})

	t.Run("failure undoes in reverse order", func(t *testing.T) {
		var undone []string
		boom := errors.New("boom")
		err := uow.RunInTx(context.Background(), func(ctx context.Context) error {
			OnRollback(ctx, func() { undone = append(undone, "first") })
			OnRollback(ctx, func() { undone = append(undone, "second") })
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"second", "first"}, undone)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := uow.RunInTx(ctx, func(context.Context) error { return nil })
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("rollback hook outside a unit of work is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() { OnRollback(context.Background(), func() {}) })
	})
}
