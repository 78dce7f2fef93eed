package events

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	ctx := context.Background()

	t.Run("HandlersRunInSubscriptionOrder", func(t *testing.T) {
		bus := NewBus()
		var order []string
		bus.SubscribeFunc(TypeStageChanged, func(ctx context.Context, e Event) error {
			order = append(order, "first")
			return nil
		})
		bus.SubscribeFunc(TypeStageChanged, func(ctx context.Context, e Event) error {
			order = append(order, "second")
			return nil
		})

		errs := bus.Publish(ctx, Event{Type: TypeStageChanged, Stage: "impl"})
		assert.Empty(t, errs)
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("TypeFiltering", func(t *testing.T) {
		bus := NewBus()
		called := false
		bus.SubscribeFunc(TypeItemChecked, func(ctx context.Context, e Event) error {
			called = true
			return nil
		})

		bus.Publish(ctx, Event{Type: TypeStageChanged})
		assert.False(t, called)

		bus.Publish(ctx, Event{Type: TypeItemChecked})
		assert.True(t, called)
	})

	t.Run("ErrorsCollectedNotFatal", func(t *testing.T) {
		bus := NewBus()
		bus.SubscribeFunc(TypeRetryExhausted, func(ctx context.Context, e Event) error {
			return errors.New("handler one failed")
		})
		ran := false
		bus.SubscribeFunc(TypeRetryExhausted, func(ctx context.Context, e Event) error {
			ran = true
			return nil
		})

		errs := bus.Publish(ctx, Event{Type: TypeRetryExhausted})
		assert.Len(t, errs, 1)
		assert.True(t, ran, "a failing handler does not stop later handlers")
	})

	t.Run("HasSubscribers", func(t *testing.T) {
		bus := NewBus()
		assert.False(t, bus.HasSubscribers(TypeStatusRendered))
		bus.SubscribeFunc(TypeStatusRendered, func(ctx context.Context, e Event) error { return nil })
		assert.True(t, bus.HasSubscribers(TypeStatusRendered))
	})
}

func TestStatusFileWriter(t *testing.T) {
	ctx := context.Background()

	t.Run("WritesHookFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hooks", "status.md")
		w := NewStatusFileWriter(path)
		w.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

		err := w.Handle(ctx, Event{
			Type: TypeStatusRendered,
			Data: map[string]interface{}{"rendered": "Current stage: impl\n"},
		})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		content := string(data)
		assert.Contains(t, content, "[CURRENT WORKFLOW STATE]")
		assert.Contains(t, content, "2026-03-01 12:00:00")
		assert.Contains(t, content, "Current stage: impl")
	})

	t.Run("IgnoresEventsWithoutRendering", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "status.md")
		w := NewStatusFileWriter(path)

		require.NoError(t, w.Handle(ctx, Event{Type: TypeStatusRendered}))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})
}
