package eventbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/cinesearch/internal/model"
)

func TestPublishInvokesHandlersInSubscriptionOrder(t *testing.T) {
	bus := New(nil)
	var calls []string

	Subscribe(bus, func(e StartIngestion) error {
		calls = append(calls, "first")
		return nil
	})
	Subscribe(bus, func(e StartIngestion) error {
		calls = append(calls, "second")
		assert.Equal(t, 3, e.Pages)
		return nil
	})
	Subscribe(bus, func(e IngestionCompleted) error {
		calls = append(calls, "other topic")
		return nil
	})

	bus.Publish(StartIngestion{Pages: 3})
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPublishContainsHandlerFailures(t *testing.T) {
	bus := New(nil)
	var reached bool

	Subscribe(bus, func(e CatalogSaved) error {
		return errors.New("boom")
	})
	Subscribe(bus, func(e CatalogSaved) error {
		panic("handler exploded")
	})
	Subscribe(bus, func(e CatalogSaved) error {
		reached = true
		return nil
	})

	require.NotPanics(t, func() { bus.Publish(CatalogSaved{}) })
	assert.True(t, reached)
}

func TestTypedHandlerRejectsWrongPayload(t *testing.T) {
	bus := New(nil)
	var typedCalled, nextCalled bool

	// 手工把 MoviesFetched 的处理函数挂到错误的主题上
	bus.SubscribeTopic(TopicIngestionCompleted, func(ev Event) error {
		_, ok := ev.(MoviesFetched)
		if !ok {
			return errors.New("unexpected payload")
		}
		typedCalled = true
		return nil
	})
	bus.SubscribeTopic(TopicIngestionCompleted, func(ev Event) error {
		nextCalled = true
		return nil
	})

	bus.Publish(IngestionCompleted{Fetched: 1})
	assert.False(t, typedCalled)
	assert.True(t, nextCalled)
}

func TestPublishRunsOnCallerBeforeReturning(t *testing.T) {
	bus := New(nil)
	var got IngestionCompleted

	Subscribe(bus, func(e MoviesFetched) error {
		bus.Publish(IngestionCompleted{Fetched: len(e.Movies)})
		return nil
	})
	Subscribe(bus, func(e IngestionCompleted) error {
		got = e
		return nil
	})

	bus.Publish(MoviesFetched{})
	assert.Equal(t, IngestionCompleted{}, got)

	bus.Publish(MoviesFetched{Movies: make([]model.RawMetadata, 2)})
	assert.Equal(t, 2, got.Fetched)
}
