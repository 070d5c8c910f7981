package upstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/ozzie/internal/transport"
)

func fakeConnector(tag string) Connector {
	return func(ctx context.Context) (transport.Port, error) {
		a, _ := transport.NewMemPortPair(1)
		_ = tag
		return a, nil
	}
}

func recordingConnector(called *bool) Connector {
	return func(ctx context.Context) (transport.Port, error) {
		*called = true
		a, _ := transport.NewMemPortPair(1)
		return a, nil
	}
}

func TestDispatcherResolvesDefaultWhenNoLegacy(t *testing.T) {
	d := NewDispatcher(fakeConnector("default"))
	c, err := d.Resolve()
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestDispatcherPrefersLegacyShim(t *testing.T) {
	var defaultCalled, legacyCalled bool
	d := NewDispatcher(recordingConnector(&defaultCalled))
	prev := d.Register("legacy", recordingConnector(&legacyCalled))
	assert.Nil(t, prev)

	c, err := d.Resolve()
	require.NoError(t, err)
	port, err := c(context.Background())
	require.NoError(t, err)
	require.NotNil(t, port)
	assert.True(t, legacyCalled)
	assert.False(t, defaultCalled)
}

func TestDispatcherRegisterReturnsPrevious(t *testing.T) {
	d := NewDispatcher(fakeConnector("default"))
	first := fakeConnector("legacy-1")
	d.Register("legacy", first)

	prev := d.Register("legacy", fakeConnector("legacy-2"))
	assert.NotNil(t, prev)
}

func TestDispatcherUnregisterRestoresDefault(t *testing.T) {
	var defaultCalled, legacyCalled bool
	d := NewDispatcher(recordingConnector(&defaultCalled))
	d.Register("legacy", recordingConnector(&legacyCalled))
	d.Unregister("legacy")

	_, ok := d.Named("legacy")
	assert.False(t, ok)

	c, err := d.Resolve()
	require.NoError(t, err)
	_, err = c(context.Background())
	require.NoError(t, err)
	assert.True(t, defaultCalled)
	assert.False(t, legacyCalled)
}

func TestDispatcherNoConnectorConfiguredErrors(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.Resolve()
	assert.Error(t, err)
}
