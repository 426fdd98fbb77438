package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mvdwal/meditrack/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Namespace = "meditrack"
	cfg.App.Environment = "test"
	cfg.Storage.InMemory = true

	s, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// freezeTime pins the store clock so calendar-dependent reports are
// deterministic.
func freezeTime(s *Store, at time.Time) {
	s.now = func() time.Time { return at }
}

func TestKeyspaceLayout(t *testing.T) {
	k := keyspace{namespace: "meditrack", environment: "test"}

	require.Equal(t, "meditrack:test:user:u1:medicine:m1", k.entityKey("u1", typeMedicine, "m1"))
	require.Equal(t, "meditrack:test:user:u1:schedule:", k.entityPrefix("u1", typeSchedule))
	require.Equal(t, "meditrack:test:user:id:u1", k.userIDKey("u1"))
	require.Equal(t, "meditrack:test:user:username:ann", k.usernameKey("ann"))
	require.Equal(t, "meditrack:test:user:email:ann@example.com", k.emailKey("Ann@Example.COM"))
	require.Equal(t, "meditrack:test:password_reset:u1:tok", k.passwordResetKey("u1", "tok"))
	require.Equal(t, "meditrack:test:verification:token:tok", k.verificationKey("tok"))
}
