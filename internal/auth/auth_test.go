package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/auth"
)

func TestStoreValidate(t *testing.T) {
	s := auth.NewStore([]auth.UserRecord{
		{Username: "alice", Password: "secret", Enabled: true},
		{Username: "bob", Password: "secret", Enabled: false},
	})

	require.True(t, s.Validate("alice", "secret"))
	require.False(t, s.Validate("alice", "wrong"))
	require.False(t, s.Validate("bob", "secret"))
	require.False(t, s.Validate("nobody", "x"))
}

func TestManagerAuthenticate_Disabled(t *testing.T) {
	store := auth.NewStore(nil)
	sessions := auth.NewSessionTracker()
	m := auth.NewManager(store, sessions, false, nil)

	principal, ok := m.Authenticate("", "")
	require.True(t, ok)
	require.Equal(t, "anonymous", principal)
}

func TestManagerAuthenticate_ProgressiveDelay(t *testing.T) {
	store := auth.NewStore([]auth.UserRecord{{Username: "alice", Password: "secret", Enabled: true}})
	sessions := auth.NewSessionTracker()
	m := auth.NewManager(store, sessions, true, nil)

	for i := 0; i < 3; i++ {
		_, ok := m.Authenticate("alice", "wrong")
		require.False(t, ok)
	}
	require.Equal(t, 1*time.Second, m.DelayFor("alice"))

	for i := 0; i < 3; i++ {
		_, ok := m.Authenticate("alice", "wrong")
		require.False(t, ok)
	}
	require.Equal(t, 5*time.Second, m.DelayFor("alice"))

	_, ok := m.Authenticate("alice", "secret")
	require.True(t, ok)
	require.Equal(t, time.Duration(0), m.DelayFor("alice"))
}

func TestSessionTracker_CreateAndCleanup(t *testing.T) {
	st := auth.NewSessionTracker()
	s := st.Create("alice", "203.0.113.1")
	require.Equal(t, 1, st.Count())

	s.LastActivity = time.Now().Add(-time.Hour)
	evicted := st.Cleanup(time.Minute)
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, st.Count())

	// idempotent: second cleanup finds nothing
	evicted = st.Cleanup(time.Minute)
	require.Equal(t, 0, evicted)

	_, ok := st.Get(s.ID)
	require.False(t, ok)
}
