package transport

import (
	"context"
	"testing"
	"time"

	"camsync/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestLocalBus_BroadcastReachesAllIncludingSender(t *testing.T) {
	bus := NewLocalBus(zaptest.NewLogger(t).Sugar())

	alice := bus.Subscribe("sess_1", domain.Member{ID: "alice", Label: "Front"})
	bob := bus.Subscribe("sess_1", domain.Member{ID: "bob", Label: "Rear"})
	defer alice.Close()
	defer bob.Close()

	drainRosterPushes(alice)
	drainRosterPushes(bob)

	err := alice.Announce(context.Background(), domain.PresencePayload{ParticipantID: "alice", Label: "Front"})
	assert.NoError(t, err)

	// Both subscribers get the envelope; the sender filters its own copy.
	for _, ch := range []*LocalChannel{alice, bob} {
		env := recv(t, ch)
		assert.Equal(t, domain.MessagePresence, env.Type)
		assert.Equal(t, domain.ParticipantID("alice"), env.From)
	}
}

func TestLocalBus_SessionsAreIsolated(t *testing.T) {
	bus := NewLocalBus(zaptest.NewLogger(t).Sugar())

	alice := bus.Subscribe("sess_1", domain.Member{ID: "alice"})
	carol := bus.Subscribe("sess_2", domain.Member{ID: "carol"})
	defer alice.Close()
	defer carol.Close()

	drainRosterPushes(alice)
	drainRosterPushes(carol)

	err := alice.SendCommand(context.Background(), domain.CommandPayload{
		Action: domain.CommandStartRecording,
		From:   "alice",
	})
	assert.NoError(t, err)

	select {
	case env := <-carol.Messages():
		t.Fatalf("cross-session delivery: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBus_MembersTracksSubscribers(t *testing.T) {
	bus := NewLocalBus(zaptest.NewLogger(t).Sugar())

	alice := bus.Subscribe("sess_1", domain.Member{ID: "alice", Label: "Front"})
	bob := bus.Subscribe("sess_1", domain.Member{ID: "bob", Label: "Rear"})

	members, ok := alice.Members()
	assert.True(t, ok)
	assert.Len(t, members, 2)

	assert.NoError(t, bob.Close())

	members, _ = alice.Members()
	assert.Len(t, members, 1)
	assert.Equal(t, domain.ParticipantID("alice"), members[0].ID)

	alice.Close()
}

func TestLocalBus_RosterPushedOnJoinAndLeave(t *testing.T) {
	bus := NewLocalBus(zaptest.NewLogger(t).Sugar())

	alice := bus.Subscribe("sess_1", domain.Member{ID: "alice"})
	drainRosterPushes(alice)

	bob := bus.Subscribe("sess_1", domain.Member{ID: "bob"})

	env := recv(t, alice)
	assert.Equal(t, domain.MessageRoster, env.Type)
	assert.Equal(t, domain.ParticipantID("bob"), env.From)
	assert.Len(t, env.Roster, 2)

	assert.NoError(t, bob.Close())

	env = recv(t, alice)
	assert.Equal(t, domain.MessageRoster, env.Type)
	assert.Len(t, env.Roster, 1)

	alice.Close()
}

func TestLocalChannel_PublishAfterClose(t *testing.T) {
	bus := NewLocalBus(zaptest.NewLogger(t).Sugar())

	ch := bus.Subscribe("sess_1", domain.Member{ID: "alice"})
	assert.True(t, ch.Connected())
	assert.NoError(t, ch.Close())
	assert.False(t, ch.Connected())

	err := ch.Announce(context.Background(), domain.PresencePayload{ParticipantID: "alice"})
	assert.ErrorIs(t, err, domain.ErrChannelClosed)

	// Close is idempotent.
	assert.NoError(t, ch.Close())
}

func recv(t *testing.T, ch *LocalChannel) domain.Envelope {
	t.Helper()
	select {
	case env := <-ch.Messages():
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return domain.Envelope{}
	}
}

// drainRosterPushes clears the membership envelopes emitted by Subscribe.
func drainRosterPushes(ch *LocalChannel) {
	for {
		select {
		case <-ch.Messages():
		case <-time.After(20 * time.Millisecond):
			return
		}
	}
}
