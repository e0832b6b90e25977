package roster

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventBodyWireShapes(t *testing.T) {
	cases := []struct {
		body EventBody
		wire string
	}{
		{EventBody{Kind: EventInviteSent, Target: "@bob"}, `{"invite_sent":"@bob"}`},
		{EventBody{Kind: EventInviteAccepted}, `"invite_accepted"`},
		{EventBody{Kind: EventBan, Target: "@bob"}, `{"ban":"@bob"}`},
		{EventBody{Kind: EventUnban, Target: "@bob"}, `{"unban":"@bob"}`},
		{EventBody{Kind: EventLeave}, `"leave"`},
		{EventBody{Kind: EventAddAdmin, Target: "@bob"}, `{"add_admin":"@bob"}`},
		{EventBody{Kind: EventRemoveAdmin, Target: "@bob"}, `{"remove_admin":"@bob"}`},
	}
	for _, c := range cases {
		got, err := json.Marshal(c.body)
		require.NoError(t, err)
		require.JSONEq(t, c.wire, string(got))

		var decoded EventBody
		require.NoError(t, json.Unmarshal([]byte(c.wire), &decoded))
		require.Equal(t, c.body, decoded)
	}
}

func TestEventBodyRejectsUnknownTags(t *testing.T) {
	var b EventBody
	require.Error(t, json.Unmarshal([]byte(`"not_a_real_event"`), &b))
	require.Error(t, json.Unmarshal([]byte(`{"not_a_real_event":"@bob"}`), &b))
	require.Error(t, json.Unmarshal([]byte(`{"ban":"@bob","unban":"@charlie"}`), &b))
}

func TestInitialStateIsInitAdminAcceptedAdmin(t *testing.T) {
	r := Compute("@alice", nil)
	require.Equal(t, Roster{"@alice": {Status: StatusAccepted, Admin: true}}, r)
}

func TestInviteThenAccept(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		{Sender: "@bob", Kind: EventInviteAccepted},
	}
	r := Compute("@alice", events)
	require.Equal(t, StatusAccepted, r["@bob"].Status)
	require.False(t, r["@bob"].Admin)
}

func TestUnauthorizedBanIsDropped(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		{Sender: "@bob", Kind: EventInviteAccepted},
		{Sender: "@alice", Kind: EventInviteSent, Target: "@charlie"},
		{Sender: "@charlie", Kind: EventInviteAccepted},
		// Charlie is not an admin: this ban must be dropped.
		{Sender: "@charlie", Kind: EventBan, Target: "@bob"},
	}
	r := Compute("@alice", events)
	require.Equal(t, StatusAccepted, r["@bob"].Status, "unauthorized ban must not change bob's status")
}

func TestAdminCanBanAndUnban(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		{Sender: "@bob", Kind: EventInviteAccepted},
		{Sender: "@alice", Kind: EventBan, Target: "@bob"},
	}
	r := Compute("@alice", events)
	require.Equal(t, StatusBanned, r["@bob"].Status)

	events = append(events, Event{Sender: "@alice", Kind: EventUnban, Target: "@bob"})
	r = Compute("@alice", events)
	require.Equal(t, StatusPending, r["@bob"].Status)
}

func TestBannedUserCannotReinviteOrAct(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		{Sender: "@bob", Kind: EventInviteAccepted},
		{Sender: "@alice", Kind: EventBan, Target: "@bob"},
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"}, // must not un-ban bob
		{Sender: "@bob", Kind: EventInviteAccepted},               // banned sender, dropped
	}
	r := Compute("@alice", events)
	require.Equal(t, StatusBanned, r["@bob"].Status)
}

func TestLeaveRemovesMember(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		{Sender: "@bob", Kind: EventInviteAccepted},
		{Sender: "@bob", Kind: EventLeave},
	}
	r := Compute("@alice", events)
	_, exists := r["@bob"]
	require.False(t, exists)
}

func TestAddAdminRequiresAcceptedTarget(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		// Bob is only pending, not accepted: add_admin must be dropped.
		{Sender: "@alice", Kind: EventAddAdmin, Target: "@bob"},
	}
	r := Compute("@alice", events)
	require.False(t, r["@bob"].Admin)
}

func TestRemoveAdminDemotes(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		{Sender: "@bob", Kind: EventInviteAccepted},
		{Sender: "@alice", Kind: EventAddAdmin, Target: "@bob"},
		{Sender: "@alice", Kind: EventRemoveAdmin, Target: "@bob"},
	}
	r := Compute("@alice", events)
	require.False(t, r["@bob"].Admin)
	require.Equal(t, StatusAccepted, r["@bob"].Status)
}

func TestDeterminismAcrossReplays(t *testing.T) {
	events := []Event{
		{Sender: "@alice", Kind: EventInviteSent, Target: "@bob"},
		{Sender: "@bob", Kind: EventInviteAccepted},
		{Sender: "@alice", Kind: EventInviteSent, Target: "@charlie"},
		{Sender: "@charlie", Kind: EventInviteAccepted},
		{Sender: "@alice", Kind: EventAddAdmin, Target: "@bob"},
	}
	r1 := Compute("@alice", events)
	r2 := Compute("@alice", events)
	require.Equal(t, r1, r2)
}
