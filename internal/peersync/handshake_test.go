package peersync

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/model"
)

// connectPair runs the full code exchange from a to b.
func connectPair(t *testing.T, a, b *Engine) {
	t.Helper()
	ctx := t.Context()

	code, pendingID, err := a.GenerateConnectionCode(ctx)
	require.NoError(t, err)
	answer, err := b.ConnectWithCode(ctx, code)
	require.NoError(t, err)
	remoteID, err := a.CompleteConnectionWithCode(ctx, answer, pendingID)
	require.NoError(t, err)
	require.Equal(t, b.ID(), remoteID)
}

func TestConnectionCodeCarriesRealPeerID(t *testing.T) {
	e := newTestEngine(t, NewMemoryNetwork().Transport(), "a")

	code, pendingID, err := e.GenerateConnectionCode(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "pending_a2", pendingID)

	rawCode, err := base64.StdEncoding.DecodeString(code)
	require.NoError(t, err)
	var c connectionCode
	require.NoError(t, json.Unmarshal(rawCode, &c))
	assert.Equal(t, "peer_a1", c.PeerID)
	require.NotNil(t, c.Offer)
	assert.Equal(t, "offer", c.Offer.Type)
	assert.Nil(t, c.Answer)

	peers := e.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, PeerInfo{ID: pendingID, Status: StatusConnecting, LastSeen: peers[0].LastSeen}, peers[0])
}

func TestTwoEnginesSync(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestEngine(t, net.Transport(), "a")
	b := newTestEngine(t, net.Transport(), "b")

	a.SetLocalData("player", raw(`{"level":1}`), 0)
	b.SetLocalData("settings", raw(`{"sound":true}`), 0)

	var mu sync.Mutex
	var bConnected []string
	b.SubscribePeerConnected(func(ev PeerEvent) {
		mu.Lock()
		defer mu.Unlock()
		bConnected = append(bConnected, ev.PeerID)
	})

	connectPair(t, a, b)

	assert.Equal(t, []string{"peer_b1"}, a.ConnectedPeers())
	assert.Equal(t, []string{"peer_a1"}, b.ConnectedPeers())
	mu.Lock()
	assert.Equal(t, []string{"peer_a1"}, bConnected)
	mu.Unlock()

	require.Eventually(t, func() bool {
		_, aHas := a.LocalData("settings")
		_, bHas := b.LocalData("player")
		return aHas && bHas
	}, 2*time.Second, 5*time.Millisecond)

	a.SetLocalData("player", raw(`{"level":2}`), 0)
	require.Eventually(t, func() bool {
		got, _ := b.LocalData("player")
		return got.Version == 2
	}, 2*time.Second, 5*time.Millisecond)

	got, _ := b.LocalData("player")
	assert.JSONEq(t, `{"level":2}`, string(got.Data))
}

func TestDisconnectReachesRemote(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestEngine(t, net.Transport(), "a")
	b := newTestEngine(t, net.Transport(), "b")

	gone := make(chan string, 1)
	b.SubscribePeerDisconnected(func(ev PeerEvent) { gone <- ev.PeerID })

	connectPair(t, a, b)
	require.True(t, a.DisconnectPeer("peer_b1"))

	select {
	case id := <-gone:
		assert.Equal(t, "peer_a1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("remote never saw the disconnect")
	}
	assert.Empty(t, b.ConnectedPeers())
}

func TestConnectWithCodeErrors(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestEngine(t, net.Transport(), "a")
	b := newTestEngine(t, net.Transport(), "b")

	code, _, err := a.GenerateConnectionCode(t.Context())
	require.NoError(t, err)

	tests := []struct {
		name   string
		engine *Engine
		code   string
	}{
		{"not base64", b, "!!!"},
		{"not json", b, base64.StdEncoding.EncodeToString([]byte("nope"))},
		{"no offer", b, base64.StdEncoding.EncodeToString([]byte(`{"peerId":"peer_x"}`))},
		{"no peer id", b, base64.StdEncoding.EncodeToString([]byte(`{"offer":{"type":"offer","sdp":"x"}}`))},
		{"self", a, code},
		{"unknown offer", b, base64.StdEncoding.EncodeToString([]byte(`{"peerId":"peer_x","offer":{"type":"offer","sdp":"mem-999"}}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.engine.ConnectWithCode(t.Context(), tt.code)
			require.Error(t, err)
			assert.True(t, model.IsConnectionFailure(err), "got %v", err)
		})
	}
}

func TestCompleteConnectionErrors(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestEngine(t, net.Transport(), "a")
	b := newTestEngine(t, net.Transport(), "b")

	code, pendingID, err := a.GenerateConnectionCode(t.Context())
	require.NoError(t, err)
	answer, err := b.ConnectWithCode(t.Context(), code)
	require.NoError(t, err)

	_, err = a.CompleteConnectionWithCode(t.Context(), answer, "pending_nope")
	assert.True(t, model.IsConnectionFailure(err), "got %v", err)

	_, err = a.CompleteConnectionWithCode(t.Context(), code, pendingID)
	assert.True(t, model.IsConnectionFailure(err), "offer code is not an answer: %v", err)

	remoteID, err := a.CompleteConnectionWithCode(t.Context(), answer, pendingID)
	require.NoError(t, err)
	assert.Equal(t, "peer_b1", remoteID)
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	net := NewMemoryNetwork()
	a := New(net.Transport())
	b := newTestEngine(t, net.Transport(), "b")
	c := newTestEngine(t, net.Transport(), "c")

	connectPair(t, a, b)
	connectPair(t, a, c)
	require.Len(t, a.ConnectedPeers(), 2)

	a.Close()

	assert.Empty(t, a.ConnectedPeers())
	require.Eventually(t, func() bool {
		return len(b.ConnectedPeers()) == 0 && len(c.ConnectedPeers()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}
