package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.Observer = (*Queue)(nil)

func TestQueue_NeverBlocks(t *testing.T) {
	q := NewQueue(1, 0)
	q.OnVolumeChanged(0.5, 1)
	q.OnSpeakingChanged(3, true)

	assert.Equal(t, uint64(1), q.Dropped())
	e := <-q.Events()
	assert.Equal(t, TypeVolumeChanged, e.Type)
	assert.Equal(t, float32(0.5), e.Monitor)
	assert.Equal(t, float32(1), e.Broadcast)
}

func TestQueue_Speaking(t *testing.T) {
	q := NewQueue(4, 0)
	q.OnSpeakingChanged(3, true)
	e := <-q.Events()
	assert.Equal(t, TypeSpeakingChanged, e.Type)
	assert.EqualValues(t, 3, e.Participant)
	assert.True(t, e.Speaking)
}

func TestQueue_MeterThrottle(t *testing.T) {
	q := NewQueue(4, 3)
	q.OnBufferReady([]float32{0.1, -0.7}, 1)
	q.OnBufferReady([]float32{0.2}, 1)
	assert.Empty(t, q.Events())

	q.OnBufferReady([]float32{0.3}, 1)
	e := <-q.Events()
	assert.Equal(t, TypeBusLevel, e.Type)
	assert.InDelta(t, 0.7, e.Peak, 1e-6)

	// peak restarts after each report
	for range 3 {
		q.OnBufferReady([]float32{0.1}, 1)
	}
	e = <-q.Events()
	assert.InDelta(t, 0.1, e.Peak, 1e-6)
}

func TestQueue_MeterDisabled(t *testing.T) {
	q := NewQueue(4, 0)
	q.OnBufferReady([]float32{1}, 1)
	assert.Empty(t, q.Events())
}

func TestHub_StreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(8, 0)
	go hub.Run(ctx, q.Events())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	q.OnSpeakingChanged(9, true)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, TypeSpeakingChanged, e.Type)
	assert.EqualValues(t, 9, e.Participant)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
