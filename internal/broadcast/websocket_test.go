package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"logsentry/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeWS(t *testing.T) {
	hub := NewHub(time.Second, nil, testLogger())
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.ServeWS(context.Background(), conn, 50*time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var greeting map[string]interface{}
	require.NoError(t, client.ReadJSON(&greeting))
	assert.Equal(t, "connected", greeting["type"])

	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == 1
	}, 2*time.Second, 10*time.Millisecond)

	alert := model.Alert{ID: 3, RuleName: "sqli", Severity: model.SeverityCritical, SourceIP: "1.2.3.4", Timestamp: time.Now().UTC()}
	assert.Equal(t, 1, hub.BroadcastAlert(context.Background(), alert))

	var msg struct {
		Type      string                 `json:"type"`
		Data      map[string]interface{} `json:"data"`
		Timestamp time.Time              `json:"timestamp"`
	}
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, "new_alert", msg.Type)
	assert.Equal(t, "sqli", msg.Data["rule_name"])
	assert.Equal(t, "1.2.3.4", msg.Data["source_ip"])
	assert.Equal(t, float64(3), msg.Data["id"])
	assert.Equal(t, false, msg.Data["acknowledged"])
	assert.NotContains(t, msg.Data, "priority")

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
}
