package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rstudio-ai-chat/internal/events"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	return conn
}

func TestHubBroadcastsBusEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := events.NewEventBus()
	hub := NewWSHub(bus)
	defer hub.Close()

	router := gin.New()
	router.GET("/ws", hub.HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.Event{Type: events.EventLicenseCreated, Data: map[string]interface{}{"key": "k1"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}
	if !strings.Contains(string(payload), string(events.EventLicenseCreated)) {
		t.Errorf("Expected event payload, got %q", payload)
	}
}

func TestHubCloseReleasesConnectedClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := events.NewEventBus()
	hub := NewWSHub(bus)

	router := gin.New()
	router.GET("/ws", hub.HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the server to drop the connection")
	}

	// A connection arriving after shutdown must be dropped, not parked
	// on the register channel.
	late, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err == nil {
		late.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, readErr := late.ReadMessage(); readErr == nil {
			t.Error("Expected a closed hub to drop late connections")
		}
		late.Close()
	}

	if hub.ClientCount() != 0 {
		t.Errorf("Expected no clients after close, got %d", hub.ClientCount())
	}
}
