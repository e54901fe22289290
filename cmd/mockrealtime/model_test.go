package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/skypro1111/voice-bridge-service/internal/protocol"
	"github.com/skypro1111/voice-bridge-service/internal/realtime"
)

func newTestModel(t *testing.T, key string) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	ts := httptest.NewServer(newEchoModel(key, logger))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/realtime"
}

func nextEvent(t *testing.T, events <-chan protocol.UpstreamEvent) protocol.UpstreamEvent {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("Events closed unexpectedly")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	return nil
}

func TestEchoModelRoundTrip(t *testing.T) {
	url := newTestModel(t, "sk-mock")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	client, err := realtime.NewClient(realtime.Config{URL: url, APIKey: "sk-mock", Model: "gpt-4o-realtime-preview"}, logger)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	session, err := client.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer session.Close()

	if ack, ok := nextEvent(t, session.Events()).(protocol.SessionAck); !ok || ack.Type != protocol.EventSessionCreated {
		t.Fatalf("Expected session.created first")
	}

	if err := session.UpdateSession(protocol.SessionConfig{Voice: "alloy"}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if ack, ok := nextEvent(t, session.Events()).(protocol.SessionAck); !ok || ack.Type != protocol.EventSessionUpdated {
		t.Fatalf("Expected session.updated")
	}

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := session.AppendAudio(pcm); err != nil {
		t.Fatalf("AppendAudio failed: %v", err)
	}
	delta, ok := nextEvent(t, session.Events()).(protocol.ResponseAudioDelta)
	if !ok {
		t.Fatal("Expected response.audio.delta")
	}
	if !bytes.Equal(delta.Audio, pcm) {
		t.Errorf("Expected echoed audio % X, got % X", pcm, delta.Audio)
	}

	if err := session.CommitAudio(); err != nil {
		t.Fatalf("CommitAudio failed: %v", err)
	}
	done, ok := nextEvent(t, session.Events()).(protocol.ResponseDone)
	if !ok {
		t.Fatal("Expected response.done")
	}
	if done.ResponseID != delta.ResponseID || done.Status != "completed" {
		t.Errorf("Unexpected response.done %+v for response %s", done, delta.ResponseID)
	}
}

func TestEchoModelRejectsWrongKey(t *testing.T) {
	url := newTestModel(t, "sk-mock")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	client, err := realtime.NewClient(realtime.Config{URL: url, APIKey: "sk-wrong", Model: "m"}, logger)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Dial(context.Background())
	if !errors.Is(err, realtime.ErrConnect) {
		t.Fatalf("Expected ErrConnect, got %v", err)
	}

	var connectErr *realtime.ConnectError
	if !errors.As(err, &connectErr) || connectErr.HTTPStatus != 401 {
		t.Errorf("Expected HTTP 401 in connect error, got %v", err)
	}
}
