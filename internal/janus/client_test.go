package janus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeServer echoes transactions and answers per request type.
func fakeServer(t *testing.T, reply func(path string, req map[string]any) map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/janus/info" {
			_ = json.NewEncoder(w).Encode(map[string]any{"janus": "server_info", "name": "Janus", "version": 1400})
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out := reply(r.URL.Path, req)
		if _, ok := out["transaction"]; !ok {
			out["transaction"] = req["transaction"]
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestCreateAttachMessage(t *testing.T) {
	var seen []string
	srv := fakeServer(t, func(path string, req map[string]any) map[string]any {
		seen = append(seen, req["janus"].(string)+" "+path)
		switch req["janus"] {
		case "create":
			return map[string]any{"janus": "success", "data": map[string]any{"id": 1234567890123}}
		case "attach":
			if req["plugin"] != string(PluginAudioBridge) {
				t.Errorf("plugin = %v", req["plugin"])
			}
			return map[string]any{"janus": "success", "data": map[string]any{"id": 42}}
		case "message":
			return map[string]any{"janus": "success", "plugindata": map[string]any{
				"plugin": "janus.plugin.audiobridge",
				"data":   map[string]any{"audiobridge": "created", "room": "r-1"},
			}}
		}
		return map[string]any{"janus": "error", "error": map[string]any{"code": 400, "reason": "unexpected"}}
	})
	defer srv.Close()

	c := NewClient(srv.URL+"/janus", WithTimeout(time.Second))
	ctx := context.Background()

	conn, err := c.CreateConnection(ctx)
	if err != nil || conn != "1234567890123" {
		t.Fatalf("create = %q, %v", conn, err)
	}
	handle, err := c.Attach(ctx, conn, PluginAudioBridge)
	if err != nil || handle != "42" {
		t.Fatalf("attach = %q, %v", handle, err)
	}
	resp, err := c.Message(ctx, conn, handle, NewAudioRoom("m1"), nil)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	room, err := resp.Room()
	if err != nil || room.Status != "created" || room.Room != "r-1" {
		t.Fatalf("room = %+v, %v", room, err)
	}

	want := []string{
		"create /janus",
		"attach /janus/1234567890123",
		"message /janus/1234567890123/42",
	}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("requests = %v, want %v", seen, want)
	}
}

func TestCoreError(t *testing.T) {
	srv := fakeServer(t, func(string, map[string]any) map[string]any {
		return map[string]any{"janus": "error", "error": map[string]any{"code": 458, "reason": "No such session"}}
	})
	defer srv.Close()

	err := NewClient(srv.URL).DestroyConnection(context.Background(), "1")
	var jerr *Error
	if !errors.As(err, &jerr) || jerr.Code != 458 {
		t.Fatalf("err = %v, want janus error 458", err)
	}
}

func TestPluginError(t *testing.T) {
	srv := fakeServer(t, func(string, map[string]any) map[string]any {
		return map[string]any{"janus": "success", "plugindata": map[string]any{
			"plugin": "janus.plugin.videoroom",
			"data":   map[string]any{"videoroom": "event", "error_code": 427, "error": "Room exists"},
		}}
	})
	defer srv.Close()

	_, err := NewClient(srv.URL).Message(context.Background(), "1", "2", NewVideoRoom("m", 6), nil)
	var jerr *Error
	if !errors.As(err, &jerr) || jerr.Code != 427 {
		t.Fatalf("err = %v, want plugin error 427", err)
	}
}

func TestAck(t *testing.T) {
	srv := fakeServer(t, func(_ string, req map[string]any) map[string]any {
		if req["jsep"] == nil {
			t.Errorf("jsep missing from request")
		}
		return map[string]any{"janus": "ack"}
	})
	defer srv.Close()

	resp, err := NewClient(srv.URL).Message(context.Background(), "1", "2", NewPublish(), Offer("v=0"))
	if err != nil || !resp.Ack {
		t.Fatalf("resp = %+v, %v", resp, err)
	}
}

func TestTransactionMismatch(t *testing.T) {
	srv := fakeServer(t, func(string, map[string]any) map[string]any {
		return map[string]any{"janus": "success", "transaction": "other", "data": map[string]any{"id": 1}}
	})
	defer srv.Close()

	if _, err := NewClient(srv.URL).CreateConnection(context.Background()); err == nil {
		t.Fatal("expected transaction mismatch error")
	}
}

func TestInfo(t *testing.T) {
	srv := fakeServer(t, nil)
	defer srv.Close()

	info, err := NewClient(srv.URL + "/janus").Info(context.Background())
	if err != nil || info.Name != "Janus" {
		t.Fatalf("info = %+v, %v", info, err)
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTimeout(20*time.Millisecond))
	if _, err := c.CreateConnection(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestIDCodec(t *testing.T) {
	var ids []ID
	if err := json.Unmarshal([]byte(`[123, "abc", 4503599627370495]`), &ids); err != nil {
		t.Fatal(err)
	}
	if ids[0] != "123" || ids[1] != "abc" || ids[2] != "4503599627370495" {
		t.Fatalf("ids = %v", ids)
	}
	out, _ := json.Marshal([]ID{"123", "u1/video"})
	if string(out) != `[123,"u1/video"]` {
		t.Fatalf("marshal = %s", out)
	}
}
