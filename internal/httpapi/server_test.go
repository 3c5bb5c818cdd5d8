package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNamespace_MethodAndPrefixRouting(t *testing.T) {
	s := NewServer(":0", testLogger())
	ns := s.Namespace("facebook")
	ns.Get("/webhook", func(w http.ResponseWriter, r *http.Request, _ []byte) {
		w.Write([]byte("get"))
	})
	ns.Post("/webhook", func(w http.ResponseWriter, r *http.Request, _ []byte) {
		w.Write([]byte("post"))
	})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/facebook/webhook")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /facebook/webhook = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/twilio/webhook")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unregistered namespace = %d, want 404", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/facebook/webhook", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE = %d, want 405", resp.StatusCode)
	}
}

func TestHandler_RawBodyPreserved(t *testing.T) {
	s := NewServer(":0", testLogger())
	var got []byte
	s.Namespace("hook").Post("/webhook", func(w http.ResponseWriter, r *http.Request, rawBody []byte) {
		got = rawBody
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// Whitespace must survive byte for byte; signature checks depend on it.
	body := "{ \"a\":\t1 }\n"
	resp, err := http.Post(srv.URL+"/hook/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if string(got) != body {
		t.Errorf("raw body = %q, want %q", got, body)
	}
}

func TestHandler_GetSkipsBodyRead(t *testing.T) {
	s := NewServer(":0", testLogger())
	var got []byte
	s.Namespace("hook").Get("/webhook", func(w http.ResponseWriter, r *http.Request, rawBody []byte) {
		got = rawBody
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/hook/webhook?hub.mode=subscribe")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got != nil {
		t.Errorf("GET handler received a body: %q", got)
	}
}

func TestJSONAndError(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusCreated, map[string]string{"status": "ok"})
	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	rr = httptest.NewRecorder()
	Error(rr, http.StatusBadRequest, "nope")
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "nope" {
		t.Errorf("error body = %v", body)
	}
}
