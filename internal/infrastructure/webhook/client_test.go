package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
	"go.uber.org/zap"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"event":"form_approved"}`)
	sig := Sign("secret", "1700000000", body)

	if !Verify("secret", "1700000000", sig, body) {
		t.Error("valid signature rejected")
	}
	if Verify("secret", "1700000001", sig, body) {
		t.Error("signature accepted with wrong timestamp")
	}
	if Verify("other", "1700000000", sig, body) {
		t.Error("signature accepted with wrong secret")
	}
	if Verify("secret", "1700000000", sig, []byte(`{}`)) {
		t.Error("signature accepted with tampered body")
	}
}

func TestCall_SendsSignedRequest(t *testing.T) {
	var gotSig, gotTS, gotEvent string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvent = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "secret", zap.NewNop())
	err := client.Call(context.Background(), srv.URL, port.WebhookEnvelope{
		Event:      "form_approved",
		InstanceID: 42,
		TemplateID: 7,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}

	if gotEvent != "form_approved" {
		t.Errorf("event header = %q", gotEvent)
	}
	if gotSig == "" || gotTS == "" {
		t.Fatal("signature headers missing")
	}
	if !Verify("secret", gotTS, gotSig, gotBody) {
		t.Error("receiver-side verification failed")
	}
}

func TestCall_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "", zap.NewNop())
	err := client.Call(context.Background(), srv.URL, port.WebhookEnvelope{Event: "form_submitted"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestCall_NoSecretSkipsSignature(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "", zap.NewNop())
	if err := client.Call(context.Background(), srv.URL, port.WebhookEnvelope{Event: "x"}); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if gotSig != "" {
		t.Error("signature sent without a configured secret")
	}
}
