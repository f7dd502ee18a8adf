package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lookbook/internal/services"
)

func pngPayload(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, attempts int) (*SDWebUIClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewSDWebUIClient(SDWebUIConfig{
		BaseURL:       server.URL,
		Steps:         28,
		CfgScale:      7,
		Sampler:       "DPM++ 2M Karras",
		RetryAttempts: attempts,
	}, WithSleeper(func(time.Duration) {}))
	return client, server
}

func TestSDWebUIGenerateSendsTxt2ImgFields(t *testing.T) {
	var got txt2imgRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/txt2img" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(txt2imgResponse{Images: []string{pngPayload(t)}})
	}, 1)

	image, err := client.Generate(context.Background(), Request{
		Prompt:         "a green jacket",
		NegativePrompt: "blurry",
		Resolution:     "1024x1536",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if image.MimeType != "image/png" {
		t.Fatalf("mime = %s", image.MimeType)
	}
	if string(image.Data) != "fake-png-bytes" {
		t.Fatalf("data = %q", image.Data)
	}

	if got.Prompt != "a green jacket" || got.NegativePrompt != "blurry" {
		t.Fatalf("prompt fields: %+v", got)
	}
	if got.Width != 1024 || got.Height != 1536 {
		t.Fatalf("resolution fields: %dx%d", got.Width, got.Height)
	}
	if got.SamplerName != "DPM++ 2M Karras" || got.Steps != 28 || got.CfgScale != 7 {
		t.Fatalf("sampler fields: %+v", got)
	}
	if got.BatchSize != 1 || got.NIter != 1 {
		t.Fatalf("batch fields: %+v", got)
	}
}

func TestSDWebUIRetriesOverloadThenSucceeds(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(txt2imgResponse{Images: []string{pngPayload(t)}})
	}, 3)

	if _, err := client.Generate(context.Background(), Request{Prompt: "p"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestSDWebUIDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}, 3)

	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("got %v, want provider error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSDWebUIExhaustsRetries(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("got %v, want provider error", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestSDWebUIRejectsBadResolution(t *testing.T) {
	client := NewSDWebUIClient(SDWebUIConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Generate(context.Background(), Request{Prompt: "p", Resolution: "huge"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestSelectorRoutesByModel(t *testing.T) {
	selector := &Selector{Default: &SDWebUIClient{}, OpenAI: nil}

	provider, err := selector.For("")
	if err != nil || provider.Name() != "sdwebui" {
		t.Fatalf("default route: %v %v", provider, err)
	}
	if _, err := selector.For("gpt-image-1"); err == nil {
		t.Fatal("gpt-image override without openai provider should fail")
	}

	selector.OpenAI = &OpenAIClient{}
	provider, err = selector.For("GPT-Image-1-mini")
	if err != nil || provider.Name() != "openai" {
		t.Fatalf("openai route: %v %v", provider, err)
	}
}

func TestParseResolution(t *testing.T) {
	width, height, err := ParseResolution("1024x1536")
	if err != nil || width != 1024 || height != 1536 {
		t.Fatalf("parse: %d %d %v", width, height, err)
	}
	for _, bad := range []string{"", "1024", "ax b", "0x100"} {
		if _, _, err := ParseResolution(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
