package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGemini_Generate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL+"/", nil, 5*time.Second)
	text, err := g.Generate(context.Background(), "k-123", Request{
		Model:           "gemini-flash-latest",
		Prompt:          "write",
		Temperature:     0.7,
		MaxOutputTokens: 3500,
	})
	require.NoError(t, err)
	require.Equal(t, "Hello world", text)
	require.Equal(t, "/models/gemini-flash-latest:generateContent", gotPath)
	require.Equal(t, "k-123", gotKey)
	require.Len(t, gotBody.Contents, 1)
	require.Equal(t, "write", gotBody.Contents[0].Parts[0].Text)
	require.Equal(t, 0.7, gotBody.GenerationConfig.Temperature)
	require.Equal(t, 3500, gotBody.GenerationConfig.MaxOutputTokens)
}

func TestGemini_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	_, err := NewGemini(srv.URL, nil, time.Second).Generate(context.Background(), "k", Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "quota exhausted")
}

func TestGemini_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down\n")
	}))
	defer srv.Close()

	_, err := NewGemini(srv.URL, nil, time.Second).Generate(context.Background(), "k", Request{Model: "m"})
	require.Error(t, err)
	require.True(t, strings.HasSuffix(err.Error(), "upstream down"))
}

func TestGemini_EmptyResults(t *testing.T) {
	bodies := map[string]string{
		"no candidates": `{"candidates":[]}`,
		"blank text":    `{"candidates":[{"content":{"parts":[{"text":"  \n"}]},"finishReason":"SAFETY"}]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]}}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			_, err := NewGemini(srv.URL, nil, time.Second).Generate(context.Background(), "k", Request{Model: "m"})
			require.Error(t, err)
		})
	}
}

func TestGemini_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGemini(srv.URL, nil, 5*time.Second).Generate(ctx, "k", Request{Model: "m"})
	require.Error(t, err)
}

func TestGemini_ModelRequired(t *testing.T) {
	_, err := NewGemini("", nil, time.Second).Generate(context.Background(), "k", Request{})
	require.Error(t, err)
}
