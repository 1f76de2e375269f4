package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/threadbot/internal/config"
)

func TestClient_Embed(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		dims       int
		wantErr    bool
		wantErrMsg string
		wantVec    []float32
	}{
		{
			name: "successful embedding",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req embeddingRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "bge-m3", req.Model)
				assert.Equal(t, []string{"query: hello"}, req.Input)

				fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`)
			},
			dims:    3,
			wantVec: []float32{0.1, 0.2, 0.3},
		},
		{
			name: "api error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":{"message":"model not loaded","type":"server_error"}}`)
			},
			dims:       3,
			wantErr:    true,
			wantErrMsg: "model not loaded",
		},
		{
			name: "empty data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"data":[]}`)
			},
			dims:       3,
			wantErr:    true,
			wantErrMsg: "no data",
		},
		{
			name: "dimension mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2],"index":0}]}`)
			},
			dims:       3,
			wantErr:    true,
			wantErrMsg: "dims",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(&config.EmbeddingConfig{
				BaseURL: server.URL,
				Model:   "bge-m3",
				Dims:    tt.dims,
			})

			vec, err := client.Embed(context.Background(), "query: hello")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVec, vec)
		})
	}
}

func TestClient_EmbedSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"data":[{"embedding":[1],"index":0}]}`)
	}))
	defer server.Close()

	client := NewClient(&config.EmbeddingConfig{BaseURL: server.URL, APIKey: "secret", Dims: 1})
	_, err := client.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
}
