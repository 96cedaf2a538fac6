package generation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"

	"github.com/mikeboe/derma-research/pkg/research"
)

type fakeModel struct {
	content  string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	f.opts = llms.CallOptions{}
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantErr bool
	}{
		{"plain object", `{"query": "melanoma treatment"}`, "query", false},
		{"fenced object", "```json\n{\"query\": \"q\"}\n```", "query", false},
		{"surrounding whitespace", "  \n{\"follow_up_query\": \"q\"}\n", "follow_up_query", false},
		{"prose", "Here is your query: melanoma", "", true},
		{"array", `["a", "b"]`, "", true},
		{"null", `null`, "", true},
		{"empty", "   ", "", true},
		{"truncated", `{"query": "mel`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseJSONObject(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, research.ErrMalformedModelOutput)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, obj, tt.wantKey)
		})
	}
}

func TestLangchainGatewayGenerate(t *testing.T) {
	model := &fakeModel{content: "a summary"}
	gw := NewLangchainGateway(model)

	out, err := gw.Generate(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, "a summary", out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.TextContent{Text: "system text"}, model.messages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.False(t, model.opts.JSONMode)
}

func TestLangchainGatewayGenerateJSON(t *testing.T) {
	model := &fakeModel{content: `{"knowledge_gap": "dosage", "follow_up_query": "melanoma dosage"}`}
	gw := NewLangchainGateway(model)

	obj, err := gw.GenerateJSON(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "melanoma dosage", obj["follow_up_query"])
	assert.True(t, model.opts.JSONMode)
}

func TestLangchainGatewayMalformedJSON(t *testing.T) {
	gw := NewLangchainGateway(&fakeModel{content: "not json at all"})

	_, err := gw.GenerateJSON(context.Background(), "sys", "user")
	require.ErrorIs(t, err, research.ErrMalformedModelOutput)
}

func TestLangchainGatewayPropagatesErrors(t *testing.T) {
	boom := errors.New("model offline")
	gw := NewLangchainGateway(&fakeModel{err: boom})

	_, err := gw.Generate(context.Background(), "sys", "user")
	require.ErrorIs(t, err, boom)

	_, err = gw.GenerateJSON(context.Background(), "sys", "user")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, research.ErrMalformedModelOutput)
}

func TestGenaiGatewayStructuredMode(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"query\": \"nevus\"}"}]}}]}`))
	}))
	defer server.Close()

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  server.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: server.URL + "/"},
	})
	require.NoError(t, err)

	gw := &GenaiGateway{Client: client, Model: "gemini-2.0-flash"}
	obj, err := gw.GenerateJSON(context.Background(), "be precise", "find a query")
	require.NoError(t, err)
	assert.Equal(t, "nevus", obj["query"])
	assert.Contains(t, body, "application/json")
	assert.Contains(t, body, "be precise")
}
