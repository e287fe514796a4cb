package rewrite_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/internal/rewrite"
	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// chatServer answers title requests (20 tokens) with title and every other
// request with description. Prompts are recorded in order.
func chatServer(t *testing.T, title string, description string, prompts *[]string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Messages, 2) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "system", req.Messages[0].Role)
		*prompts = append(*prompts, req.Messages[1].Content)

		content := description
		if req.MaxTokens == 20 {
			content = title
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(server.Close)

	return server
}

func config(endpoint string) rewrite.Config {
	return rewrite.Config{
		Endpoint:       endpoint,
		Model:          "test-model",
		APIKey:         "key",
		SystemPrompt:   "You are a helpful assistant.",
		TimeoutSeconds: 5,
		Attempts:       1,
		ContactFooter:  "Contact us via the channel page.",
		ExtraTags:      []string{"vintage archive", "archive"},
	}
}

func Test_Title_RequestsYearAndTruncates(t *testing.T) {
	prompts := []string{}
	long := strings.Repeat("a", 150)
	server := chatServer(t, `"`+long+`"`, "", &prompts)
	service := rewrite.New(config(server.URL), rewrite.NewChatClient(config(server.URL)))

	title, err := service.Title(context.Background(), "Nosferatu", "A silent film released in 1922.")
	require.NoError(t, err)
	assert.Len(t, title, rewrite.MaxTitleLength)
	assert.Equal(t, strings.Repeat("a", 97)+"...", title)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Include the year 1922 in the title.")
}

func Test_Title_NoYear(t *testing.T) {
	prompts := []string{}
	server := chatServer(t, "A Night To Remember", "", &prompts)
	service := rewrite.New(config(server.URL), rewrite.NewChatClient(config(server.URL)))

	title, err := service.Title(context.Background(), "Newsreel", "Undated footage")
	require.NoError(t, err)
	assert.Equal(t, "A Night To Remember", title)
	assert.NotContains(t, prompts[0], "Include the year")
}

func Test_Description_StripsContactAndAppendsFooter(t *testing.T) {
	prompts := []string{}
	server := chatServer(t, "", strings.Repeat("d", 6000), &prompts)
	service := rewrite.New(config(server.URL), rewrite.NewChatClient(config(server.URL)))

	description, err := service.Description(context.Background(), "Newsreel", "Call 555-123-4567 or mail someone@example.com for copies")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(description, strings.Repeat("d", 4997)+"...\n\n"))
	assert.True(t, strings.HasSuffix(description, "Contact us via the channel page."))
	assert.NotContains(t, prompts[0], "555-123-4567")
	assert.NotContains(t, prompts[0], "someone@example.com")
}

func Test_ChatClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  fine  "}}]}`))
	}))
	defer server.Close()

	cfg := config(server.URL)
	cfg.Attempts = 2
	out, err := rewrite.NewChatClient(cfg).Complete(context.Background(), "prompt", 10, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
	assert.EqualValues(t, 2, calls.Load())
}

func Test_ChatClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := config(server.URL)
	cfg.Attempts = 3
	_, err := rewrite.NewChatClient(cfg).Complete(context.Background(), "prompt", 10, 0.5)
	assert.ErrorContains(t, err, "401")
	assert.EqualValues(t, 1, calls.Load())
}

func Test_ChatClient_Misconfigured(t *testing.T) {
	cfg := config("http://unused")
	cfg.APIKey = ""
	_, err := rewrite.NewChatClient(cfg).Complete(context.Background(), "prompt", 10, 0.5)
	assert.ErrorIs(t, err, rewrite.ErrMisconfigured)
}

func Test_RewriteAll_UpdatesRecordsAndKeepsOriginalsOnFailure(t *testing.T) {
	prompts := []string{}
	server := chatServer(t, "The Phantom of the Opera (1925)", "A restored classic.", &prompts)

	dir := fs.NewDir(t, "rewrite")
	store, err := record.Open(dir.Join("records.json"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Append(record.Record{Label: 1, Title: "phantom", Description: "1925 film", Tags: []string{"Archive", "horror"}, Status: record.RENDERED}))
	require.NoError(t, store.Append(record.Record{Label: 2, Title: "keep me", Description: "untouched", Status: record.FETCHED}))

	ok := rewrite.New(config(server.URL), rewrite.NewChatClient(config(server.URL)))
	summary := ok.RewriteAll(context.Background(), []int{1, 3}, store)
	assert.Equal(t, rewrite.Summary{Complete: 1, Failed: 1}, summary)

	rec, _ := store.Get(1)
	assert.Equal(t, "The Phantom of the Opera (1925)", rec.Title)
	assert.Equal(t, "A restored classic.\n\nContact us via the channel page.", rec.Description)
	assert.Equal(t, []string{"vintage archive", "archive", "horror"}, rec.Tags)
	assert.Equal(t, record.RENDERED, rec.Status)

	broken := config("http://127.0.0.1:1")
	failing := rewrite.New(broken, rewrite.NewChatClient(broken))
	assert.Error(t, failing.Rewrite(context.Background(), 2, store))

	rec, _ = store.Get(2)
	assert.Equal(t, "keep me", rec.Title)
	assert.Equal(t, "untouched", rec.Description)
	assert.Equal(t, record.FETCHED, rec.Status)
}

func Test_Truncate(t *testing.T) {
	assert.Equal(t, "short", rewrite.Truncate("short", 10))
	assert.Equal(t, "abcdefg...", rewrite.Truncate("abcdefghijk", 10))
	assert.Equal(t, "ééééééé...", rewrite.Truncate(strings.Repeat("é", 11), 10))
}

func Test_MergeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, rewrite.MergeTags([]string{"a", " ", "b"}, []string{"B", "c", "a"}))
	assert.Empty(t, rewrite.MergeTags(nil, nil))
}
