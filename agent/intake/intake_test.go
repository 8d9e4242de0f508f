package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	"github.com/tanpawarit/servicesaver/agent/prompt"
)

type fakeCompleter struct {
	out  string
	err  error
	reqs []CompletionRequest
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, req CompletionRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.out, f.err
}

func newExtractor(t *testing.T, completer Completer) *Extractor {
	t.Helper()
	ex, err := New(completer, prompt.MustLoadRegistry(), prompt.LoadPromptSet().Extractor)
	require.NoError(t, err)
	return ex
}

const completeMove = `{
	"name": "Dana",
	"phone": "+15125550100",
	"origin_zip": "78701",
	"destination_zip": "75201",
	"move_date": "2026-11-02",
	"home_size": "2 bedroom",
	"inventory": "sofa, bed, 20 boxes",
	"move_in_date": "",
	"packing_assistance": "yes",
	"special_items": "",
	"storage_needs": "",
	"budget": 1200
}`

func TestExtractCompleteProfile(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{out: completeMove}
	ex := newExtractor(t, completer)

	got, err := ex.Extract(context.Background(), Request{UserID: "u1", Vertical: "movers", Dialogue: "I am moving to Dallas"})
	require.NoError(t, err)

	assert.Empty(t, got.Missing)
	assert.Equal(t, "movers", got.Vertical)
	assert.Equal(t, "1200", got.Fields["budget"])
	assert.NotContains(t, got.Fields, "special_items")

	profile, err := got.Profile()
	require.NoError(t, err)
	assert.True(t, profile.Complete)
	assert.Equal(t, "u1", profile.UserID)
	assert.Equal(t, "78701", profile.Fields["origin_zip"])

	require.Len(t, completer.reqs, 1)
	req := completer.reqs[0]
	assert.Equal(t, "movers_profile", req.SchemaName)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "moving")
	assert.Equal(t, "I am moving to Dallas", req.Messages[1].Content)
	assert.Contains(t, req.Schema["required"], "inventory")
}

func TestExtractReportsMissingFields(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, &fakeCompleter{out: `{"name": "Dana", "phone": " ", "origin_zip": "78701"}`})

	got, err := ex.Extract(context.Background(), Request{UserID: "u1", Vertical: "movers", Dialogue: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"phone", "destination_zip", "move_date", "home_size", "inventory"}, got.Missing)

	_, err = got.Profile()
	require.ErrorIs(t, err, contractx.ErrIntakeIncomplete)
	var incomplete *contractx.IncompleteFieldsError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, got.Missing, incomplete.Missing)
}

func TestExtractUnknownVerticalUsesDefault(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, &fakeCompleter{out: completeMove})

	got, err := ex.Extract(context.Background(), Request{UserID: "u1", Vertical: "space_travel", Dialogue: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "movers", got.Vertical)
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty dialogue", func(t *testing.T) {
		t.Parallel()
		ex := newExtractor(t, &fakeCompleter{out: completeMove})
		_, err := ex.Extract(context.Background(), Request{UserID: "u1", Dialogue: "  "})
		require.ErrorIs(t, err, ErrEmptyDialogue)
	})

	t.Run("model failure", func(t *testing.T) {
		t.Parallel()
		ex := newExtractor(t, &fakeCompleter{err: errors.New("429")})
		_, err := ex.Extract(context.Background(), Request{UserID: "u1", Dialogue: "hi"})
		require.ErrorIs(t, err, contractx.ErrModelInvoke)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		ex := newExtractor(t, &fakeCompleter{out: "not json"})
		_, err := ex.Extract(context.Background(), Request{UserID: "u1", Dialogue: "hi"})
		require.ErrorIs(t, err, contractx.ErrSchemaViolation)
	})

	t.Run("nested value", func(t *testing.T) {
		t.Parallel()
		ex := newExtractor(t, &fakeCompleter{out: `{"name": {"first": "Dana"}}`})
		_, err := ex.Extract(context.Background(), Request{UserID: "u1", Dialogue: "hi"})
		require.ErrorIs(t, err, contractx.ErrSchemaViolation)
	})
}

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, prompt.MustLoadRegistry(), "p")
	require.Error(t, err)
	_, err = New(&fakeCompleter{}, nil, "p")
	require.Error(t, err)
	_, err = New(&fakeCompleter{}, prompt.MustLoadRegistry(), " ")
	require.ErrorIs(t, err, contractx.ErrPromptMissing)
}

func TestOpenAICompleterSendsJSONSchema(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"name\":\"Dana\"}"}}]
		}`))
	}))
	defer srv.Close()

	client := openaisdk.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	completer, err := NewOpenAICompleter(&client, "test-model", 0)
	require.NoError(t, err)

	out, err := completer.CompleteJSON(context.Background(), CompletionRequest{
		SchemaName: "movers_profile",
		Schema:     profileSchema([]string{"name"}),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Dana"}`, out)

	assert.Equal(t, "test-model", body["model"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	jsonSchema, ok := format["json_schema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "movers_profile", jsonSchema["name"])
	assert.Equal(t, true, jsonSchema["strict"])
}
