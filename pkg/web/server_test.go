package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/chartchat/pkg/chat"
	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/go-go-golems/chartchat/pkg/llm"
	"github.com/go-go-golems/chartchat/pkg/llm/factory"
	"github.com/go-go-golems/chartchat/pkg/pages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartAnswer = "Ventas por mes:\n\n```javascript\n" +
	"const m = df.groupBy('mes').agg({venta_total: 'sum'});\n" +
	"fig = styled_fig(px.bar(m, {x: 'mes', y: 'venta_total'}), 'Ventas por mes');\n" +
	"```\n"

func newTestServer(t *testing.T, client llm.Client) *Server {
	t.Helper()
	dir := t.TempDir()
	csv := "fecha,mes,venta_total\n" +
		"2024-01-05,2024-01,100\n" +
		"2024-01-20,2024-01,50\n" +
		"2024-02-03,2024-02,80\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fct_ventas_diarias.csv"), []byte(csv), 0o644))

	s, err := NewServer(pages.Default(), dataset.NewLoader(dir), chat.NewAssistant(client, factory.ProviderClaude))
	require.NoError(t, err)
	return s
}

func answering(text string) llm.Client {
	return llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: text, Model: "test"}, nil
	})
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func do(h http.Handler, method, target string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexListsPages(t *testing.T) {
	h := newTestServer(t, answering("hola")).Handler()
	rec := do(h, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/pages/ventas"`)
	assert.Contains(t, rec.Body.String(), "Ainara Helados")
}

func TestAskRendersChartTurn(t *testing.T) {
	h := newTestServer(t, answering(chartAnswer)).Handler()

	rec := do(h, http.MethodGet, "/pages/ventas", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)

	rec = do(h, http.MethodPost, "/pages/ventas/ask", url.Values{"q": {"muéstrame las ventas por mes"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/pages/ventas#last", rec.Header().Get("Location"))

	rec = do(h, http.MethodGet, "/api/pages/ventas/turns", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleUser, turns[0].Role)
	assert.Equal(t, "muéstrame las ventas por mes", turns[0].DisplayText)
	assert.Equal(t, "Ventas por mes:", turns[1].DisplayText)
	assert.Equal(t, chartAnswer, turns[1].RawResponse)
	require.NotNil(t, turns[1].Chart)
	assert.Empty(t, turns[1].Error)

	rec = do(h, http.MethodGet, "/pages/ventas", nil, cookie)
	body := rec.Body.String()
	chartURL := "/pages/ventas/charts/" + turns[1].ID.String()
	assert.Contains(t, body, chartURL)
	assert.Contains(t, body, "<p>Ventas por mes:</p>")

	rec = do(h, http.MethodGet, chartURL, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newTestServer(t, answering("hola")).Handler()
	a := sessionCookie(t, do(h, http.MethodGet, "/pages/ventas", nil, nil))
	b := sessionCookie(t, do(h, http.MethodGet, "/pages/ventas", nil, nil))
	require.NotEqual(t, a.Value, b.Value)

	do(h, http.MethodPost, "/pages/ventas/ask", url.Values{"q": {"hola"}}, a)

	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal(do(h, http.MethodGet, "/api/pages/ventas/turns", nil, b).Body.Bytes(), &turns))
	assert.Empty(t, turns)
	require.NoError(t, json.Unmarshal(do(h, http.MethodGet, "/api/pages/ventas/turns", nil, a).Body.Bytes(), &turns))
	assert.Len(t, turns, 2)
	require.NoError(t, json.Unmarshal(do(h, http.MethodGet, "/api/pages/pedidos/turns", nil, a).Body.Bytes(), &turns))
	assert.Empty(t, turns)
}

func TestResetClearsTranscripts(t *testing.T) {
	h := newTestServer(t, answering("hola")).Handler()
	cookie := sessionCookie(t, do(h, http.MethodGet, "/pages/ventas", nil, nil))
	do(h, http.MethodPost, "/pages/ventas/ask", url.Values{"q": {"hola"}}, cookie)

	rec := do(h, http.MethodPost, "/reset", url.Values{"page": {"ventas"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/pages/ventas", rec.Header().Get("Location"))

	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal(do(h, http.MethodGet, "/api/pages/ventas/turns", nil, cookie).Body.Bytes(), &turns))
	assert.Empty(t, turns)
}

func TestEmptyQuestionIsIgnored(t *testing.T) {
	h := newTestServer(t, answering("hola")).Handler()
	cookie := sessionCookie(t, do(h, http.MethodGet, "/pages/ventas", nil, nil))
	rec := do(h, http.MethodPost, "/pages/ventas/ask", url.Values{"q": {"   "}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal(do(h, http.MethodGet, "/api/pages/ventas/turns", nil, cookie).Body.Bytes(), &turns))
	assert.Empty(t, turns)
}

func TestDisabledAssistantShowsMessage(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	rec := do(h, http.MethodGet, "/pages/ventas", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Configura tu ANTHROPIC_API_KEY para usar el asistente AI.")
	assert.NotContains(t, rec.Body.String(), `action="/pages/ventas/ask"`)

	rec = do(h, http.MethodPost, "/pages/ventas/ask", url.Values{"q": {"hola"}}, sessionCookie(t, rec))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownPageAndChart(t *testing.T) {
	h := newTestServer(t, answering("hola")).Handler()
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/pages/inventario", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/pages/ventas/charts/nope", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		do(h, http.MethodGet, "/pages/ventas/charts/6f1c8d0e-8b0f-4b55-9d43-1f1d9b1c1e11", nil, nil).Code)
}

func TestNoChartShowsWarning(t *testing.T) {
	h := newTestServer(t, answering("Listo:\n\n```javascript\nconst x = 1;\n```\n")).Handler()
	cookie := sessionCookie(t, do(h, http.MethodGet, "/pages/ventas", nil, nil))
	do(h, http.MethodPost, "/pages/ventas/ask", url.Values{"q": {"hola"}}, cookie)

	body := do(h, http.MethodGet, "/pages/ventas", nil, cookie).Body.String()
	assert.Contains(t, body, `<p class="warning">El codigo no genero un grafico`)
	assert.NotContains(t, body, `<p class="error">`)
}
