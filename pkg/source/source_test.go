package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
	"sfextract/pkg/retry"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testRetrier(maxAttempts int, s *recordingSleeper) *retry.Retrier {
	return retry.NewRetrier(retry.Policy{MaxAttempts: maxAttempts, BaseDelay: time.Second}, nil).WithSleeper(s.Sleep)
}

// step is one scripted response
type step struct {
	status     int
	body       string
	retryAfter string
}

// scriptedAPI serves scripted responses per path and records requests
type scriptedAPI struct {
	t        *testing.T
	mu       sync.Mutex
	scripts  map[string][]step
	requests []*http.Request
	server   *httptest.Server
}

func newScriptedAPI(t *testing.T) *scriptedAPI {
	api := &scriptedAPI{t: t, scripts: make(map[string][]step)}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (a *scriptedAPI) on(path string, steps ...step) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[path] = append(a.scripts[path], steps...)
}

func (a *scriptedAPI) serve(w http.ResponseWriter, r *http.Request) {
	// Parse before cloning; the body is gone once the handler returns
	r.ParseForm()
	a.mu.Lock()
	a.requests = append(a.requests, r.Clone(context.Background()))
	steps := a.scripts[r.URL.Path]
	if len(steps) == 0 {
		a.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	s := steps[0]
	if len(steps) > 1 {
		a.scripts[r.URL.Path] = steps[1:]
	}
	a.mu.Unlock()

	if s.retryAfter != "" {
		w.Header().Set("Retry-After", s.retryAfter)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.status)
	fmt.Fprint(w, s.body)
}

func (a *scriptedAPI) requestsTo(path string) []*http.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*http.Request
	for _, r := range a.requests {
		if r.URL.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func pageBody(next string, ids ...int) string {
	results := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		results = append(results, map[string]interface{}{"userId": fmt.Sprintf("u%d", id), "seq": id})
	}
	data := map[string]interface{}{"results": results, "nextPage": nil}
	if next != "" {
		data["nextPage"] = next
	}
	b, _ := json.Marshal(map[string]interface{}{"data": data})
	return string(b)
}

func collect(t *testing.T, pages *Pages) ([]Chunk, error) {
	t.Helper()
	var chunks []Chunk
	for {
		c, ok, err := pages.Next(context.Background())
		if err != nil {
			return chunks, err
		}
		if !ok {
			return chunks, nil
		}
		chunks = append(chunks, c)
	}
}

func newTestFetcher(api *scriptedAPI, s *recordingSleeper, maxAttempts int, selectFields string) *Fetcher {
	client := NewClient(5*time.Second, nil)
	return NewFetcher(client, FetcherConfig{
		APIBaseURL:   api.server.URL,
		EntityName:   "User",
		SelectFields: selectFields,
	}, testRetrier(maxAttempts, s), logger.NewTestLogger())
}

func TestInitialURL(t *testing.T) {
	raw, err := InitialURL("https://api.example.com/", "User", "userId,email")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/odata/v2/User", u.Path)
	assert.Equal(t, "json", u.Query().Get("$format"))
	assert.Equal(t, "userId,email", u.Query().Get("$select"))

	raw, err = InitialURL("https://api.example.com", "User", "")
	require.NoError(t, err)
	u, _ = url.Parse(raw)
	assert.False(t, u.Query().Has("$select"))

	_, err = InitialURL("https://api.example.com", "", "")
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fallback := 30 * time.Second

	assert.Equal(t, 5*time.Second, ParseRetryAfter("5", fallback, now))
	assert.Equal(t, fallback, ParseRetryAfter("", fallback, now))
	assert.Equal(t, fallback, ParseRetryAfter("soon", fallback, now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-3", fallback, now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), fallback, now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), fallback, now))
}

func TestObtainToken(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/oauth/token", step{status: 200, body: `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`})

	s := &recordingSleeper{}
	auth := NewAuthenticator(NewClient(5*time.Second, nil), api.server.URL+"/oauth/token", testRetrier(3, s), nil)

	token, err := auth.ObtainToken(context.Background(), Credentials{
		ClientID: "cid", ClientSecret: "secret", CompanyID: "ACME", UserID: "svc",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	reqs := api.requestsTo("/oauth/token")
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[0].Header.Get("Content-Type"))
	require.NoError(t, reqs[0].ParseForm())
	assert.Equal(t, "cid", reqs[0].PostForm.Get("client_id"))
	assert.Equal(t, "secret", reqs[0].PostForm.Get("client_secret"))
	assert.Equal(t, "client_credentials", reqs[0].PostForm.Get("grant_type"))
	assert.Equal(t, "ACME", reqs[0].PostForm.Get("company_id"))
	assert.Equal(t, "svc", reqs[0].PostForm.Get("user_id"))
	assert.Empty(t, s.Delays())
}

func TestObtainTokenRetriesServerErrors(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/oauth/token",
		step{status: 502, body: "bad gateway"},
		step{status: 503, body: "unavailable"},
		step{status: 200, body: `{"access_token":"tok"}`},
	)

	s := &recordingSleeper{}
	auth := NewAuthenticator(NewClient(5*time.Second, nil), api.server.URL+"/oauth/token", testRetrier(5, s), nil)

	token, err := auth.ObtainToken(context.Background(), Credentials{ClientID: "cid"})
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.Delays())
}

func TestObtainTokenRejectionIsFatal(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/oauth/token", step{status: 401, body: `{"error":"invalid_client"}`})

	s := &recordingSleeper{}
	auth := NewAuthenticator(NewClient(5*time.Second, nil), api.server.URL+"/oauth/token", testRetrier(5, s), nil)

	_, err := auth.ObtainToken(context.Background(), Credentials{ClientID: "cid"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.False(t, retry.IsExhausted(err))
	assert.Len(t, api.requestsTo("/oauth/token"), 1)
	assert.Empty(t, s.Delays())
}

func TestObtainTokenExhaustion(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/oauth/token", step{status: 500, body: "down"})

	s := &recordingSleeper{}
	auth := NewAuthenticator(NewClient(5*time.Second, nil), api.server.URL+"/oauth/token", testRetrier(3, s), nil)

	_, err := auth.ObtainToken(context.Background(), Credentials{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, retry.IsExhausted(err))
	assert.Len(t, api.requestsTo("/oauth/token"), 3)
}

func TestObtainTokenWithoutAccessToken(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/oauth/token", step{status: 200, body: `{"token_type":"Bearer"}`})

	auth := NewAuthenticator(NewClient(5*time.Second, nil), api.server.URL+"/oauth/token", testRetrier(3, &recordingSleeper{}), nil)
	_, err := auth.ObtainToken(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Len(t, api.requestsTo("/oauth/token"), 1)
}

func TestFetchPagesInOrder(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: pageBody(api.server.URL+"/page2?$skiptoken=2", 1, 2)})
	api.on("/page2", step{status: 200, body: pageBody(api.server.URL+"/page3?$skiptoken=3", 3, 4)})
	api.on("/page3", step{status: 200, body: pageBody("", 5, 6)})

	s := &recordingSleeper{}
	fetcher := newTestFetcher(api, s, 3, "userId,seq")
	chunks, err := collect(t, fetcher.Fetch("tok", ""))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	var seqs []string
	for _, c := range chunks {
		for _, r := range c.Records {
			seqs = append(seqs, r.Get("seq").Raw)
		}
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, seqs)
	assert.Equal(t, api.server.URL+"/page2?$skiptoken=2", chunks[0].Next)
	assert.Equal(t, []int{1, 2, 3}, []int{chunks[0].Page, chunks[1].Page, chunks[2].Page})
	assert.True(t, chunks[2].Last())

	first := api.requestsTo("/odata/v2/User")
	require.Len(t, first, 1)
	assert.Equal(t, "Bearer tok", first[0].Header.Get("Authorization"))
	assert.Equal(t, "json", first[0].URL.Query().Get("$format"))
	assert.Equal(t, "userId,seq", first[0].URL.Query().Get("$select"))

	// Continuations are used verbatim, without the field selection
	second := api.requestsTo("/page2")
	require.Len(t, second, 1)
	assert.Equal(t, "2", second[0].URL.Query().Get("$skiptoken"))
	assert.False(t, second[0].URL.Query().Has("$select"))

	_, ok, err := fetcher.Fetch("tok", "").Next(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok, "a new sequence starts over")
}

func TestFetchTransientFailureBacksOff(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: pageBody(api.server.URL+"/page2", 1, 2)})
	api.on("/page2", step{status: 503, body: "busy"}, step{status: 200, body: pageBody(api.server.URL+"/page3", 3, 4)})
	api.on("/page3", step{status: 200, body: pageBody("", 5, 6)})

	s := &recordingSleeper{}
	chunks, err := collect(t, newTestFetcher(api, s, 3, "").Fetch("tok", ""))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []time.Duration{time.Second}, s.Delays())
	assert.Len(t, api.requestsTo("/page2"), 2)
}

func TestFetchRateLimitIsUncounted(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User",
		step{status: 429, retryAfter: "5"},
		step{status: 429},
		step{status: 200, body: pageBody("", 1)},
	)

	s := &recordingSleeper{}
	fetcher := newTestFetcher(api, s, 1, "userId")
	fetcher.client.SetDefaultRetryAfter(30 * time.Second)

	chunks, err := collect(t, fetcher.Fetch("tok", ""))
	require.NoError(t, err, "rate-limit waits must not consume the single attempt")
	require.Len(t, chunks, 1)
	assert.Equal(t, []time.Duration{5 * time.Second, 30 * time.Second}, s.Delays())

	reqs := api.requestsTo("/odata/v2/User")
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, "userId", r.URL.Query().Get("$select"), "the same first-page request is repeated")
	}
}

func TestFetchSkipsEmptyPages(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: pageBody(api.server.URL + "/page2")})
	api.on("/page2", step{status: 200, body: pageBody(api.server.URL+"/page3", 1)})
	api.on("/page3", step{status: 200, body: pageBody("")})

	chunks, err := collect(t, newTestFetcher(api, &recordingSleeper{}, 1, "").Fetch("tok", ""))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].Page)
	assert.Equal(t, api.server.URL+"/page3", chunks[0].Next)
	assert.Len(t, api.requestsTo("/page3"), 1)
}

func TestFetchExhaustionIsFatal(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: pageBody(api.server.URL+"/page2", 1)})
	api.on("/page2", step{status: 500, body: "down"})

	s := &recordingSleeper{}
	pages := newTestFetcher(api, s, 3, "").Fetch("tok", "")

	_, ok, err := pages.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = pages.Next(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, retry.IsExhausted(err))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.Delays())

	// The sequence is finished after a fatal error
	_, ok, err = pages.Next(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchClientErrorIsFatal(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 403, body: "forbidden"})

	s := &recordingSleeper{}
	_, err := collect(t, newTestFetcher(api, s, 5, "").Fetch("tok", ""))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.Empty(t, s.Delays())
}

func TestFetchResumesFromContinuation(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/page7", step{status: 200, body: pageBody("", 13, 14)})

	chunks, err := collect(t, newTestFetcher(api, &recordingSleeper{}, 1, "userId").Fetch("tok", api.server.URL+"/page7?$skiptoken=7"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Empty(t, api.requestsTo("/odata/v2/User"))

	reqs := api.requestsTo("/page7")
	require.Len(t, reqs, 1)
	assert.Equal(t, "7", reqs[0].URL.Query().Get("$skiptoken"))
}

func TestFetchODataShape(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: `{"d":{"results":[{"userId":"a"}],"__next":"` + api.server.URL + `/p2"}}`})
	api.on("/p2", step{status: 200, body: `{"d":{"results":[{"userId":"b"}]}}`})

	client := NewClient(5*time.Second, nil)
	fetcher := NewFetcher(client, FetcherConfig{
		APIBaseURL:   api.server.URL,
		EntityName:   "User",
		ResultsPath:  "d.results",
		NextPagePath: "d.__next",
	}, testRetrier(1, &recordingSleeper{}), nil)

	chunks, err := collect(t, fetcher.Fetch("tok", ""))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b", chunks[1].Records[0].Get("userId").String())
}

func TestFetchInvalidJSONIsRetried(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: `{"data":{"results":[{"userId"`}, step{status: 200, body: pageBody("", 1)})

	s := &recordingSleeper{}
	chunks, err := collect(t, newTestFetcher(api, s, 2, "").Fetch("tok", ""))
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Len(t, s.Delays(), 1)
}

func TestFetchKeepsNonObjectRecords(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: `{"data":{"results":[{"a":1}, 42, "scalar", null]}}`})

	chunks, err := collect(t, newTestFetcher(api, &recordingSleeper{}, 3, "").Fetch("tok", ""))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	var raw []string
	for _, r := range chunks[0].Records {
		raw = append(raw, r.String())
	}
	assert.Equal(t, []string{`{"a":1}`, `42`, `"scalar"`, `null`}, raw)
}

func TestFetchKeepsRecordBytes(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: `{"data":{"results":[{"id":12345678901234567890,"ratio":0.10,"z":1,"a":2,"a":3}]}}`})

	chunks, err := collect(t, newTestFetcher(api, &recordingSleeper{}, 1, "").Fetch("tok", ""))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, `{"id":12345678901234567890,"ratio":0.10,"z":1,"a":2,"a":3}`, chunks[0].Records[0].String())
}

func TestFetchKeepsInvalidUTF8(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 200, body: "{\"data\":{\"results\":[{\"userId\":\"u\xff1\"}]}}"})

	chunks, err := collect(t, newTestFetcher(api, &recordingSleeper{}, 1, "").Fetch("tok", ""))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, Record("{\"userId\":\"u\xff1\"}"), chunks[0].Records[0])
}

func TestFetchCancelledDuringWait(t *testing.T) {
	api := newScriptedAPI(t)
	api.on("/odata/v2/User", step{status: 429, retryAfter: "3600"})

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := NewFetcher(NewClient(5*time.Second, nil), FetcherConfig{APIBaseURL: api.server.URL, EntityName: "User"},
		retry.NewRetrier(retry.Policy{MaxAttempts: 3, BaseDelay: time.Second}, nil).WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return retry.Wait(ctx, d)
		}), nil)

	_, _, err := fetcher.Fetch("tok", "").Next(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
