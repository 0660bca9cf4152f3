package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/campaign"
	"github.com/athomewithrose/homeletter/mock"
	"github.com/athomewithrose/homeletter/pkg/hash"
)

const (
	testSiteURL = "https://ashleyrose.com"
	testSecret  = "da02e221bc331c9875c5e1299fa8d765"
)

type fixture struct {
	server      *Server
	subscribers *mock.SubscriberService
	newsletters *mock.NewsletterService
	blog        *mock.BlogService
	welcome     *mock.WelcomeService
	transport   *mock.MailTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		server:      NewServer(zerolog.Nop()),
		subscribers: new(mock.SubscriberService),
		newsletters: new(mock.NewsletterService),
		blog:        new(mock.BlogService),
		welcome:     new(mock.WelcomeService),
		transport:   new(mock.MailTransport),
	}

	renderer, err := campaign.NewRenderer(campaign.Site{Name: "At home with Rose"})
	require.NoError(t, err)

	f.server.SiteURL = testSiteURL
	f.server.HMACSecret = testSecret
	f.server.SubscriberService = f.subscribers
	f.server.NewsletterService = f.newsletters
	f.server.BlogService = f.blog
	f.server.WelcomeService = f.welcome
	f.server.Sender = campaign.NewSender(
		f.subscribers,
		f.newsletters,
		campaign.NewResolver(f.blog, testSiteURL, zerolog.Nop()),
		renderer,
		f.transport,
		zerolog.Nop(),
		campaign.Options{BaseURL: testSiteURL},
	)

	return f
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, target, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) *homeletter.SubscriptionResponse {
	t.Helper()

	var resp homeletter.SubscriptionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return &resp
}

func signed(path string) map[string]string {
	signature, _ := hash.ComputeHmac256(path, testSecret)
	return map[string]string{signatureHeader: signature}
}

func TestSubscribeHandler(t *testing.T) {
	f := newFixture(t)

	email := "foo@gmail.com"
	token := uuid.NewV4().String()
	subscriber := &homeletter.Subscriber{ID: 1, Email: email, UnsubscribeToken: token, IsActive: true}
	f.subscribers.On("AddSubscriber", email).Return(&homeletter.SubscribeResult{
		Subscriber: subscriber,
		Message:    homeletter.MessageSubscribed,
	}, nil)
	f.welcome.On("SendWelcome", tmock.Anything, email, testSiteURL+"/newsletter/unsubscribe?token="+token).Return(nil)

	w := f.do(t, http.MethodPost, "/api/newsletter/subscribe", &homeletter.SubscriptionRequest{Email: " Foo@Gmail.com "}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, homeletter.MessageSubscribed, resp.Message)
	f.welcome.AssertExpectations(t)
}

func TestSubscribeHandlerWelcomeFailureIsIgnored(t *testing.T) {
	f := newFixture(t)

	email := "foo@gmail.com"
	f.subscribers.On("AddSubscriber", email).Return(&homeletter.SubscribeResult{
		Subscriber:  &homeletter.Subscriber{ID: 1, Email: email, UnsubscribeToken: uuid.NewV4().String(), IsActive: true},
		Message:     homeletter.MessageReactivated,
		Reactivated: true,
	}, nil)
	f.welcome.On("SendWelcome", tmock.Anything, email, tmock.Anything).Return(errors.New("smtp down"))

	w := f.do(t, http.MethodPost, "/api/newsletter/subscribe", &homeletter.SubscriptionRequest{Email: email}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, homeletter.MessageReactivated, decodeResponse(t, w).Message)
}

func TestSubscribeHandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		err     error
		status  int
		message string
	}{
		{"missing email", "  ", nil, http.StatusBadRequest, emailRequiredMessage},
		{"invalid email", "foo@bar", nil, http.StatusBadRequest, invalidEmailMessage},
		{
			"already subscribed",
			"foo@gmail.com",
			homeletter.Errorf(homeletter.ErrConflict, "test", homeletter.MessageAlreadySubscribed),
			http.StatusBadRequest,
			homeletter.MessageAlreadySubscribed,
		},
		{
			"store failure",
			"foo@gmail.com",
			errors.New("open data/newsletter-subscribers.json: permission denied"),
			http.StatusInternalServerError,
			subscribeErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.subscribers.On("AddSubscriber", tmock.Anything).Return(nil, tt.err)

			w := f.do(t, http.MethodPost, "/api/newsletter/subscribe", &homeletter.SubscriptionRequest{Email: tt.email}, nil)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			f.welcome.AssertNotCalled(t, "SendWelcome", tmock.Anything, tmock.Anything, tmock.Anything)
		})
	}
}

func TestSubscribeGetNotAllowed(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/newsletter/subscribe", nil, nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, subscribeMethodMessage, decodeResponse(t, w).Message)
}

func TestUnsubscribeHandler(t *testing.T) {
	f := newFixture(t)

	token := uuid.NewV4().String()
	f.subscribers.On("RemoveSubscriber", token).Return(&homeletter.UnsubscribeResult{
		Message: homeletter.MessageUnsubscribed,
	}, nil)

	w := f.do(t, http.MethodPost, "/api/newsletter/unsubscribe", &homeletter.SubscriptionRequest{Token: token}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, homeletter.MessageUnsubscribed, resp.Message)
}

func TestUnsubscribeHandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		err     error
		status  int
		message string
	}{
		{"missing token", "", nil, http.StatusBadRequest, tokenRequiredMessage},
		{"short token", "abc", nil, http.StatusBadRequest, invalidTokenMessage},
		{
			"unknown token",
			"0123456789abcdef",
			homeletter.Errorf(homeletter.ErrNotFound, "test", homeletter.MessageTokenNotFound),
			http.StatusNotFound,
			homeletter.MessageTokenNotFound,
		},
		{
			"store failure",
			"0123456789abcdef",
			errors.New("disk full"),
			http.StatusInternalServerError,
			unsubscribeErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.subscribers.On("RemoveSubscriber", tmock.Anything).Return(nil, tt.err)

			w := f.do(t, http.MethodPost, "/api/newsletter/unsubscribe", &homeletter.SubscriptionRequest{Token: tt.token}, nil)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestUnsubscribeRedirect(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		err      error
		location string
	}{
		{"missing token", "", nil, "/newsletter/unsubscribe?error=missing_token"},
		{"success", "?token=0123456789abcdef", nil, "/newsletter/unsubscribe?success=true"},
		{
			"unknown token",
			"?token=0123456789abcdef",
			homeletter.Errorf(homeletter.ErrNotFound, "test", homeletter.MessageTokenNotFound),
			"/newsletter/unsubscribe?error=invalid_token",
		},
		{
			"malformed token",
			"?token=abc",
			homeletter.Errorf(homeletter.ErrInvalid, "test", homeletter.MessageInvalidToken),
			"/newsletter/unsubscribe?error=invalid_token",
		},
		{"store failure", "?token=0123456789abcdef", errors.New("disk full"), "/newsletter/unsubscribe?error=server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			result := &homeletter.UnsubscribeResult{Message: homeletter.MessageUnsubscribed}
			if tt.err != nil {
				result = nil
			}
			f.subscribers.On("RemoveSubscriber", tmock.Anything).Return(result, tt.err)

			w := f.do(t, http.MethodGet, "/api/newsletter/unsubscribe"+tt.query, nil, nil)

			assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
		})
	}
}

func TestBlogPostsHandler(t *testing.T) {
	f := newFixture(t)

	page := &homeletter.BlogPage{
		Posts:       []homeletter.BlogPost{{ID: "post-a", Slug: "post-a", Title: "Post A"}},
		TotalPosts:  11,
		TotalPages:  2,
		CurrentPage: 2,
		HasPrevPage: true,
	}
	f.blog.On("FindAll", homeletter.BlogFilter{Category: "diy", Search: "table", Page: 2, Limit: 10}).Return(page, nil)

	w := f.do(t, http.MethodGet, "/api/blog?category=diy&search=table&page=2&limit=10", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var got homeletter.BlogPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, 11, got.TotalPosts)
	assert.True(t, got.HasPrevPage)
	require.Len(t, got.Posts, 1)
	assert.Equal(t, "Post A", got.Posts[0].Title)
}

func TestBlogPostHandler(t *testing.T) {
	f := newFixture(t)

	post := &homeletter.BlogPost{ID: "post-a", Slug: "post-a", Title: "Post A", Content: "# Hello\n\n**bold** <script>"}
	f.blog.On("FindBySlug", "post-a").Return(post, nil)
	f.blog.On("FindBySlug", "nope").Return(nil, nil)
	f.blog.On("Related", post, relatedPostsLimit).Return([]homeletter.BlogPost{{ID: "post-b", Slug: "post-b"}}, nil)

	w := f.do(t, http.MethodGet, "/api/blog/post-a", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var got blogPostResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "Post A", got.Post.Title)
	assert.Equal(t, "<h1>Hello</h1><p><strong>bold</strong> &lt;script&gt;</p>", got.HTML)
	require.Len(t, got.Related, 1)
	assert.Equal(t, "post-b", got.Related[0].Slug)

	w = f.do(t, http.MethodGet, "/api/blog/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperatorEndpointsRequireSignature(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/newsletters", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/newsletters/2025-06-01-update/send", nil, signed("/api/newsletters/other/send"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.server.HMACSecret = ""
	w = f.do(t, http.MethodGet, "/api/newsletters", nil, signed("/api/newsletters"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.newsletters.AssertNotCalled(t, "FindAll", tmock.Anything)
	f.newsletters.AssertNotCalled(t, "FindByID", tmock.Anything)
}

func TestNewslettersHandler(t *testing.T) {
	f := newFixture(t)
	f.newsletters.On("FindAll", homeletter.StatusDraft).Return([]homeletter.Newsletter{
		{ID: "2025-06-01-update", Subject: "June", Status: homeletter.StatusDraft, CreatedAt: time.Now()},
	}, nil)

	w := f.do(t, http.MethodGet, "/api/newsletters?status=draft", nil, signed("/api/newsletters"))

	assert.Equal(t, http.StatusOK, w.Code)
	var got []homeletter.Newsletter
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "June", got[0].Subject)

	w = f.do(t, http.MethodGet, "/api/newsletters?status=archived", nil, signed("/api/newsletters"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendNewsletterHandler(t *testing.T) {
	f := newFixture(t)

	doc := &homeletter.Newsletter{ID: "2025-06-01-update", Subject: "June", Message: "Hi", Status: homeletter.StatusDraft}
	f.newsletters.On("FindByID", doc.ID).Return(doc, nil)
	f.newsletters.On("FindByID", "missing").Return(nil, nil)
	f.newsletters.On("UpdateStatus", doc.ID, homeletter.StatusSent, tmock.Anything).Return(true, nil)
	f.subscribers.On("ActiveSubscribers").Return([]homeletter.Subscriber{
		{ID: 1, Email: "a@example.com", UnsubscribeToken: "tok1-0123456789", IsActive: true},
	}, nil)
	f.transport.On("Verify", tmock.Anything).Return(nil)
	f.transport.On("Interval").Return(time.Duration(0))
	f.transport.On("Send", tmock.Anything, tmock.Anything).Return(nil)

	path := "/api/newsletters/2025-06-01-update/send"
	w := f.do(t, http.MethodPost, path+"?preview=true", nil, signed(path))
	assert.Equal(t, http.StatusOK, w.Code)
	var preview campaign.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&preview))
	assert.Equal(t, campaign.OutcomePreview, preview.Outcome)
	require.NotNil(t, preview.Preview)
	f.transport.AssertNotCalled(t, "Send", tmock.Anything, tmock.Anything)

	w = f.do(t, http.MethodPost, path, nil, signed(path))
	assert.Equal(t, http.StatusOK, w.Code)
	var result campaign.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, campaign.OutcomeSent, result.Outcome)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Total)

	missing := "/api/newsletters/missing/send"
	w = f.do(t, http.MethodPost, missing, nil, signed(missing))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
