package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottdmilner/pipebot/internal/metrics"
	"github.com/scottdmilner/pipebot/internal/notify"
	"github.com/scottdmilner/pipebot/internal/notify/mocks"
)

const (
	shotgridSecret = "sg-secret"
	pipebotSecret  = "pb-secret"
)

func testConfig() Config {
	return Config{
		Listen: "127.0.0.1:0",
		Endpoints: []EndpointConfig{
			{
				Path:            "/shotgrid",
				Handler:         HandlerRelay,
				ChannelID:       "111",
				Secret:          shotgridSecret,
				SignatureHeader: "x-sg-signature",
			},
			{
				Path:            "/model_checker",
				Handler:         HandlerModelChecker,
				ChannelID:       "222",
				Secret:          pipebotSecret,
				SignatureHeader: "x-pipebot-signature",
				MaxBodySize:     256,
			},
		},
		DeliveryTimeout: time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, sender notify.Sender, m *metrics.Metrics) *Server {
	t.Helper()
	s, err := New(testConfig(), sender, m, quietLogger())
	require.NoError(t, err)
	return s
}

func signedRequest(path, header, secret string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(header, Sign(body, secret))
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestShotgridRelay(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	body := []byte(`{"event_type":"Shotgun_Version_Change","entity":{"id":7}}`)
	sender.EXPECT().
		Send(gomock.Any(), "111", gomock.Any()).
		DoAndReturn(func(ctx context.Context, channelID string, msg notify.Message) error {
			assert.True(t, strings.HasPrefix(msg.Content, "```json\n{\n"))
			assert.Contains(t, msg.Content, `"event_type": "Shotgun_Version_Change"`)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return nil
		})

	s := newTestServer(t, sender, nil)
	rec := serve(s, signedRequest("/shotgrid", "x-sg-signature", shotgridSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestShotgridTamperedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	m := metrics.New()
	s := newTestServer(t, sender, m)

	body := []byte(`{"event_type":"Shotgun_Version_Change"}`)
	req := httptest.NewRequest(http.MethodPost, "/shotgrid", bytes.NewReader([]byte(`{"event_type":"tampered"}`)))
	req.Header.Set("x-sg-signature", Sign(body, shotgridSecret))
	rec := serve(s, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec))
	count, err := testutil.GatherAndCount(m.Registry(), "pipebot_webhook_signature_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestModelCheckerNotice(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	fixed := time.Date(2024, 5, 4, 10, 30, 0, 0, time.UTC)
	body := []byte(`{"asset":"chair_v003","user":"jdoe","path":"/groups/film/chair.usd"}`)

	sender.EXPECT().
		Send(gomock.Any(), "222", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg notify.Message) error {
			require.NotNil(t, msg.Embed)
			assert.Equal(t, "Model Publish Override", msg.Embed.Title)
			assert.Contains(t, msg.Embed.Description, "**chair_v003**")
			assert.Contains(t, msg.Embed.Description, "**jdoe**")
			assert.Contains(t, msg.Embed.Description, "`/groups/film/chair.usd`")
			assert.Equal(t, notify.ColorYellow, msg.Embed.Color)
			assert.Equal(t, fixed, msg.Embed.Timestamp)
			return nil
		}).
		Times(1)

	s := newTestServer(t, sender, nil)
	s.now = func() time.Time { return fixed }

	rec := serve(s, signedRequest("/model_checker", "x-pipebot-signature", pipebotSecret, body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignatureHeaderIsCaseInsensitive(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), "111", gomock.Any()).Return(nil)

	s := newTestServer(t, sender, nil)
	body := []byte(`{"a":1}`)
	header := http.Header{}
	header.Set("X-SG-SIGNATURE", Sign(body, shotgridSecret))

	resp := s.Dispatch(context.Background(), Request{Path: "/shotgrid", Header: header, Body: body})
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestMissingSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	s := newTestServer(t, sender, nil)
	req := httptest.NewRequest(http.MethodPost, "/shotgrid", strings.NewReader(`{"a":1}`))
	rec := serve(s, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec))
}

func TestSignatureForOtherEndpointRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	s := newTestServer(t, sender, nil)
	body := []byte(`{"asset":"a","user":"u","path":"p"}`)
	rec := serve(s, signedRequest("/model_checker", "x-pipebot-signature", shotgridSecret, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMalformedPayload(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header string
		secret string
		body   string
	}{
		{"relay not json", "/shotgrid", "x-sg-signature", shotgridSecret, `{"broken":`},
		{"model checker missing field", "/model_checker", "x-pipebot-signature", pipebotSecret, `{"asset":"a","user":"u"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sender := mocks.NewMockSender(ctrl)

			s := newTestServer(t, sender, nil)
			rec := serve(s, signedRequest(tt.path, tt.header, tt.secret, []byte(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid payload", decodeError(t, rec))
		})
	}
}

func TestDeliveryFailureDoesNotChangeResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), "111", gomock.Any()).
		Return(&notify.DeliveryError{ChannelID: "111", Err: errors.New("gateway unavailable")})

	m := metrics.New()
	s := newTestServer(t, sender, m)
	rec := serve(s, signedRequest("/shotgrid", "x-sg-signature", shotgridSecret, []byte(`{"a":1}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeliveryDetachedFromRequestCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), "111", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ notify.Message) error {
			return ctx.Err()
		})

	s := newTestServer(t, sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := []byte(`{"a":1}`)
	resp := s.Dispatch(ctx, Request{
		Path:   "/shotgrid",
		Header: http.Header{"X-Sg-Signature": []string{Sign(body, shotgridSecret)}},
		Body:   body,
	})
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestPayloadTooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	s := newTestServer(t, sender, nil)
	body := []byte(fmt.Sprintf(`{"asset":"%s","user":"u","path":"p"}`, strings.Repeat("x", 300)))
	rec := serve(s, signedRequest("/model_checker", "x-pipebot-signature", pipebotSecret, body))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRootReturnsBadRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestServer(t, mocks.NewMockSender(ctrl), nil)

	req := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(`{"ignored":true}`))
	req.Header.Set("x-sg-signature", "sha1=whatever")
	rec := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUnknownRoutesAreGenericNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestServer(t, mocks.NewMockSender(ctrl), nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/github"},
		{http.MethodGet, "/shotgrid"},
		{http.MethodPost, "/"},
		{http.MethodDelete, "/model_checker"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "not found", decodeError(t, rec))
		})
	}
}

func TestDispatchUnknownPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestServer(t, mocks.NewMockSender(ctrl), nil)

	resp := s.Dispatch(context.Background(), Request{Path: "/nope", Header: http.Header{}})
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestNewRejectsBadEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoints[0].Handler = "echo"
	_, err := New(cfg, nil, nil, quietLogger())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Endpoints[1].Path = cfg.Endpoints[0].Path
	_, err = New(cfg, nil, nil, quietLogger())
	assert.Error(t, err)
}

func TestStartServesAndShutsDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), "111", gomock.Any()).Return(nil)

	s := newTestServer(t, sender, nil)
	assert.Nil(t, s.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	body := []byte(`{"a":1}`)
	req, err := http.NewRequest(http.MethodPost, "http://"+s.Addr().String()+"/shotgrid", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("x-sg-signature", Sign(body, shotgridSecret))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
