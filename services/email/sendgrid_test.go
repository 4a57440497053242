package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type sendgridAPIMock struct {
	mu     sync.Mutex
	reqs   []rest.Request
	status int
	err    error
}

func (m *sendgridAPIMock) API(req rest.Request) (*rest.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &rest.Response{StatusCode: m.status, Body: `{}`}, nil
}

func newTestSendgridService(api *sendgridAPIMock) *SendgridService {
	conf := core.NewTestConfig()
	conf.SendgridApiKey = "SG.test"
	svc := NewSendgridService(conf, nopLogger{})
	svc.apiFunc = api.API
	return svc
}

func testMessage() core.EmailMessage {
	return core.EmailMessage{
		To:          []mail.Address{{Name: "Ana", Address: "ana@example.com"}},
		Bcc:         []mail.Address{{Address: "office@example.com"}},
		Subject:     "Your account",
		TextContent: "hello Ana",
		HTMLContent: "<p>hello Ana</p>",
	}
}

func TestSendgridService_send(t *testing.T) {
	api := &sendgridAPIMock{status: http.StatusAccepted}
	svc := newTestSendgridService(api)

	require.NoError(t, svc.send(testMessage()))
	require.Len(t, api.reqs, 1)

	req := api.reqs[0]
	assert.Equal(t, rest.Method(http.MethodPost), req.Method)
	assert.Equal(t, host+endpoint, req.BaseURL)
	assert.Equal(t, "Bearer SG.test", req.Headers["Authorization"])

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
			Bcc []struct {
				Email string `json:"email"`
			} `json:"bcc"`
		} `json:"personalizations"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "noreply@localhost", body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Academia] Your account", body.Personalizations[0].Subject)
	assert.Equal(t, "ana@example.com", body.Personalizations[0].To[0].Email)
	assert.Equal(t, "office@example.com", body.Personalizations[0].Bcc[0].Email)
	require.Len(t, body.Content, 2)
	assert.Equal(t, "text/plain", body.Content[0].Type)
	assert.Equal(t, "text/html", body.Content[1].Type)
}

func TestSendgridService_send_failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
	}{
		{name: "client error", status: http.StatusBadRequest},
		{name: "server error", status: http.StatusBadGateway},
		{name: "transport error", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestSendgridService(&sendgridAPIMock{status: tt.status, err: tt.err})
			assert.Error(t, svc.send(testMessage()))
		})
	}

	t.Run("breaker opens after consecutive server errors", func(t *testing.T) {
		api := &sendgridAPIMock{status: http.StatusServiceUnavailable}
		svc := newTestSendgridService(api)
		for i := 0; i < 5; i++ {
			assert.Error(t, svc.send(testMessage()))
		}
		assert.Len(t, api.reqs, 3)
	})

	t.Run("client errors keep the breaker closed", func(t *testing.T) {
		api := &sendgridAPIMock{status: http.StatusBadRequest}
		svc := newTestSendgridService(api)
		for i := 0; i < 5; i++ {
			assert.Error(t, svc.send(testMessage()))
		}
		assert.Len(t, api.reqs, 5)
	})
}
