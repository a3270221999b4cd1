package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vidfriends/genbridge/internal/identity"
	"github.com/vidfriends/genbridge/internal/models"
	"github.com/vidfriends/genbridge/internal/refresh"
)

type providerStub struct {
	token   string
	err     error
	subject *models.Subject
	forced  bool
}

func (p *providerStub) FreshToken(_ context.Context, force bool) (string, error) {
	p.forced = force
	return p.token, p.err
}

func (p *providerStub) CurrentSubject(context.Context) (*models.Subject, error) {
	return p.subject, nil
}

func TestAgentHandlerRefresh(t *testing.T) {
	tests := []struct {
		name     string
		provider *providerStub
		success  bool
		reason   string
	}{
		{
			name:     "signed in",
			provider: &providerStub{token: strings.Repeat("t", 150), subject: &models.Subject{ID: "uid-1"}},
			success:  true,
		},
		{
			name:     "not signed in",
			provider: &providerStub{err: identity.ErrNotSignedIn},
			reason:   refresh.ReasonDenied,
		},
		{
			name:     "no subject",
			provider: &providerStub{token: "abc"},
			reason:   refresh.ReasonDenied,
		},
		{
			name:     "provider failure",
			provider: &providerStub{err: errors.New("idp down")},
			reason:   refresh.ReasonUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AgentHandler{Provider: tt.provider}
			body, _ := json.Marshal(refresh.Request{Action: "refreshToken", ForceRefresh: true})
			rec := httptest.NewRecorder()

			handler.Refresh(rec, httptest.NewRequest(http.MethodPost, refresh.Path, bytes.NewReader(body)))

			var resp refresh.Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Success != tt.success || resp.Reason != tt.reason {
				t.Fatalf("unexpected response %+v", resp)
			}
			if !tt.provider.forced {
				t.Fatal("expected forced refresh")
			}
		})
	}
}

func TestAgentHandlerRejectsUnknownAction(t *testing.T) {
	handler := AgentHandler{Provider: &providerStub{}}
	rec := httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, refresh.Path, strings.NewReader(`{"action":"downloadVideo"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestRefreshChannelAgainstAgentRoutes(t *testing.T) {
	provider := &providerStub{token: strings.Repeat("t", 150), subject: &models.Subject{ID: "uid-7", Email: "x@example.com"}}
	mux := http.NewServeMux()
	RegisterAgentRoutes(mux, provider)
	server := httptest.NewServer(mux)
	defer server.Close()

	channel := refresh.NewChannel(server.URL, time.Second)
	credential, err := channel.RequestFreshCredential(context.Background())
	if err != nil {
		t.Fatalf("request fresh credential: %v", err)
	}
	if credential.Token != provider.token || credential.Subject.ID != "uid-7" {
		t.Fatalf("unexpected credential %+v", credential)
	}

	provider.subject = nil
	if _, err := channel.RequestFreshCredential(context.Background()); !errors.Is(err, refresh.ErrAuthDenied) {
		t.Fatalf("expected ErrAuthDenied got %v", err)
	}

	server.Close()
	if _, err := channel.RequestFreshCredential(context.Background()); !errors.Is(err, refresh.ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable got %v", err)
	}
}
