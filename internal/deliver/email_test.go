package deliver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleDigest() model.Digest {
	return model.Digest{
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		TotalSeen:   12,
		TopPicks: []model.ScoredPaper{
			{
				Paper: model.Paper{
					Source:      "arxiv",
					SourceID:    "2603.01234",
					Title:       "Closed-Loop Bioreactor Control",
					Authors:     []string{"A. Reyes", "B. Okafor"},
					AbstractURL: "https://arxiv.org/abs/2603.01234",
				},
				Keep:       true,
				Summary:    "RL controller for perfusion bioreactors.",
				FinalScore: 88,
			},
		},
		Buckets: []model.DigestBucket{
			{
				Name: "Bioprocess Engineering",
				Papers: []model.ScoredPaper{
					{
						Paper: model.Paper{
							Source:   "biorxiv",
							SourceID: "10.1101/2026.03.10.123456",
							Title:    "Scalable Cell-Free Expression",
						},
						Keep:       true,
						FinalScore: 71,
					},
				},
			},
		},
	}
}

func TestEmailDelivererSendsRequest(t *testing.T) {
	var (
		gotAuth    string
		gotContent string
		gotBody    emailRequest
		calls      int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotAuth = r.Header.Get("Authorization")
		gotContent = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg-42"}`))
	}))
	defer srv.Close()

	d, err := NewEmailDeliverer(model.EmailConfig{
		Endpoint:      srv.URL,
		APIKey:        "re_test",
		From:          "digest@example.org",
		FromName:      "Paperboy",
		Recipients:    []string{"team@example.org"},
		SubjectPrefix: "Lab Digest",
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewEmailDeliverer: %v", err)
	}

	if err := d.Deliver(context.Background(), sampleDigest()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected 1 API call, got %d", calls)
	}
	if gotAuth != "Bearer re_test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContent != "application/json" {
		t.Errorf("Content-Type = %q", gotContent)
	}
	if gotBody.From != "Paperboy <digest@example.org>" {
		t.Errorf("From = %q", gotBody.From)
	}
	if len(gotBody.To) != 1 || gotBody.To[0] != "team@example.org" {
		t.Errorf("To = %v", gotBody.To)
	}
	if gotBody.Subject != "Lab Digest - 2026-03-14 (2 papers)" {
		t.Errorf("Subject = %q", gotBody.Subject)
	}
	if !strings.Contains(gotBody.HTML, "Closed-Loop Bioreactor Control") {
		t.Errorf("HTML body missing paper title")
	}
	if !strings.Contains(gotBody.Text, "Closed-Loop Bioreactor Control") {
		t.Errorf("text body missing paper title")
	}
}

func TestEmailDelivererAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"invalid API key"}`))
	}))
	defer srv.Close()

	d, err := NewEmailDeliverer(model.EmailConfig{
		Endpoint:   srv.URL,
		APIKey:     "re_bad",
		From:       "digest@example.org",
		Recipients: []string{"team@example.org"},
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewEmailDeliverer: %v", err)
	}

	err = d.Deliver(context.Background(), sampleDigest())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "invalid API key") {
		t.Errorf("error should include response body, got %q", err)
	}
}

func TestNewEmailDelivererValidation(t *testing.T) {
	base := model.EmailConfig{
		Endpoint:   "https://api.resend.com/emails",
		APIKey:     "re_test",
		From:       "digest@example.org",
		Recipients: []string{"team@example.org"},
	}

	cases := map[string]func(*model.EmailConfig){
		"missing key":        func(c *model.EmailConfig) { c.APIKey = "" },
		"missing recipients": func(c *model.EmailConfig) { c.Recipients = nil },
		"missing endpoint":   func(c *model.EmailConfig) { c.Endpoint = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if _, err := NewEmailDeliverer(cfg, quietLogger()); err == nil {
				t.Error("expected constructor error")
			}
		})
	}
}
