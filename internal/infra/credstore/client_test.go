package credstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/infra/credstore"
	"github.com/farelink/flightgw/internal/infra/resilience"

	"go.uber.org/zap"
)

var testMasterKey = []byte("0123456789abcdef0123456789abcdef") // 32 bytes

func newTestClient(t *testing.T, baseURL string) *credstore.Client {
	t.Helper()
	client, err := credstore.New(
		&http.Client{Timeout: time.Second},
		baseURL,
		"test-token",
		testMasterKey,
		resilience.NewCircuitBreaker("credstore-test"),
		resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond},
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCredentials_SealAndFetchRoundTrip(t *testing.T) {
	want := domain.Credentials{APIKey: "ak-123", APISecret: "sk-456", AccountID: "acct-1"}

	sealed, err := credstore.Seal(testMasterKey, "amadeus-eu", want)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/credentials/amadeus-eu" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"ciphertext": sealed})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	got, err := client.Credentials(context.Background(), "amadeus-eu")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestCredentials_WrongProviderNameFailsDecryption(t *testing.T) {
	// Sealed for one provider, served for another: associated data
	// binding must reject it.
	sealed, err := credstore.Seal(testMasterKey, "amadeus-eu", domain.Credentials{APIKey: "ak"})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"ciphertext": sealed})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err = client.Credentials(context.Background(), "sabre-us")
	var confErr *domain.ErrConfiguration
	if !errors.As(err, &confErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCredentials_MissingBlobIsConfigurationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Credentials(context.Background(), "ghost")
	var confErr *domain.ErrConfiguration
	if !errors.As(err, &confErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if client.Configured(context.Background(), "ghost") {
		t.Error("Configured must report false for a missing blob")
	}
}

func TestListProviderRecords(t *testing.T) {
	records := []domain.ProviderRecord{
		{Name: "amadeus-eu", ProviderKind: domain.KindAmadeus, Priority: 10, IsActive: true, IsPrimary: true,
			SupportedCapabilities: []domain.Capability{domain.CapabilityFlightSearch}},
		{Name: "sabre-us", ProviderKind: domain.KindSabre, Priority: 20, IsActive: true,
			SupportedCapabilities: []domain.Capability{domain.CapabilityFlightSearch}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/providers" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(records)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	got, err := client.ListProviderRecords(context.Background())
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Name != "amadeus-eu" || !got[0].IsPrimary {
		t.Errorf("unexpected first record: %+v", got[0])
	}
}

func TestCircuitBreaker_TripsOnRepeated5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = client.ListProviderRecords(context.Background())
		if lastErr == nil {
			t.Fatal("expected failures against a 5xx server")
		}
	}
	// gobreaker trips after enough failures; the error stops being an
	// HTTP status error and becomes a fast rejection.
	if lastErr == nil {
		t.Fatal("expected error")
	}
	if got := fmt.Sprint(lastErr); got == "" {
		t.Error("expected descriptive error")
	}
}

func TestStatic_PutAndFetch(t *testing.T) {
	s := credstore.NewStatic(nil)
	s.Put("mockair", domain.Credentials{APIKey: "sandbox"})

	creds, err := s.Credentials(context.Background(), "mockair")
	if err != nil {
		t.Fatalf("static credentials: %v", err)
	}
	if creds.APIKey != "sandbox" {
		t.Errorf("expected sandbox key, got %s", creds.APIKey)
	}
	if !s.Configured(context.Background(), "mockair") {
		t.Error("expected configured=true")
	}
	if s.Configured(context.Background(), "ghost") {
		t.Error("expected configured=false for unknown provider")
	}
}
