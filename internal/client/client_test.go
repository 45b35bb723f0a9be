package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dm/dashsync/internal/model"
)

const testKey = "anon-key"

// newTestClient creates a DefaultClient pointed at the given test server URL.
func newTestClient(t *testing.T, baseURL string) *DefaultClient {
	t.Helper()
	c, err := NewDefaultClient(ClientConfig{
		BaseURL:        baseURL,
		APIKey:         testKey,
		RequestTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewDefaultClient: %v", err)
	}
	return c
}

func TestFetchCollection_ChameleonInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/chameleon_inventory" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("select"); got != "*" {
			t.Errorf("select = %q, want *", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"plant_name":"BW","a1010":1,"a1070":2,"a550":3,"a875":4,"a8090":5},
			{"plant_name":"Pit","a1010":6,"a1070":7,"a550":8,"a875":9,"a8090":10}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	recs, err := c.FetchCollection(context.Background(), model.CollectionChameleonInventory)
	if err != nil {
		t.Fatalf("FetchCollection: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	first, ok := recs[0].(model.ChameleonInventory)
	if !ok {
		t.Fatalf("recs[0] is %T, want model.ChameleonInventory", recs[0])
	}
	if first.PlantName != "BW" {
		t.Errorf("recs[0].PlantName = %q, want %q (server order)", first.PlantName, "BW")
	}
	if recs[1].(model.ChameleonInventory).A8090 != 10 {
		t.Errorf("recs[1].A8090 = %v, want 10", recs[1].(model.ChameleonInventory).A8090)
	}
}

func TestFetchCollection_DefaultQueries(t *testing.T) {
	tests := []struct {
		collection model.Collection
		path       string
		order      string
		limit      string
	}{
		{model.CollectionAdmixInventory, "/rest/v1/admix_inventory", "", ""},
		{model.CollectionConcreteDemand, "/rest/v1/concrete_demand", "ship_date.desc", ""},
		{model.CollectionAsphaltDemand, "/rest/v1/asphalt_demand", "ship_date.desc", ""},
		{model.CollectionRawMaterialDemands, "/rest/v1/raw_material_demands", "demand_date.desc", ""},
		{model.CollectionPowderDemand, "/rest/v1/powder_demand", "ship_date.asc", ""},
		{model.CollectionDriverSchedule, "/rest/v1/driver_schedule", "schedule_date.desc,start_time.asc", "50"},
	}
	for _, tc := range tests {
		t.Run(string(tc.collection), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tc.path {
					t.Errorf("path = %q, want %q", r.URL.Path, tc.path)
				}
				q := r.URL.Query()
				if q.Get("select") != "*" {
					t.Errorf("select = %q, want *", q.Get("select"))
				}
				if q.Get("order") != tc.order {
					t.Errorf("order = %q, want %q", q.Get("order"), tc.order)
				}
				if q.Get("limit") != tc.limit {
					t.Errorf("limit = %q, want %q", q.Get("limit"), tc.limit)
				}
				_, _ = w.Write([]byte(`[]`))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			recs, err := c.FetchCollection(context.Background(), tc.collection)
			if err != nil {
				t.Fatalf("FetchCollection: %v", err)
			}
			if recs == nil || len(recs) != 0 {
				t.Errorf("recs = %#v, want empty non-nil slice", recs)
			}
		})
	}
}

func TestFetch_DriverScheduleForDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("schedule_date"); got != "eq.2025-10-14" {
			t.Errorf("schedule_date = %q, want eq.2025-10-14", got)
		}
		if got := q.Get("order"); got != "start_time.asc" {
			t.Errorf("order = %q, want start_time.asc", got)
		}
		if q.Has("limit") {
			t.Errorf("limit should not be set, got %q", q.Get("limit"))
		}
		_, _ = w.Write([]byte(`[{"driver_name":"Ana"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	recs, err := c.Fetch(context.Background(), model.CollectionDriverSchedule, DriverScheduleFor("2025-10-14"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
}

func TestFetchCollection_QueryOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("select"); got != "plant_name,current_stock" {
			t.Errorf("select = %q", got)
		}
		if got := q.Get("plant_name"); got != "eq.BW" {
			t.Errorf("plant_name = %q", got)
		}
		if got := q.Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	q := Query{Select: []string{"plant_name", "current_stock"}}.
		WithFilter("plant_name", "", "BW").
		WithLimit(5)
	c, err := NewDefaultClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  testKey,
		Queries: map[model.Collection]Query{model.CollectionAdmixInventory: q},
	})
	if err != nil {
		t.Fatalf("NewDefaultClient: %v", err)
	}
	if _, err := c.FetchCollection(context.Background(), model.CollectionAdmixInventory); err != nil {
		t.Fatalf("FetchCollection: %v", err)
	}
}

func TestQueryModifiersDoNotAlias(t *testing.T) {
	base, _ := DefaultQuery(model.CollectionDriverSchedule)
	derived := base.WithOrder("driver_name", false).WithLimit(10)

	if len(base.Order) != 2 || base.Limit != 50 {
		t.Errorf("base query mutated: %+v", base)
	}
	again, _ := DefaultQuery(model.CollectionDriverSchedule)
	if len(again.Order) != 2 {
		t.Errorf("default table mutated: %+v", again)
	}
	if got := derived.Values().Get("order"); got != "schedule_date.desc,start_time.asc,driver_name.asc" {
		t.Errorf("derived order = %q", got)
	}
}

func TestCredentialHeaders(t *testing.T) {
	var apikey, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apikey = r.Header.Get("apikey")
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchCollection(context.Background(), model.CollectionAdmixInventory); err != nil {
		t.Fatalf("FetchCollection: %v", err)
	}
	if apikey != testKey {
		t.Errorf("apikey = %q, want %q", apikey, testKey)
	}
	if auth != "Bearer "+testKey {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer "+testKey)
	}
}

func TestNewDefaultClient_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"empty_url", ClientConfig{APIKey: testKey}},
		{"bad_scheme", ClientConfig{BaseURL: "ftp://example.com", APIKey: testKey}},
		{"no_host", ClientConfig{BaseURL: "https://", APIKey: testKey}},
		{"no_key", ClientConfig{BaseURL: "https://example.com"}},
		{"unknown_override", ClientConfig{BaseURL: "https://example.com", APIKey: testKey,
			Queries: map[model.Collection]Query{"nope": {}}}},
		{"bad_override", ClientConfig{BaseURL: "https://example.com", APIKey: testKey,
			Queries: map[model.Collection]Query{model.CollectionAdmixInventory: {Limit: -1}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDefaultClient(tc.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if KindOf(err) != KindConfig {
				t.Errorf("KindOf = %v, want config", KindOf(err))
			}
		})
	}
}

func TestFetch_UnknownCollectionIsConfigError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.FetchCollection(context.Background(), model.Collection("nope"))
	if KindOf(err) != KindConfig {
		t.Fatalf("KindOf = %v, want config (err=%v)", KindOf(err), err)
	}
	_, err = c.Fetch(context.Background(), model.CollectionAdmixInventory, Query{Order: []OrderBy{{}}})
	if KindOf(err) != KindConfig {
		t.Fatalf("KindOf = %v, want config (err=%v)", KindOf(err), err)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchCollection(context.Background(), model.CollectionAdmixInventory)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not *Error", err)
	}
	if ce.Kind != KindServer || ce.StatusCode != http.StatusUnauthorized {
		t.Errorf("Kind = %v, StatusCode = %d", ce.Kind, ce.StatusCode)
	}
	if ce.Collection != model.CollectionAdmixInventory {
		t.Errorf("Collection = %q", ce.Collection)
	}
	if !strings.Contains(ce.Body, "Invalid API key") {
		t.Errorf("Body = %q, want raw body", ce.Body)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q does not contain %q", err.Error(), "401")
	}
	if !ce.Retryable() {
		t.Error("server errors should be retryable")
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.FetchCollection(context.Background(), model.CollectionConcreteDemand)
	if KindOf(err) != KindTransport {
		t.Fatalf("KindOf = %v, want transport (err=%v)", KindOf(err), err)
	}
	if !IsRetryable(err) {
		t.Error("transport errors should be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("non-client errors should not be retryable")
	}
}

func TestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"broken":`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchCollection(context.Background(), model.CollectionPowderDemand)
	if KindOf(err) != KindDecode {
		t.Fatalf("KindOf = %v, want decode (err=%v)", KindOf(err), err)
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Retryable() {
		t.Error("decode errors should not be retryable")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable disagrees with Retryable for decode errors")
	}
}

func TestFetch_SkipsBadRecordsKeepsSiblings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","plant_id":"A"},{"plant_id":"B"},{"id":"3","plant_id":"C"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	recs, err := c.FetchCollection(context.Background(), model.CollectionPowderDemand)
	if err != nil {
		t.Fatalf("FetchCollection: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
}

func TestFetch_MissingLastUpdatedUsesFetchTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","plant_id":"A"}]`))
	}))
	defer srv.Close()

	fixed := time.Date(2025, 10, 14, 6, 0, 0, 0, time.UTC)
	c := newTestClient(t, srv.URL)
	c.now = func() time.Time { return fixed }

	recs, err := c.FetchCollection(context.Background(), model.CollectionPowderDemand)
	if err != nil {
		t.Fatalf("FetchCollection: %v", err)
	}
	if !recs[0].LastUpdated().Equal(fixed) {
		t.Errorf("LastUpdated = %v, want %v", recs[0].LastUpdated(), fixed)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/chameleon_inventory" {
			t.Errorf("Ping: unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "1" {
			t.Errorf("Ping: limit = %q, want 1", r.URL.Query().Get("limit"))
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestPing_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected error from Ping on non-2xx, got nil")
	}
}

func TestContextCancellation(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		// Block until the client disconnects
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchCollection(ctx, model.CollectionAdmixInventory)
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if KindOf(err) != KindTransport {
			t.Errorf("KindOf = %v, want transport after cancellation (err=%v)", KindOf(err), err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for cancelled request to return")
	}
}

func TestTLSSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	// Without InsecureSkipVerify, TLS handshake should fail (self-signed cert).
	c := newTestClient(t, srv.URL)
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected TLS certificate error without InsecureSkipVerify, got nil")
	}

	c2, err := NewDefaultClient(ClientConfig{
		BaseURL:            srv.URL,
		APIKey:             testKey,
		RequestTimeout:     5 * time.Second,
		InsecureSkipVerify: true,
	})
	if err != nil {
		t.Fatalf("NewDefaultClient: %v", err)
	}
	if err := c2.Ping(context.Background()); err != nil {
		t.Errorf("Ping with InsecureSkipVerify=true: %v", err)
	}
}
