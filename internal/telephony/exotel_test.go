package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/propertyhub/leadvoice/internal/reliability"
)

func testExotel(t *testing.T, handler http.HandlerFunc) (*Exotel, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	e := NewExotel(Settings{
		AccountSID:        "acct1",
		APIKey:            "key1",
		APIToken:          "tok1",
		Subdomain:         "api.exotel.com",
		VirtualNumber:     "+918030752000",
		FlowID:            "flow9",
		StatusCallbackURL: "https://leadvoice.example/webhooks/exotel/call-status",
	})
	e.base = srv.URL
	return e, srv
}

func TestConnectFormAndAuth(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotForm map[string]string
	e, srv := testExotel(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"Call":{"Sid":"exo-777","Status":"in-progress"}}`))
	})
	defer srv.Close()

	lead := LeadContext{
		LeadID:     "lead-1",
		LeadName:   "Rajesh",
		LeadPhone:  "+919876543210",
		CampaignID: "camp-1",
	}
	sid, err := e.Connect(context.Background(), "+919876543210", lead)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if sid != "exo-777" {
		t.Fatalf("sid = %q", sid)
	}
	if gotPath != "/v1/Accounts/acct1/Calls/connect.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "key1" || gotPass != "tok1" {
		t.Fatalf("auth = %q/%q", gotUser, gotPass)
	}
	if gotForm["From"] != "+918030752000" || gotForm["To"] != "+919876543210" {
		t.Fatalf("numbers = %v", gotForm)
	}
	if gotForm["Record"] != "true" {
		t.Fatalf("Record = %q", gotForm["Record"])
	}
	if gotForm["StatusCallback"] == "" || gotForm["Url"] == "" {
		t.Fatalf("callback fields missing: %v", gotForm)
	}

	var roundTripped LeadContext
	if err := json.Unmarshal([]byte(gotForm["CustomField"]), &roundTripped); err != nil {
		t.Fatalf("CustomField not JSON: %v", err)
	}
	if roundTripped != lead {
		t.Fatalf("CustomField = %+v, want %+v", roundTripped, lead)
	}
}

func TestConnectMissingSidIsContractError(t *testing.T) {
	e, srv := testExotel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Call":{}}`))
	})
	defer srv.Close()

	_, err := e.Connect(context.Background(), "+919876543210", LeadContext{})
	if !reliability.IsKind(err, reliability.KindProviderContract) {
		t.Fatalf("error = %v, want provider contract kind", err)
	}
}

func TestConnectRateLimitIsTransient(t *testing.T) {
	e, srv := testExotel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := e.Connect(context.Background(), "+919876543210", LeadContext{})
	if !reliability.IsKind(err, reliability.KindTransientProvider) {
		t.Fatalf("error = %v, want transient provider kind", err)
	}
}
