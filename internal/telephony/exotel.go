package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/propertyhub/leadvoice/internal/reliability"
)

// LeadContext travels inside the CustomField of the connect request and
// comes back verbatim in the websocket start event, so the turn
// controller gets lead details without a database lookup.
type LeadContext struct {
	LeadID          string `json:"lead_id"`
	LeadName        string `json:"lead_name"`
	LeadPhone       string `json:"lead_phone"`
	PropertyType    string `json:"property_type"`
	Location        string `json:"location"`
	CampaignID      string `json:"campaign_id"`
	ScheduledCallID string `json:"scheduled_call_id"`
}

// Dialer places one outbound call and reports the provider call id.
type Dialer interface {
	Connect(ctx context.Context, toPhone string, lead LeadContext) (string, error)
}

// Exotel drives the Calls/connect API with basic auth.
type Exotel struct {
	accountSID    string
	apiKey        string
	apiToken      string
	virtualNumber string
	flowID        string
	statusURL     string
	client        *http.Client
	base          string
}

type Settings struct {
	AccountSID    string
	APIKey        string
	APIToken      string
	Subdomain     string
	VirtualNumber string
	FlowID        string
	// StatusCallbackURL receives the call lifecycle webhook.
	StatusCallbackURL string
}

func NewExotel(s Settings) *Exotel {
	return &Exotel{
		accountSID:    s.AccountSID,
		apiKey:        s.APIKey,
		apiToken:      s.APIToken,
		virtualNumber: s.VirtualNumber,
		flowID:        s.FlowID,
		statusURL:     s.StatusCallbackURL,
		client:        &http.Client{Timeout: 15 * time.Second},
		base:          "https://" + s.Subdomain,
	}
}

type connectResponse struct {
	Call struct {
		Sid    string `json:"Sid"`
		Status string `json:"Status"`
	} `json:"Call"`
}

// Connect dials the lead through the configured flow. The returned SID
// keys every later webhook and websocket event for this call.
func (e *Exotel) Connect(ctx context.Context, toPhone string, lead LeadContext) (string, error) {
	custom, err := json.Marshal(lead)
	if err != nil {
		return "", fmt.Errorf("marshal custom field: %w", err)
	}

	form := url.Values{}
	form.Set("From", e.virtualNumber)
	form.Set("To", toPhone)
	form.Set("CallerId", e.virtualNumber)
	form.Set("CustomField", string(custom))
	form.Set("Record", "true")
	form.Set("StatusCallback", e.statusURL)
	form.Set("Url", "http://my.exotel.com/"+e.accountSID+"/exoml/start_voice/"+e.flowID)

	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/connect.json", e.base, e.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build connect request: %w", err)
	}
	req.SetBasicAuth(e.apiKey, e.apiToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", reliability.Transient("telephony", fmt.Errorf("connect call: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", reliability.Transient("telephony", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("exotel status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return "", reliability.Transient("telephony", err)
		}
		return "", reliability.Wrap(reliability.KindProviderContract, "telephony", err)
	}

	var parsed connectResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", reliability.Wrap(reliability.KindProviderContract, "telephony",
			fmt.Errorf("decode response: %w", err))
	}
	if parsed.Call.Sid == "" {
		return "", reliability.Wrap(reliability.KindProviderContract, "telephony",
			fmt.Errorf("response missing Call.Sid"))
	}
	return parsed.Call.Sid, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
