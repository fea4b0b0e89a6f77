package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pipewheel/pipewheel/config"
	"github.com/pipewheel/pipewheel/errors"
)

// HTTPOracle queries an external entitlement service over HTTP.
// The service answers GET {endpoint}?organization_id={id} with a JSON body
// of the form {"entitled": true}.
type HTTPOracle struct {
	endpoint string
	client   *http.Client
}

// NewHTTPOracle creates an oracle against the given endpoint URL.
func NewHTTPOracle(endpoint string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// FromConfig builds the entitlement oracle from configuration. Returns nil
// (an always-open gate) when entitlement checking is disabled or no
// endpoint is configured.
func FromConfig(cfg *config.Config) Oracle {
	if !cfg.Entitlement.Enabled || cfg.Entitlement.Endpoint == "" {
		return nil
	}
	return NewHTTPOracle(
		cfg.Entitlement.Endpoint,
		time.Duration(cfg.Entitlement.TimeoutSeconds)*time.Second,
	)
}

type entitlementResponse struct {
	Entitled bool `json:"entitled"`
}

// IsEntitled asks the entitlement service about an organization.
func (o *HTTPOracle) IsEntitled(ctx context.Context, organizationID string) (bool, error) {
	reqURL := fmt.Sprintf("%s?organization_id=%s", o.endpoint, url.QueryEscape(organizationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to build entitlement request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "entitlement request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, errors.Newf("entitlement service returned status %d", resp.StatusCode)
	}

	var body entitlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, errors.Wrap(err, "failed to decode entitlement response")
	}

	return body.Entitled, nil
}
