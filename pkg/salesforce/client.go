// Package salesforce provides JWT-authenticated REST API access to Salesforce
// for schema discovery and record access.
package salesforce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/orgmap/internal/resilience"
)

// Client defines the Salesforce API operations used by discovery and the host.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	QueryCount(ctx context.Context, soql string) (int, error)
	ToolingQuery(ctx context.Context, soql string, out any) error
	DescribeGlobal(ctx context.Context) ([]SObjectSummary, error)
	DescribeSObject(ctx context.Context, name string) (*SObjectDescription, error)
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
}

// SObjectSummary is one entry of the describe-global catalog.
type SObjectSummary struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Custom    bool   `json:"custom"`
	Queryable bool   `json:"queryable"`
}

// PicklistEntry is one declared value of a picklist field.
type PicklistEntry struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// SObjectField describes a single field on a Salesforce SObject.
type SObjectField struct {
	Name              string          `json:"name"`
	Label             string          `json:"label"`
	Type              string          `json:"type"`
	Length            int             `json:"length"`
	Custom            bool            `json:"custom"`
	Nillable          bool            `json:"nillable"`
	Createable        bool            `json:"createable"`
	Updateable        bool            `json:"updateable"`
	DefaultedOnCreate bool            `json:"defaultedOnCreate"`
	ReferenceTo       []string        `json:"referenceTo"`
	PicklistValues    []PicklistEntry `json:"picklistValues"`
}

// RecordTypeInfo is a record type as reported by describe.
type RecordTypeInfo struct {
	RecordTypeID  string `json:"recordTypeId"`
	Name          string `json:"name"`
	DeveloperName string `json:"developerName"`
	Active        bool   `json:"active"`
	Available     bool   `json:"available"`
	Master        bool   `json:"master"`
}

// SObjectDescription holds metadata about a Salesforce SObject.
type SObjectDescription struct {
	Name            string           `json:"name"`
	Label           string           `json:"label"`
	Custom          bool             `json:"custom"`
	Createable      bool             `json:"createable"`
	Queryable       bool             `json:"queryable"`
	Fields          []SObjectField   `json:"fields"`
	RecordTypeInfos []RecordTypeInfo `json:"recordTypeInfos"`
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: The underlying go-salesforce/v3 library does not accept context.Context,
// so all methods discard the ctx parameter for the SF call itself. However, the
// ctx is used for rate limiter waiting, so callers can still cancel that wait.
// Callers bound the call itself with resilience.WithTimeout.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a new Salesforce Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(classify(err, 0), "sf: query")
	}
	return nil
}

func (c *sfClient) QueryCount(ctx context.Context, soql string) (int, error) {
	var res struct {
		TotalSize int `json:"totalSize"`
	}
	if err := c.get(ctx, "/query/?q="+url.QueryEscape(soql), &res); err != nil {
		return 0, eris.Wrap(err, "sf: count")
	}
	return res.TotalSize, nil
}

func (c *sfClient) ToolingQuery(ctx context.Context, soql string, out any) error {
	if err := c.get(ctx, "/tooling/query/?q="+url.QueryEscape(soql), out); err != nil {
		return eris.Wrap(err, "sf: tooling query")
	}
	return nil
}

func (c *sfClient) DescribeGlobal(ctx context.Context) ([]SObjectSummary, error) {
	var res struct {
		SObjects []SObjectSummary `json:"sobjects"`
	}
	if err := c.get(ctx, "/sobjects", &res); err != nil {
		return nil, eris.Wrap(err, "sf: describe global")
	}
	return res.SObjects, nil
}

func (c *sfClient) DescribeSObject(ctx context.Context, name string) (*SObjectDescription, error) {
	var desc SObjectDescription
	if err := c.get(ctx, "/sobjects/"+url.PathEscape(name)+"/describe", &desc); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: describe %s", name))
	}
	return &desc, nil
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", eris.Wrap(err, "sf: rate limit")
	}
	result, err := c.sf.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrap(classify(err, 0), fmt.Sprintf("sf: insert %s", sObjectName))
	}
	if !result.Success {
		return "", eris.New(fmt.Sprintf("sf: insert %s failed: %v", sObjectName, result.Errors))
	}
	return result.Id, nil
}

// get issues a GET against the versioned REST root and decodes the JSON body.
func (c *sfClient) get(ctx context.Context, uri string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	resp, err := c.sf.DoRequest(http.MethodGet, uri, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close() //nolint:errcheck
		}
		return classify(err, status)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classify(eris.Errorf("sf: %s returned %d: %s", uri, resp.StatusCode, body), resp.StatusCode)
	}
	return decodeResponse(resp.Body, uri, out)
}

// classify marks retryable failures as transient so resilience.Do retries them.
func classify(err error, status int) error {
	if err == nil {
		return nil
	}
	if resilience.IsTransientHTTPStatus(status) || resilience.IsTransient(err) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
