package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/counselops/reconcile/internal/check"
)

// Audit stores individual findings in a search index, one daily index
// per calendar day, via the bulk endpoint. Documents of one run share a
// correlation id so they can be pulled back out together.
type Audit struct {
	BaseURL     string
	IndexPrefix string
	HTTPClient  *http.Client

	// Now pins the index date in tests; defaults to time.Now.
	Now func() time.Time
}

type auditDoc struct {
	Check         string    `json:"check"`
	ErrorType     string    `json:"errorType"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
}

type bulkAction struct {
	Index struct {
		Index string `json:"_index"`
	} `json:"index"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
}

func (a *Audit) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a *Audit) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// IndexName returns the daily index documents go into.
func (a *Audit) IndexName() string {
	return fmt.Sprintf("%s-%s", a.IndexPrefix, a.now().UTC().Format("2006.01.02"))
}

// EnsureIndex creates today's index. An already existing index is not
// an error.
func (a *Audit) EnsureIndex(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.BaseURL+"/"+a.IndexName(), nil)
	if err != nil {
		return fmt.Errorf("building index request: %w", err)
	}

	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", a.IndexName(), err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 400 means the index already exists.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("creating index %s: status %d", a.IndexName(), resp.StatusCode)
	}
	return nil
}

// Index implements Sink: one document per finding, shipped in a single
// bulk request.
func (a *Audit) Index(ctx context.Context, s Summary, results []check.Result) error {
	if len(results) == 0 {
		return nil
	}

	idx := a.IndexName()
	ts := a.now().UTC()

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, r := range results {
		var action bulkAction
		action.Index.Index = idx
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encoding bulk action: %w", err)
		}
		doc := auditDoc{
			Check:         s.Check,
			ErrorType:     string(r.Kind),
			Message:       r.Message,
			CorrelationID: s.Correlation,
			Timestamp:     ts,
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding audit document: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/_bulk", &body)
	if err != nil {
		return fmt.Errorf("building bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("indexing %d findings: %w", len(results), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bulk request returned status %d", resp.StatusCode)
	}

	var br bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}
	if br.Errors {
		return fmt.Errorf("bulk request into %s reported partial failures", idx)
	}
	return nil
}

// Notify implements Sink; the audit index does not notify.
func (a *Audit) Notify(ctx context.Context, s Summary) error { return nil }

// OpenResultFile implements Sink; the audit index writes no files.
func (a *Audit) OpenResultFile(checkName string) (RowWriter, error) { return nil, nil }
