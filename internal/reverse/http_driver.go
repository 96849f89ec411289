package reverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPDriver submits an image to a reverse-image-search backend and polls
// until the job completes, following the teacher's VisionServiceClient
// submit/poll/fetch lifecycle (SubmitJob -> GetJobStatus -> GetResults)
// against a reverse-search-specific endpoint set instead of the teacher's
// video-analysis one.
type HTTPDriver struct {
	BaseURL    string
	HTTPClient *http.Client
	PollEvery  time.Duration
	Timeout    time.Duration
	log        *logrus.Entry
}

// NewHTTPDriver constructs an HTTPDriver with the teacher's timeout and
// polling defaults.
func NewHTTPDriver(baseURL string, log *logrus.Entry) *HTTPDriver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HTTPDriver{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		PollEvery:  2 * time.Second,
		Timeout:    1 * time.Hour,
		log:        log.WithField("component", "reverse_search"),
	}
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

type jobStatusResponse struct {
	Status string `json:"status"`
}

type reverseSearchResponse struct {
	Engines      map[string][]string `json:"engines"`
	VerifiedURLs []string            `json:"verified_urls"`
}

// Search implements Driver by POSTing the image to /reverse/search,
// polling /reverse/jobs/{id}/status until completed or failed, then
// fetching /reverse/jobs/{id}/results.
func (d *HTTPDriver) Search(ctx context.Context, imageID string, imageBytes []byte) (RawSearch, error) {
	jobID, err := d.submit(ctx, imageID, imageBytes)
	if err != nil {
		return RawSearch{ImageID: imageID}, fmt.Errorf("submit reverse search job: %w", err)
	}

	if err := d.waitForCompletion(ctx, jobID); err != nil {
		return RawSearch{ImageID: imageID}, err
	}

	return d.fetchResults(ctx, imageID, jobID)
}

func (d *HTTPDriver) submit(ctx context.Context, imageID string, imageBytes []byte) (string, error) {
	body, err := json.Marshal(map[string]any{"image_id": imageID, "image": imageBytes})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/reverse/search", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var parsed submitJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	d.log.Debugf("reverse search job submitted: job_id=%s image_id=%s", parsed.JobID, imageID)
	return parsed.JobID, nil
}

func (d *HTTPDriver) waitForCompletion(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(d.PollEvery)
	defer ticker.Stop()
	deadline := time.After(d.Timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("reverse search job %s timed out", jobID)
		case <-ticker.C:
			status, err := d.pollStatus(ctx, jobID)
			if err != nil {
				return err
			}
			switch status.Status {
			case "completed":
				return nil
			case "failed":
				return fmt.Errorf("reverse search job %s failed", jobID)
			}
		}
	}
}

func (d *HTTPDriver) pollStatus(ctx context.Context, jobID string) (*jobStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/reverse/jobs/%s/status", d.BaseURL, jobID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var status jobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &status, nil
}

func (d *HTTPDriver) fetchResults(ctx context.Context, imageID, jobID string) (RawSearch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/reverse/jobs/%s/results", d.BaseURL, jobID), nil)
	if err != nil {
		return RawSearch{ImageID: imageID}, err
	}
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return RawSearch{ImageID: imageID}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RawSearch{ImageID: imageID}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var parsed reverseSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RawSearch{ImageID: imageID}, fmt.Errorf("decode results response: %w", err)
	}

	raw := RawSearch{ImageID: imageID, VerifiedURLs: parsed.VerifiedURLs}
	for engine, urls := range parsed.Engines {
		raw.Engines = append(raw.Engines, EngineResult{Engine: engine, URLs: urls})
	}
	return raw, nil
}
