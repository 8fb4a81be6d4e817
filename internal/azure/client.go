// Package azure provides the Azure Speech REST implementation of the speech provider session.
//
// A session posts a markup document to the regional synthesis endpoint and
// maps the HTTP exchange onto the provider contract: a completed result with
// audio, a canceled result with the service's error details, or a transport
// error for everything that never produced a terminal answer.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/tts-pad/internal/core"
)

// API endpoints and paths.
const (
	endpointFormat = "https://%s.tts.speech.microsoft.com"
	apiSynthesize  = "/cognitiveservices/v1"
	apiVoicesList  = "/cognitiveservices/voices/list"
)

// HTTP headers.
const (
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerContentType     = "Content-Type"
	headerOutputFormat    = "X-Microsoft-OutputFormat"
	headerUserAgent       = "User-Agent"
	contentTypeSSML       = "application/ssml+xml"
	contentTypeAudio      = "audio/"
	userAgent             = "tts-pad"
)

// Default values.
const (
	// DefaultOutputFormat is 16 kHz mono MP3, small enough for tablet playback.
	DefaultOutputFormat = "audio-16khz-32kbitrate-mono-mp3"
	// DefaultTimeout bounds every HTTP exchange with the service.
	DefaultTimeout = 30 * time.Second

	maxErrorBodyBytes = 4096
	mp3FormatSuffix   = "mp3"
)

// Error messages.
const (
	errFmtUnexpectedContentType = "unexpected content type: expected audio, got %q"
	errFmtConnectionFailed      = "Connection failed: %v"
	errFmtServiceStatus         = "%s: %s"
	errFmtVoicesStatus          = "voice list request failed with status: %s"
)

// Static errors.
var (
	ErrMissingKey      = errors.New("azure subscription key cannot be empty")
	ErrMissingRegion   = errors.New("azure region cannot be empty")
	ErrSSMLEmpty       = errors.New("ssml document cannot be empty")
	ErrEmptyAudio      = errors.New("received empty audio data")
	ErrUnexpectedAudio = errors.New("unexpected response")
)

// Options tunes a session. Zero values select the defaults.
type Options struct {
	// BaseURL overrides the regional endpoint; used by tests and sovereign clouds.
	BaseURL      string
	Timeout      time.Duration
	OutputFormat string
}

// Client is a provider session bound to one set of credentials.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	key          string
	outputFormat string
}

var _ core.SpeechProvider = (*Client)(nil)

// voiceListEntry is one element of the service's voice list response.
type voiceListEntry struct {
	ShortName   string `json:"ShortName"`
	DisplayName string `json:"DisplayName"`
	LocalName   string `json:"LocalName"`
	Locale      string `json:"Locale"`
}

// NewClient creates a session for the given credentials.
func NewClient(creds core.Credentials, opts Options) (*Client, error) {
	if strings.TrimSpace(creds.Key) == "" {
		return nil, ErrMissingKey
	}

	if strings.TrimSpace(creds.Region) == "" {
		return nil, ErrMissingRegion
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf(endpointFormat, strings.TrimSpace(creds.Region))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	outputFormat := opts.OutputFormat
	if outputFormat == "" {
		outputFormat = DefaultOutputFormat
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		key:          strings.TrimSpace(creds.Key),
		outputFormat: outputFormat,
	}, nil
}

// NewSessionFactory returns a factory producing sessions with the given options.
func NewSessionFactory(opts Options) core.SessionFactory {
	return func(creds core.Credentials) (core.SpeechProvider, error) {
		return NewClient(creds, opts)
	}
}

// SpeakSSML submits a markup document and waits for the audio.
//
// HTTP failures reported by the service become a canceled result whose
// details start with the HTTP status line, so "401 Unauthorized" and
// "403 Forbidden" can be classified by the caller. Failures to reach the
// service at all are reported as canceled with connection details.
func (c *Client) SpeakSSML(ctx context.Context, ssml string) (core.SynthesisResult, error) {
	if strings.TrimSpace(ssml) == "" {
		return core.SynthesisResult{}, ErrSSMLEmpty
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		strings.NewReader(ssml),
	)
	if err != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerSubscriptionKey, c.key)
	httpReq.Header.Set(headerContentType, contentTypeSSML)
	httpReq.Header.Set(headerOutputFormat, c.outputFormat)
	httpReq.Header.Set(headerUserAgent, userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return core.SynthesisResult{}, fmt.Errorf("synthesis request aborted: %w", ctx.Err())
		}

		return core.SynthesisResult{
			Reason:       core.ReasonCanceled,
			ErrorDetails: fmt.Sprintf(errFmtConnectionFailed, err),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return canceledFromResponse(resp), nil
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, contentTypeAudio) {
		return core.SynthesisResult{}, fmt.Errorf(
			"%w: "+errFmtUnexpectedContentType, ErrUnexpectedAudio, contentType)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audio) == 0 {
		return core.SynthesisResult{}, ErrEmptyAudio
	}

	result := core.SynthesisResult{
		Reason: core.ReasonCompleted,
		Audio:  audio,
	}

	if strings.HasSuffix(c.outputFormat, mp3FormatSuffix) {
		duration, durationErr := MP3Duration(audio)
		if durationErr == nil {
			result.AudioDuration = duration
		}
	}

	return result, nil
}

// ListVoices fetches the voices available in the session's region.
func (c *Client) ListVoices(ctx context.Context) ([]core.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoicesList, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice list request: %w", err)
	}

	req.Header.Set(headerSubscriptionKey, c.key)
	req.Header.Set(headerUserAgent, userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice list request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(errFmtVoicesStatus, resp.Status)
	}

	var entries []voiceListEntry

	err = json.NewDecoder(resp.Body).Decode(&entries)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voice list: %w", err)
	}

	voices := make([]core.Voice, 0, len(entries))
	for _, entry := range entries {
		name := entry.DisplayName
		if entry.LocalName != "" && entry.LocalName != entry.DisplayName {
			name = entry.DisplayName + " (" + entry.LocalName + ")"
		}

		voices = append(voices, core.Voice{ID: entry.ShortName, Name: name, Lang: entry.Locale})
	}

	return voices, nil
}

// HealthCheck verifies that the credentials are accepted by the service.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}

	return nil
}

// canceledFromResponse preserves the status line and the body as error details.
func canceledFromResponse(resp *http.Response) core.SynthesisResult {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	return core.SynthesisResult{
		Reason:       core.ReasonCanceled,
		ErrorCode:    resp.StatusCode,
		ErrorDetails: fmt.Sprintf(errFmtServiceStatus, resp.Status, detail),
	}
}
