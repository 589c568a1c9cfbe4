package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"narrator/internal/pipeline"
	"narrator/internal/queue"
	"narrator/internal/session"
)

// ErrAPIUnavailable is returned when no API bind is configured.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Error is a non-2xx response from the daemon.
type Error struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *Error) Error() string {
	if e.Body.Error == "" {
		return fmt.Sprintf("daemon returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.StatusCode, e.Body.Error)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon listening on bind. A bind without a
// scheme is treated as plain HTTP.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// Synchronous segment generation and merges can take a while.
		http: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

// SubmitSession starts a server-driven session.
func (c *Client) SubmitSession(ctx context.Context, ownerID, text string) (pipeline.Submission, error) {
	var out pipeline.Submission
	err := c.do(ctx, http.MethodPost, "/api/sessions", nil, SubmitSessionRequest{OwnerID: ownerID, Text: text}, &out)
	return out, err
}

// PrepareSession previews segmentation without dispatching anything.
func (c *Client) PrepareSession(ctx context.Context, text string) (pipeline.Preparation, error) {
	var out pipeline.Preparation
	err := c.do(ctx, http.MethodPost, "/api/sessions/prepare", nil, PrepareSessionRequest{Text: text}, &out)
	return out, err
}

// SessionStatus reports segment progress. A non-positive total uses the
// recorded segment count.
func (c *Client) SessionStatus(ctx context.Context, sessionID string, total int) (session.Progress, error) {
	var query url.Values
	if total > 0 {
		query = url.Values{"total": []string{strconv.Itoa(total)}}
	}
	var out session.Progress
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/status", query, nil, &out)
	return out, err
}

// GenerateSegment synthesizes one segment synchronously.
func (c *Client) GenerateSegment(ctx context.Context, sessionID string, req GenerateSegmentRequest) (pipeline.SegmentResult, error) {
	var out pipeline.SegmentResult
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/segments", nil, req, &out)
	return out, err
}

// ResumeSession re-dispatches the missing segments of a session.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) ([]int, error) {
	var out ResumeSessionResponse
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/resume", nil, nil, &out)
	return out.Dispatched, err
}

// MergeSession merges a finished session into one artifact.
func (c *Client) MergeSession(ctx context.Context, sessionID string, req MergeSessionRequest) (pipeline.MergeResult, error) {
	var out pipeline.MergeResult
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/merge", nil, req, &out)
	return out, err
}

// Unfinished lists an owner's partially synthesized sessions.
func (c *Client) Unfinished(ctx context.Context, ownerID string) ([]session.Unfinished, error) {
	var out UnfinishedResponse
	err := c.do(ctx, http.MethodGet, "/api/owners/"+url.PathEscape(ownerID)+"/sessions/unfinished", nil, nil, &out)
	return out.Sessions, err
}

// LatestArtifact returns the owner's newest merged narration.
func (c *Client) LatestArtifact(ctx context.Context, ownerID string) (pipeline.ArtifactInfo, error) {
	var out pipeline.ArtifactInfo
	err := c.do(ctx, http.MethodGet, "/api/owners/"+url.PathEscape(ownerID)+"/artifact", nil, nil, &out)
	return out, err
}

// CleanupOwner removes an owner's artifacts and session directories.
func (c *Client) CleanupOwner(ctx context.Context, ownerID string) (pipeline.CleanupReport, error) {
	var out pipeline.CleanupReport
	err := c.do(ctx, http.MethodDelete, "/api/owners/"+url.PathEscape(ownerID)+"/audio", nil, nil, &out)
	return out, err
}

// SubmitWord records a word clip request.
func (c *Client) SubmitWord(ctx context.Context, req SubmitWordRequest) (bool, error) {
	var out AcceptedResponse
	err := c.do(ctx, http.MethodPost, "/api/words", nil, req, &out)
	return out.Accepted, err
}

// WordAudio returns an owner's clip records.
func (c *Client) WordAudio(ctx context.Context, ownerID string) ([]WordAudio, error) {
	var out WordAudioResponse
	err := c.do(ctx, http.MethodGet, "/api/words/"+url.PathEscape(ownerID), nil, nil, &out)
	return out.Records, err
}

// RequeueWord creates a fresh task for an owner's missing clip.
func (c *Client) RequeueWord(ctx context.Context, ownerID, category string) (WordTask, error) {
	var out RequeueWordResponse
	err := c.do(ctx, http.MethodPost, "/api/words/"+url.PathEscape(ownerID)+"/requeue", nil, RequeueWordRequest{Category: category}, &out)
	return out.Task, err
}

// Queue lists word tasks, optionally filtered by status.
func (c *Client) Queue(ctx context.Context, statuses ...queue.Status) ([]WordTask, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", string(status))
	}
	var out QueueListResponse
	err := c.do(ctx, http.MethodGet, "/api/queue", query, nil, &out)
	return out.Tasks, err
}

// Reclaim returns stale processing tasks to pending.
func (c *Client) Reclaim(ctx context.Context) (int64, error) {
	var out ReclaimResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/reclaim", nil, nil, &out)
	return out.Reclaimed, err
}

// TestNotification asks the daemon to publish a test notification.
func (c *Client) TestNotification(ctx context.Context) (NotificationTestResponse, error) {
	var out NotificationTestResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil, &out)
	return out, err
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	ref.RawQuery = query.Encode()
	endpoint := c.base.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&apiErr.Body)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
