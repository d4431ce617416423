package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/orrn/printd/internal/config"
	"github.com/orrn/printd/internal/core"
)

type WebhookEvent string

const (
	EventJobStarted   WebhookEvent = core.EventJobStarted
	EventJobCompleted WebhookEvent = core.EventJobCompleted
	EventJobFailed    WebhookEvent = core.EventJobFailed
)

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID    string       `json:"job_id"`
	Status   string       `json:"status"`
	Path     string       `json:"path"`
	Printer  string       `json:"printer,omitempty"`
	Result   *core.Result `json:"result,omitempty"`
	Duration int64        `json:"duration_ms,omitempty"`
}

type SenderConfig struct {
	WorkerCount int
	QueueSize   int
}

type endpoint struct {
	url        string
	secret     string
	events     map[WebhookEvent]bool
	retryCount int
	retryDelay time.Duration
	client     *http.Client
}

func (e *endpoint) wants(event WebhookEvent) bool {
	return len(e.events) == 0 || e.events[event]
}

type webhookTask struct {
	endpoint *endpoint
	event    WebhookEvent
	payload  *WebhookPayload
	attempt  int
}

type httpError struct {
	status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http error: %d", e.status)
}

// WebhookSender delivers job events to the configured endpoints from a
// bounded queue. It implements core.EventSender.
type WebhookSender struct {
	endpoints []*endpoint
	workers   int
	queue     chan *webhookTask
	stopCh    chan struct{}
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewWebhookSender(hooks []config.WebhookConfig, cfg SenderConfig, logger *slog.Logger) *WebhookSender {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	endpoints := make([]*endpoint, 0, len(hooks))
	for _, h := range hooks {
		ep := &endpoint{
			url:        h.URL,
			secret:     h.Secret,
			events:     make(map[WebhookEvent]bool),
			retryCount: h.RetryCount,
			retryDelay: h.RetryDelay.Duration,
		}
		if ep.retryCount <= 0 {
			ep.retryCount = 3
		}
		if ep.retryDelay <= 0 {
			ep.retryDelay = 5 * time.Second
		}
		timeout := h.Timeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ep.client = &http.Client{Timeout: timeout}
		for _, ev := range h.Events {
			ep.events[WebhookEvent(ev)] = true
		}
		endpoints = append(endpoints, ep)
	}

	return &WebhookSender{
		endpoints: endpoints,
		workers:   cfg.WorkerCount,
		queue:     make(chan *webhookTask, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		logger:    logger.With("component", "webhook"),
	}
}

func (s *WebhookSender) Start() {
	if len(s.endpoints) == 0 {
		return
	}
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// SendJobEvent queues event for every endpoint subscribed to it.
func (s *WebhookSender) SendJobEvent(event string, job core.Job) {
	data := &JobEventData{
		JobID:   job.ID,
		Status:  string(job.Status),
		Path:    job.Request.Path,
		Printer: job.Request.Printer,
		Result:  job.Result,
	}
	if job.Result != nil {
		if job.Result.Printer != "" {
			data.Printer = job.Result.Printer
		}
		data.Duration = job.UpdatedAt.Sub(job.CreatedAt).Milliseconds()
	}
	s.enqueue(WebhookEvent(event), data)
}

func (s *WebhookSender) enqueue(event WebhookEvent, data interface{}) {
	for _, ep := range s.endpoints {
		if !ep.wants(event) {
			continue
		}
		task := &webhookTask{
			endpoint: ep,
			event:    event,
			payload: &WebhookPayload{
				Event:     string(event),
				Timestamp: time.Now(),
				Data:      data,
			},
		}

		select {
		case s.queue <- task:
		default:
			s.logger.Warn("queue full, dropping webhook", "url", ep.url, "event", event)
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				s.logger.Error("webhook delivery failed", "worker", id, "url", task.endpoint.url,
					"event", task.event, "attempts", task.attempt, "error", err)
			}
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	ep := task.endpoint

	var lastErr error
	for task.attempt < ep.retryCount {
		task.attempt++

		err := s.sendRequest(ep, task.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			s.logger.Warn("client error, not retrying", "url", ep.url, "error", err)
			return err
		}

		if task.attempt < ep.retryCount {
			backoff := ep.retryDelay * time.Duration(1<<(task.attempt-1))
			s.logger.Debug("retrying webhook", "attempt", task.attempt, "max", ep.retryCount,
				"url", ep.url, "backoff", backoff, "error", err)

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// EndpointInfo describes a configured endpoint without its secret.
type EndpointInfo struct {
	ID     int      `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Signed bool     `json:"signed"`
}

var ErrUnknownEndpoint = errors.New("unknown webhook endpoint")

func (s *WebhookSender) Endpoints() []EndpointInfo {
	infos := make([]EndpointInfo, 0, len(s.endpoints))
	for i, ep := range s.endpoints {
		events := make([]string, 0, len(ep.events))
		for ev := range ep.events {
			events = append(events, string(ev))
		}
		sort.Strings(events)
		infos = append(infos, EndpointInfo{ID: i, URL: ep.url, Events: events, Signed: ep.secret != ""})
	}
	return infos
}

// Test delivers a single "test" event to endpoint id, synchronously and
// without retries.
func (s *WebhookSender) Test(id int) error {
	if id < 0 || id >= len(s.endpoints) {
		return fmt.Errorf("%w: %d", ErrUnknownEndpoint, id)
	}
	payload := &WebhookPayload{
		Event:     "test",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"test":        true,
			"message":     "Test webhook from printd",
			"endpoint_id": id,
		},
	}
	return s.sendRequest(s.endpoints[id], payload)
}

func (s *WebhookSender) sendRequest(ep *endpoint, payload *WebhookPayload) error {
	payloadBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if ep.secret != "" {
		payload.Signature = SignPayload(payloadBytes, ep.secret)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ep.url, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := ep.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpError{status: resp.StatusCode}
	}

	return nil
}

// SignPayload returns the hex HMAC-SHA256 of the event data.
func SignPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 400 && he.status < 500
	}
	return false
}
