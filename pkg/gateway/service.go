// Package gateway runs a chat task as a long-lived service with an HTTP
// status surface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatpoll/pkg/bus"
	"chatpoll/pkg/chatbot"
	"chatpoll/pkg/config"
	"chatpoll/pkg/polling"
)

const (
	defaultHealthHost   = "0.0.0.0"
	defaultHealthPort   = 18790
	defaultProbeEvery   = 30 * time.Second
	eventSubscriberSize = 256
)

// ProbeFunc checks the chat source, for example by pinging the database.
type ProbeFunc func(ctx context.Context) error

type Service struct {
	cfg   config.GatewayConfig
	task  *chatbot.Task
	bus   *bus.MessageBus
	probe ProbeFunc
	log   *slog.Logger

	mu             sync.RWMutex
	startedAt      time.Time
	strategy       strategyState
	sourceLastOKAt time.Time
	sourceLastErr  string
	counters       counters
	lastEventAt    time.Time
}

type strategyState struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type counters struct {
	Received int64 `json:"received"`
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
}

type statusResponse struct {
	Status         string              `json:"status"`
	UptimeSeconds  int64               `json:"uptime_seconds"`
	Strategy       strategyState       `json:"strategy"`
	SourceLastOKAt string              `json:"source_last_ok_at,omitempty"`
	SourceLastErr  string              `json:"source_last_error,omitempty"`
	Messages       counters            `json:"messages"`
	LastEventAt    string              `json:"last_event_at,omitempty"`
	LastCycle      *polling.CycleStats `json:"last_cycle,omitempty"`
	Snapshot       map[string]any      `json:"snapshot,omitempty"`
}

// Options wires a Service. Bus and Probe are optional.
type Options struct {
	Bus    *bus.MessageBus
	Probe  ProbeFunc
	Logger *slog.Logger
}

func NewService(cfg config.GatewayConfig, task *chatbot.Task, opts Options) (*Service, error) {
	if task == nil {
		return nil, errors.New("chat task is required")
	}
	if task.Strategy() == nil {
		return nil, errors.New("chat task has no strategy")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:      cfg,
		task:     task,
		bus:      opts.Bus,
		probe:    opts.Probe,
		log:      log.With("component", "gateway.service"),
		strategy: strategyState{Name: task.Strategy().Name()},
	}, nil
}

// Run starts the status server and the task, and blocks until ctx is done
// or either of them fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkSource(ctx); err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	if s.probe != nil {
		go s.probeLoop(ctx)
	}
	if s.bus != nil {
		events, unsubscribe := s.bus.SubscribeEvents(ctx, eventSubscriberSize)
		defer unsubscribe()
		go s.countEvents(events)
	}

	taskDone := make(chan error, 1)
	s.setStrategyState(true, "")
	go func() {
		err := s.task.Run(ctx)
		s.setStrategyState(false, errorString(err))
		taskDone <- err
	}()

	select {
	case <-ctx.Done():
		s.task.Stop()
		<-taskDone
		return nil
	case err := <-serverErrors:
		s.task.Stop()
		<-taskDone
		return err
	case err := <-taskDone:
		if err != nil {
			return fmt.Errorf("run %s strategy: %w", s.strategy.Name, err)
		}
		return nil
	}
}

// Handler serves /healthz, /readyz and /status.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if !s.isReady() {
		status = "not_ready"
	}

	s.respondStatus(w, http.StatusOK, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	resp := statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Strategy:      s.strategy,
		SourceLastErr: s.sourceLastErr,
		Messages:      s.counters,
	}
	if !s.sourceLastOKAt.IsZero() {
		resp.SourceLastOKAt = s.sourceLastOKAt.Format(time.RFC3339)
	}
	if !s.lastEventAt.IsZero() {
		resp.LastEventAt = s.lastEventAt.Format(time.RFC3339)
	}

	if count, ok := s.task.Strategy().(*polling.CountStrategy); ok {
		cycle := count.LastCycle()
		if !cycle.At.IsZero() {
			resp.LastCycle = &cycle
		}
		resp.Snapshot = count.Snapshot()
	}

	return resp
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.strategy.Running {
		return false
	}

	if s.probe == nil {
		return true
	}

	return !s.sourceLastOKAt.IsZero() && s.sourceLastErr == ""
}

func (s *Service) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultProbeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checkSource(ctx); err != nil {
				s.log.Warn("Chat source check failed", "error", err)
			}
		}
	}
}

func (s *Service) checkSource(ctx context.Context) error {
	if s.probe == nil {
		return nil
	}

	if err := s.probe(ctx); err != nil {
		s.mu.Lock()
		s.sourceLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("chat source check failed: %w", err)
	}

	s.mu.Lock()
	s.sourceLastErr = ""
	s.sourceLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) countEvents(events <-chan bus.Event) {
	for event := range events {
		s.recordEvent(event)
	}
}

func (s *Service) recordEvent(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case bus.EventMessageReceived:
		s.counters.Received++
	case bus.EventReplySent:
		s.counters.Sent++
	case bus.EventReplyFailed:
		s.counters.Failed++
	}
	s.lastEventAt = event.At
}

func (s *Service) setStrategyState(running bool, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategy.Running = running
	s.strategy.Error = errText
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
