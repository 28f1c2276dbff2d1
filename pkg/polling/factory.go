package polling

import (
	"fmt"
	"log/slog"
	"strings"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"
	"chatpoll/pkg/query"
)

// Deps are the collaborators a strategy may need. Executor is used by the
// count strategy and Transport by the realtime one.
type Deps struct {
	Executor   query.Executor
	Memory     chat.MemoryStore
	Dispatcher Dispatcher
	Transport  channel.Transport
	Logger     *slog.Logger
}

// New builds the strategy named by cfg.Type.
func New(cfg config.PollingConfig, deps Deps) (Strategy, error) {
	switch strings.TrimSpace(cfg.Type) {
	case config.PollingMessageCount, "":
		strategy, err := NewCountStrategy(cfg, deps.Executor, deps.Memory, deps.Dispatcher, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("build %s strategy: %w", config.PollingMessageCount, err)
		}
		return strategy, nil
	case config.PollingRealtime:
		strategy, err := NewRealtimeStrategy(deps.Transport, deps.Memory, deps.Dispatcher, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("build %s strategy: %w", config.PollingRealtime, err)
		}
		return strategy, nil
	default:
		return nil, fmt.Errorf("unsupported polling type %q", cfg.Type)
	}
}
