package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger provides topic-based debug logging with minimal overhead when disabled.
// Topics are switched on with DEBUG_TOPICS=engine,exits,score (or "all").
type Logger struct {
	topic string
}

var (
	mu            sync.RWMutex
	enabledTopics = make(map[string]bool)
)

func init() {
	Configure(os.Getenv("LOG_LEVEL"), os.Getenv("DEBUG_TOPICS"))
}

// Configure installs the default slog handler at the given level and replaces
// the set of enabled debug topics. Enabling any topic forces DEBUG level.
func Configure(level, topics string) {
	parsed := parseTopics(topics)

	mu.Lock()
	enabledTopics = parsed
	mu.Unlock()

	lvl := ParseLevel(level)
	if len(parsed) > 0 {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func parseTopics(topics string) map[string]bool {
	out := make(map[string]bool)
	topics = strings.TrimSpace(topics)
	if topics == "" {
		return out
	}

	if topics == "all" {
		out["*"] = true
		return out
	}

	for _, topic := range strings.Split(topics, ",") {
		topic = strings.TrimSpace(topic)
		if topic != "" {
			out[topic] = true
		}
	}
	return out
}

// ParseLevel maps debug|info|warn|error onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a topic logger.
// Usage: var exitLog = logging.New("exits")
func New(topic string) *Logger {
	return &Logger{topic: topic}
}

// Enabled is checked on every call so topics configured after package init
// (e.g. from CLI flags) take effect.
func (l *Logger) Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabledTopics["*"] || enabledTopics[l.topic]
}

func (l *Logger) Debug(msg string, args ...any) {
	if !l.Enabled() {
		return
	}
	slog.Debug(msg, l.withTopic(args)...)
}

func (l *Logger) Info(msg string, args ...any) {
	if !l.Enabled() {
		return
	}
	slog.Info(msg, l.withTopic(args)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	if !l.Enabled() {
		return
	}
	slog.Warn(msg, l.withTopic(args)...)
}

func (l *Logger) withTopic(args []any) []any {
	return append([]any{"topic", l.topic}, args...)
}
