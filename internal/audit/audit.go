// Package audit writes one JSON line per decision to an append-only file.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/gzhole/agentlock/internal/redact"
)

type Event struct {
	Timestamp      string `json:"timestamp"`
	DecisionID     string `json:"decision_id"`
	LogID          string `json:"log_id,omitempty"`
	LogSource      string `json:"log_source,omitempty"`
	ActionType     string `json:"action_type,omitempty"`
	Target         string `json:"target,omitempty"`
	RiskLevel      string `json:"risk_level,omitempty"`
	Justification  string `json:"justification,omitempty"`
	Verdict        string `json:"verdict,omitempty"`
	Guard          string `json:"guard,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Reviewer       string `json:"reviewer,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Sink receives audit events.
type Sink interface {
	Log(event Event) error
}

type Logger struct {
	file *os.File
	mu   sync.Mutex
}

// New opens (or creates) the audit log at path with owner-only permissions.
func New(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &Logger{file: file}, nil
}

func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Free text may quote credentials from the source log
	event.Justification = redact.Redact(event.Justification)
	event.Target = redact.Redact(event.Target)
	event.FallbackReason = redact.Redact(event.FallbackReason)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Read loads every well-formed event from an audit log. A missing file reads
// as empty; malformed lines are skipped.
func Read(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}
