// Package alert posts operator alerts from the backend (failed answers,
// stale messages) to a chat platform.
package alert

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Alert is one operator notification.
type Alert struct {
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Field is a key-value pair rendered alongside the alert.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Color returns the sidebar color hint for the alert's severity.
func (a Alert) Color() string {
	switch a.Severity {
	case SeverityError:
		return "#d00000"
	case SeverityWarning:
		return "#daa038"
	default:
		return "#439fe0"
	}
}

// Text renders the alert as plain text, used as fallback content.
func (a Alert) Text() string {
	var b strings.Builder
	if a.Severity != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(a.Severity))
	}
	b.WriteString(a.Title)
	if a.Body != "" {
		b.WriteString(": ")
		b.WriteString(a.Body)
	}
	for _, f := range a.Fields {
		fmt.Fprintf(&b, " %s=%s", f.Name, f.Value)
	}
	return b.String()
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Log writes alerts to a writer, or the standard logger when Out is nil.
// It is the fallback when no chat platform is configured.
type Log struct {
	Out io.Writer
}

// Notify implements Notifier.
func (l Log) Notify(_ context.Context, a Alert) error {
	if l.Out == nil {
		log.Printf("alert: %s", a.Text())
		return nil
	}
	_, err := fmt.Fprintf(l.Out, "alert: %s\n", a.Text())
	return err
}

// Mock records alerts in memory for tests.
type Mock struct {
	mu     sync.Mutex
	alerts []Alert
	Err    error // returned from Notify when set
}

// Notify implements Notifier.
func (m *Mock) Notify(_ context.Context, a Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.alerts = append(m.alerts, a)
	return nil
}

// Alerts returns a copy of the recorded alerts.
func (m *Mock) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
