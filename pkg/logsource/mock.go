package logsource

import (
	"context"
	"time"
)

// MockSource serves a fixed set of entries without any external backend.
// It is the default source for demos and tests.
type MockSource struct {
	entries []LogEntry
}

// NewMockSource creates a MockSource with two representative Java errors:
// a NullPointerException in a controller and a SQLException in a payment
// service.
func NewMockSource() *MockSource {
	now := time.Now()
	return &MockSource{
		entries: []LogEntry{
			{
				Timestamp: now.Add(-5 * time.Minute),
				Service:   "user-service",
				Severity:  SeverityError,
				Message:   "java.lang.NullPointerException: Cannot invoke \"com.example.app.model.User.getName()\" because \"user\" is null",
				Payload: map[string]string{
					"stack_trace": "java.lang.NullPointerException: Cannot invoke \"com.example.app.model.User.getName()\" because \"user\" is null\n" +
						"\tat com.example.app.controller.UserController.getUserProfile(UserController.java:45)\n" +
						"\tat com.example.app.controller.UserController.handleRequest(UserController.java:32)\n" +
						"\tat javax.servlet.http.HttpServlet.service(HttpServlet.java:750)",
					"host":        "app-node-1",
					"environment": "production",
				},
			},
			{
				Timestamp: now.Add(-12 * time.Minute),
				Service:   "payment-service",
				Severity:  SeverityFatal,
				Message:   "java.sql.SQLException: Connection pool exhausted, unable to acquire connection within 30000ms",
				Payload: map[string]string{
					"stack_trace": "java.sql.SQLException: Connection pool exhausted, unable to acquire connection within 30000ms\n" +
						"\tat com.example.app.service.PaymentService.processPayment(PaymentService.java:78)\n" +
						"\tat com.example.app.service.PaymentService.chargeCard(PaymentService.java:54)\n" +
						"\tat com.example.app.worker.PaymentWorker.run(PaymentWorker.java:21)",
					"host":        "app-node-2",
					"environment": "production",
				},
			},
		},
	}
}

// NewMockSourceWithEntries creates a MockSource serving the given entries.
func NewMockSourceWithEntries(entries []LogEntry) *MockSource {
	return &MockSource{entries: entries}
}

// Fetch returns the canned entries that fall inside the window and match the
// filter, newest first.
func (m *MockSource) Fetch(ctx context.Context, window TimeRange, filter Filter) ([]LogEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var out []LogEntry
	for _, e := range m.entries {
		if !window.Contains(e.Timestamp) {
			continue
		}
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.MaxEntries > 0 && len(out) >= filter.MaxEntries {
			break
		}
	}
	return out, nil
}

var _ Source = (*MockSource)(nil)
