package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/metrics"
)

// Notifier delivers a message over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, m Message) error
}

// Multi fans a message out to every channel and joins their errors.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n.Name())
	}
	return strings.Join(names, ",")
}

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		err := n.Notify(ctx, msg)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
		metrics.NotificationDeliveries.WithLabelValues(n.Name(), string(msg.Kind), outcome).Inc()
	}
	return errors.Join(errs...)
}

// LogNotifier writes messages to the log; useful in development.
type LogNotifier struct {
	Log *logger.Logger
}

func (LogNotifier) Name() string { return "log" }

func (n LogNotifier) Notify(_ context.Context, m Message) error {
	n.Log.Infof("notify %s %q to %d recipients (exam=%s)", m.Kind, m.Title, len(m.Recipients), m.ExamID)
	return nil
}
