package notify

import (
	"errors"
	"fmt"

	"github.com/mind-engage/examdesk/internal/config"
	"github.com/mind-engage/examdesk/internal/logger"
)

type brokerNotifier interface {
	Notifier
	Close() error
}

var dialAMQP = func(url, exchange string) (brokerNotifier, error) {
	a, err := DialAMQP(url, exchange)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// New builds the configured channels. The returned close func releases
// broker connections; on error anything already opened is closed.
func New(cfg config.Config, log *logger.Logger) (Multi, func() error, error) {
	var (
		out     Multi
		brokers []brokerNotifier
	)
	closeAll := func() error {
		var errs []error
		for _, b := range brokers {
			errs = append(errs, b.Close())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (Multi, func() error, error) {
		if cerr := closeAll(); cerr != nil {
			log.Warnf("notify: closing channels: %v", cerr)
		}
		return nil, func() error { return nil }, err
	}
	for _, name := range cfg.NotifyChannels {
		switch name {
		case "log":
			out = append(out, LogNotifier{Log: log})
		case "function":
			if cfg.NotifyFunctionURL == "" {
				return fail(fmt.Errorf("notify: function channel needs NOTIFY_FUNCTION_URL"))
			}
			out = append(out, NewFunctionNotifier(cfg.NotifyFunctionURL, cfg.NotifyFunctionSecret))
		case "amqp":
			if cfg.AMQPURL == "" {
				return fail(fmt.Errorf("notify: amqp channel needs AMQP_URL"))
			}
			b, err := dialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				return fail(err)
			}
			brokers = append(brokers, b)
			out = append(out, b)
		case "sendgrid":
			if cfg.SendGridAPIKey == "" {
				return fail(fmt.Errorf("notify: sendgrid channel needs SENDGRID_API_KEY"))
			}
			out = append(out, NewSendGridNotifier(cfg.SendGridAPIKey, cfg.ServiceName, cfg.SendGridFrom))
		default:
			return fail(fmt.Errorf("notify: unknown channel %q", name))
		}
	}
	if len(out) == 0 {
		out = Multi{LogNotifier{Log: log}}
	}
	return out, closeAll, nil
}
