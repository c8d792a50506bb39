package alert

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/metrics"
)

// Publisher receives every delivered event in addition to the webhooks.
type Publisher interface {
	Publish(subject string, payload any) error
}

// Dispatcher posts events to the monitor's webhook channels. Delivery is
// best effort: there are no retries and one channel failing does not affect
// the others.
type Dispatcher struct {
	client    *resty.Client
	metrics   *metrics.Metrics
	log       *logrus.Entry
	publisher Publisher
	subject   string
}

// NewDispatcher creates a Dispatcher whose requests time out after timeout.
func NewDispatcher(timeout time.Duration, m *metrics.Metrics, logger logrus.FieldLogger) *Dispatcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return &Dispatcher{
		client:  client,
		metrics: m,
		log:     logger.WithField("component", "dispatcher"),
	}
}

// WithPublisher also publishes delivered events on subject.
func (d *Dispatcher) WithPublisher(p Publisher, subject string) *Dispatcher {
	d.publisher = p
	d.subject = subject
	return d
}

// Dispatch sends ev to every channel concurrently and returns the number of
// successful deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) int {
	if d.metrics != nil {
		d.metrics.AlertsDispatched.WithLabelValues(string(ev.Type)).Inc()
	}
	d.publish(ev)

	channels := ev.Monitor.AlertConfig.Channels
	payload := Payload{Text: ev.Text()}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, ch := range channels {
		if ch.URL == "" {
			continue
		}
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			if err := d.post(ctx, target, payload); err != nil {
				if d.metrics != nil {
					d.metrics.WebhookFailures.Inc()
				}
				d.log.WithError(err).WithFields(logrus.Fields{
					"monitor_id":   ev.Monitor.ID,
					"alert_type":   ev.Type,
					"channel_host": channelHost(target),
				}).Warn("webhook delivery failed")
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		}(ch.URL)
	}
	wg.Wait()

	d.log.WithFields(logrus.Fields{
		"monitor_id": ev.Monitor.ID,
		"alert_type": ev.Type,
		"delivered":  ok,
		"channels":   len(channels),
	}).Info("alert dispatched")
	return ok
}

func (d *Dispatcher) post(ctx context.Context, target string, payload Payload) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(target)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (d *Dispatcher) publish(ev Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(d.subject, ev.Message()); err != nil {
		d.log.WithError(err).WithField("subject", d.subject).Warn("failed to publish alert event")
	}
}

func channelHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
