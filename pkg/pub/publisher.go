package pub

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/tagworks/uhf.go/pkg/framework"
	"github.com/tagworks/uhf.go/pkg/m5"
)

// Event is one published tag observation.
type Event struct {
	Reader string    `json:"reader"`
	EPC    string    `json:"epc"`
	At     time.Time `json:"at"`
}

// Reader abstracts the tag read operation of a session.
type Reader interface {
	ReadEPC(ctx context.Context, dst []byte, timeout uint16) (int, error)
}

// Defaults for Publisher zero values.
const (
	DefaultTopic    = "tags"
	DefaultInterval = time.Second
)

// Publisher polls a reader for tags and publishes each observation
// as a JSON Event. It implements framework.Runnable.
type Publisher struct {
	Queue  *Queue
	Reader Reader

	// Topic is appended to the queue's topic prefix.
	Topic string
	// Source names the reader in published events.
	Source string
	// Interval paces the polling loop.
	Interval time.Duration
	// Timeout is the per-read tag search bound in milliseconds,
	// DefaultSearchTimeout when zero.
	Timeout uint16
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "publisher"
}

// Run implements framework.Runnable. A read that finds no tag is
// normal and publishes nothing.
func (p *Publisher) Run(ctx context.Context) error {
	topic := p.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	interval := p.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = m5.DefaultSearchTimeout
	}

	epc := make([]byte, m5.MaxPayload)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		n, err := p.Reader.ReadEPC(ctx, epc, timeout)
		if err != nil {
			var status *m5.StatusError
			if errors.As(err, &status) {
				glog.V(2).Infof("no tag: %v", status)
			} else {
				glog.Warningf("read failed: %v", err)
			}
			continue
		}

		event := Event{
			Reader: p.Source,
			EPC:    hex.EncodeToString(epc[:n]),
			At:     time.Now().UTC(),
		}
		payload, err := json.Marshal(&event)
		if err != nil {
			return err
		}
		glog.V(1).Infof("PUB %q %s", topic, payload)
		token := p.Queue.Pub(topic, payload)
		if err = framework.RunWithContext(ctx, func() error {
			token.Wait()
			return token.Error()
		}); err != nil && err != context.Canceled {
			glog.Warningf("publish failed: %v", err)
		}
	}
}
