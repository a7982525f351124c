package events

import (
	"encoding/json"
	"fmt"
	"time"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ViewRefreshedEvent published after the scheduler stored a fresh view
type ViewRefreshedEvent struct {
	Instance string    `json:"instance"`
	ChainID  uint64    `json:"chain_id"`
	Query    string    `json:"query"`
	At       time.Time `json:"at"`
}

// ActionConfirmedEvent published after an approve/execute receipt succeeded
type ActionConfirmedEvent struct {
	Instance string              `json:"instance"`
	Result   models.ActionResult `json:"result"`
	At       time.Time           `json:"at"`
}

// Publisher the subset of NATSClient the bus needs
type Publisher interface {
	Subject(tokens ...string) string
	PublishJSON(subject string, v interface{}) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

var _ Publisher = (*clients.NATSClient)(nil)

// Bus publishes bridge events and relays actions confirmed by sibling
// instances. A Bus without a publisher is a no-op.
type Bus struct {
	pub      Publisher
	instance string
	logger   *logrus.Entry
	now      func() time.Time
}

// NewBus pub may be nil
func NewBus(pub Publisher, logger *logrus.Logger) *Bus {
	return &Bus{
		pub:      pub,
		instance: uuid.NewString(),
		logger:   logger.WithField("component", "events"),
		now:      time.Now,
	}
}

// Instance id stamped on every event this process publishes
func (b *Bus) Instance() string {
	return b.instance
}

// Enabled reports whether events leave the process
func (b *Bus) Enabled() bool {
	return b.pub != nil
}

// PublishActionConfirmed publishes on <prefix>.action.confirmed
func (b *Bus) PublishActionConfirmed(result models.ActionResult) error {
	if b.pub == nil {
		return nil
	}
	return b.pub.PublishJSON(b.pub.Subject("action", "confirmed"), ActionConfirmedEvent{
		Instance: b.instance,
		Result:   result,
		At:       b.now(),
	})
}

// ViewRefreshed publishes on <prefix>.view.refreshed.<chainId>.<query>.
// Its signature matches the refresh scheduler's listener.
func (b *Bus) ViewRefreshed(chainID uint64, query string) {
	if b.pub == nil {
		return
	}
	subject := b.pub.Subject("view", "refreshed", fmt.Sprint(chainID), query)
	err := b.pub.PublishJSON(subject, ViewRefreshedEvent{
		Instance: b.instance,
		ChainID:  chainID,
		Query:    query,
		At:       b.now(),
	})
	if err != nil {
		b.logger.WithError(err).WithField("chain_id", chainID).Warn("failed to publish view refresh")
	}
}

// OnRemoteAction calls handler for actions confirmed by other instances
func (b *Bus) OnRemoteAction(handler func(models.ActionResult)) error {
	if b.pub == nil {
		return nil
	}
	return b.pub.Subscribe(b.pub.Subject("action", "confirmed"), func(subject string, data []byte) {
		if result, ok := b.decodeRemoteAction(data); ok {
			handler(result)
		}
	})
}

// decodeRemoteAction drops malformed payloads and this instance's own events
func (b *Bus) decodeRemoteAction(data []byte) (models.ActionResult, bool) {
	var evt ActionConfirmedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		b.logger.WithError(err).Warn("malformed action event")
		return models.ActionResult{}, false
	}
	if evt.Instance == b.instance {
		return models.ActionResult{}, false
	}
	b.logger.WithFields(logrus.Fields{
		"chain_id": evt.Result.ChainID,
		"tx":       evt.Result.TxHash.Hex(),
		"instance": evt.Instance,
	}).Info("📨 Action confirmed elsewhere")
	return evt.Result, true
}
