package stream

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/connection"
	"github.com/rickgao/okx-stream/internal/model"
)

// Handle identifies one registered callback. Unsubscribe is idempotent.
type Handle struct {
	client *Client
	id     uuid.UUID
	key    channel.Key
	once   sync.Once
}

// Key returns the registry key the callback is registered under.
func (h *Handle) Key() channel.Key { return h.key }

// ID returns the unique id of the registration.
func (h *Handle) ID() uuid.UUID { return h.id }

// Unsubscribe removes the callback. It stops receiving messages immediately.
func (h *Handle) Unsubscribe() {
	h.once.Do(func() { h.client.Unsubscribe(h) })
}

// Subscribe registers fn for sub. The wire subscribe frame is sent only for
// the first callback of a channel; when the connection is not yet open it is
// opened in the background and the frame is sent once it is.
func (c *Client) Subscribe(sub model.Subscription, fn Handler) (*Handle, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	if err := validate(sub); err != nil {
		return nil, err
	}

	key := channel.RegistryKey(sub)
	cn := c.conns[key.Class()]
	h := &Handle{client: c, id: uuid.New(), key: key}

	cn.mu.Lock()
	first, err := cn.reg.Add(key, h.id, fn)
	if err != nil {
		cn.mu.Unlock()
		return nil, err
	}
	open := cn.mgr.State() == connection.StateOpen
	if first && open {
		if err := cn.send(opSubscribe, []channel.Key{key}); err == nil {
			cn.live[key] = struct{}{}
		}
	}
	cn.mu.Unlock()

	if first {
		cn.logger.Debug("subscribed", "key", key, "open", open)
	}
	if !open {
		go c.connect(cn)
	}
	return h, nil
}

// Unsubscribe removes the callback behind h and reports whether it was
// registered. The unsubscribe frame is sent, without waiting for an
// acknowledgement, only when the last callback for the channel goes.
func (c *Client) Unsubscribe(h *Handle) bool {
	if h == nil {
		return false
	}
	cn := c.conns[h.key.Class()]

	cn.mu.Lock()
	empty, found := cn.reg.Remove(h.key, h.id)
	if empty {
		if _, ok := cn.live[h.key]; ok {
			delete(cn.live, h.key)
			cn.send(opUnsubscribe, []channel.Key{h.key})
		}
	}
	cn.mu.Unlock()

	if empty {
		cn.logger.Debug("unsubscribed", "key", h.key)
	}
	return found
}

// SubscribeTickers subscribes to tickers of every instrument of instType.
func (c *Client) SubscribeTickers(instType string, fn Handler) (*Handle, error) {
	return c.Subscribe(model.Subscription{
		Family:         model.FamilyTicker,
		InstrumentType: instType,
	}, fn)
}

// SubscribeTicker subscribes to the ticker of a single instrument.
func (c *Client) SubscribeTicker(instID string, fn Handler) (*Handle, error) {
	return c.Subscribe(model.Subscription{
		Family:       model.FamilyTicker,
		InstrumentID: instID,
	}, fn)
}

func validate(sub model.Subscription) error {
	switch sub.Family {
	case model.FamilyCandle, model.FamilyTrade, model.FamilyBook:
		if strings.TrimSpace(sub.InstrumentID) == "" {
			return fmt.Errorf("%w: %s requires an instrument id", ErrInvalidSubscription, sub.Family)
		}
	case model.FamilyTicker:
	default:
		return fmt.Errorf("%w: unknown family %d", ErrInvalidSubscription, sub.Family)
	}
	if sub.Depth < 0 {
		return fmt.Errorf("%w: negative depth", ErrInvalidSubscription)
	}
	return nil
}
