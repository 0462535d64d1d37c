package stream

import (
	"time"

	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/router"
)

// dispatch classifies one inbound frame and delivers it. Called on the
// connection's read goroutine, so delivery order matches receive order.
func (c *Client) dispatch(cn *conn, data []byte, receivedAt time.Time) {
	frame, err := c.normalizer.Classify(data)
	if err != nil {
		cn.logger.Warn("dropping unparseable frame", "error", err, "bytes", len(data))
		return
	}

	switch f := frame.(type) {
	case router.Data:
		c.dispatchData(cn, f, receivedAt)

	case router.Ack:
		typ := MessageSubscribed
		if f.Event == router.EventUnsubscribe {
			typ = MessageUnsubscribed
		}
		keys, _ := resolve(f.Arg, cn.reg)
		for _, k := range keys {
			c.deliver(cn, k, Message{Type: typ, Channel: f.Arg.Channel, Key: k, ReceivedAt: receivedAt})
		}

	case router.ErrorFrame:
		perr := &ProtocolError{Class: cn.class, Code: f.Code, Msg: f.Msg, Arg: f.Arg}
		cn.logger.Warn("exchange rejected request", "code", f.Code, "msg", f.Msg)
		c.emitError(perr)

	case router.Notice:
		cn.logger.Info("exchange notice", "event", f.Event, "code", f.Code, "msg", f.Msg)
		notice := f
		cn.reg.Each(func(k channel.Key, fns []Handler) {
			msg := Message{Type: MessageNotice, Key: k, Notice: &notice, ReceivedAt: receivedAt}
			for _, fn := range fns {
				c.invoke(cn, k, fn, msg)
			}
		})
	}
}

func (c *Client) dispatchData(cn *conn, f router.Data, receivedAt time.Time) {
	keys, match := resolve(f.Arg, cn.reg)
	if match == MatchNone {
		c.dropped.Add(1)
		cn.logger.Debug("no subscriber for frame, dropping",
			"channel", f.Arg.Channel,
			"inst_id", f.Arg.InstID,
		)
		return
	}

	events, snapshot, err := c.normalizer.Normalize(f)
	if err != nil {
		cn.logger.Warn("dropping frame that failed to normalize", "error", err)
		return
	}

	if match != MatchExact {
		cn.logger.Debug("resolved frame by fallback",
			"match", match,
			"channel", f.Arg.Channel,
			"inst_id", f.Arg.InstID,
		)
	}

	for _, k := range keys {
		c.deliver(cn, k, Message{
			Type:       MessageData,
			Channel:    f.Arg.Channel,
			Key:        k,
			Events:     events,
			IsSnapshot: snapshot,
			ReceivedAt: receivedAt,
		})
	}
}

// deliver invokes every callback under key, isolating each one so a panic
// does not stop delivery to its siblings.
func (c *Client) deliver(cn *conn, key channel.Key, msg Message) {
	for _, fn := range cn.reg.Get(key) {
		c.invoke(cn, key, fn, msg)
	}
}

func (c *Client) invoke(cn *conn, key channel.Key, fn Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			cn.logger.Error("subscriber panicked", "key", key, "panic", r)
			c.emitError(&DispatchError{Key: key, Value: r})
		}
	}()
	c.dispatched.Add(1)
	fn(msg)
}
