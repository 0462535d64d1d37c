// Package stream is the public market-data client.
//
// A Client multiplexes any number of logical subscriptions onto one socket
// per channel class. Subscribing the first callback for a channel sends the
// wire subscribe frame and removing the last one sends the unsubscribe frame.
// Every active channel is re-subscribed when its socket reopens.
//
//	c := stream.New(stream.DefaultConfig(), logger)
//	h, err := c.Subscribe(model.Subscription{
//		Family:       model.FamilyCandle,
//		InstrumentID: "BTC-USDT",
//		Interval:     "1H",
//	}, func(msg stream.Message) { ... })
//	defer h.Unsubscribe()
package stream
