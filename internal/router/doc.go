// Package router classifies inbound OKX socket frames and normalizes data
// pushes into canonical model events.
//
// Frames are one of four variants: Ack, ErrorFrame, Notice or Data. Data
// payloads are decoded per channel family; trades and books accept both the
// object and positional-array record shapes. Every timestamp is converted to
// unix seconds and every price or size to a decimal.
package router
