//go:build unix

package channel

import (
	"log"

	"github.com/TheSmallBoat/netchannel/wire"
)

// Option configures a Channel during construction.
type Option func(*Channel)

// WithEncoder overrides how requests are turned into outgoing sends.
func WithEncoder(enc Encoder) Option {
	return func(c *Channel) {
		c.encoder = enc
	}
}

// WithDecoder overrides how empty response buffers are created.
func WithDecoder(dec Decoder) Option {
	return func(c *Channel) {
		c.decoder = dec
	}
}

// WithLogger sets the logger used to report connect failures swallowed by
// Connect.
func WithLogger(logger *log.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// SizeDelimitedEncoder frames each request with a 4-byte length header.
func SizeDelimitedEncoder(connectionID string, msg Message) Outgoing {
	return wire.NewSend(connectionID, msg)
}

// SizeDelimitedDecoder returns a decoder for length-prefixed responses of at
// most maxSize bytes, or any size if maxSize is wire.Unlimited. Buffers come
// from the wire pool; callers may hand them back with wire.ReleaseReceive.
func SizeDelimitedDecoder(maxSize int) Decoder {
	return func() Incoming {
		return wire.AcquireReceive(maxSize)
	}
}
