package config

import "github.com/danmuck/wirekit/internal/protocol/pcap"

// Limits maps the decode section onto capture reader limits.
func (c DecodeConfig) Limits() pcap.Limits {
	limits := pcap.DefaultLimits()
	if c.MaxSnapLen > 0 {
		limits.MaxSnapLen = c.MaxSnapLen
	}
	limits.MaxRecords = c.MaxRecords
	return limits
}
