package utils

import (
	"time"
)

// Context keys carried on request-scoped contexts
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserAgentKey ContextKey = "user_agent"
	IPAddressKey ContextKey = "ip_address"
	EndpointKey  ContextKey = "endpoint"
)

// Attribution constants
const (
	// DefaultMatchWindow bounds the time-window join between an unattributed
	// conversion and nearby visits. Operational practice varied between 5 and
	// 10 minutes; 5 is the configured default.
	DefaultMatchWindow = 5 * time.Minute

	// DefaultReportingTimezone is the zone daily buckets are evaluated in
	DefaultReportingTimezone = "Asia/Seoul"

	// DefaultAggregationInterval is how often the scheduler recomputes the
	// rolling recent window
	DefaultAggregationInterval = 5 * time.Minute

	// DefaultRollingWindow is how far back each scheduled recompute reaches
	DefaultRollingWindow = 24 * time.Hour

	// CIDLength is the number of characters in generated short codes
	CIDLength = 8

	// Code6Length is the width of the zero-padded human registration code
	Code6Length = 6
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
