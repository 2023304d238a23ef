package config

import "time"

const (
	// Content
	MaxContentLength = 5000

	// History
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100

	// Connection
	SendBufferSize        = 256
	DefaultPongWait       = 60 * time.Second
	DefaultWriteWait      = 10 * time.Second
	DefaultMaxMessageSize = 16 * 1024
	DefaultEventsPerSec   = 10
	DefaultEventBurst     = 20

	// Presence
	PresenceChannel = "presence"
	PresenceTTL     = 2 * time.Minute

	// Offline notifications
	OfflineNotificationQueue = "notifications:offline"
)
