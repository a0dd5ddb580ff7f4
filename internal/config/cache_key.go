package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key the identity service uses to
// register a student's active login JTI (single-device enforcement).
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// RoomMonitorChannel returns the Redis PubSub channel name for a room's live monitor.
func (r *CacheKeyStruct) RoomMonitorChannel(sessionID string) string {
	return fmt.Sprintf("room:%s:monitor", sessionID)
}

// RoomRankingKey returns the cache key for a room's raw ranking rows.
func (r *CacheKeyStruct) RoomRankingKey(sessionID string) string {
	return fmt.Sprintf("room:%s:rankings", sessionID)
}

var CacheKey = NewCacheKeyStruct()
