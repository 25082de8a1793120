package blackboard

import (
	"fmt"
	"time"
)

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several Hark deployments can share one Redis server. Per-viewer data is
// further scoped by user id.
//
// Key pattern: hark:{instance_name}:user:{user_id}:{entity}
// Channel pattern: hark:{instance_name}:{stream}

// PreferencesKey returns the Redis key for a viewer's stored preferences hash.
// Pattern: hark:{instance_name}:user:{user_id}:preferences
func PreferencesKey(instanceName, userID string) string {
	return fmt.Sprintf("hark:%s:user:%s:preferences", instanceName, userID)
}

// HistoryKey returns the Redis key for a viewer's emitted-message history list.
// Newest entries are at the head.
// Pattern: hark:{instance_name}:user:{user_id}:history
func HistoryKey(instanceName, userID string) string {
	return fmt.Sprintf("hark:%s:user:%s:history", instanceName, userID)
}

// FeedbackKey returns the Redis key for a viewer's feedback list.
// Oldest entries are at the head so the list replays in order.
// Pattern: hark:{instance_name}:user:{user_id}:feedback
func FeedbackKey(instanceName, userID string) string {
	return fmt.Sprintf("hark:%s:user:%s:feedback", instanceName, userID)
}

// MetricsKey returns the Redis key for a viewer's daily metrics hash.
// The day is formatted in UTC.
// Pattern: hark:{instance_name}:user:{user_id}:metrics:{YYYY-MM-DD}
func MetricsKey(instanceName, userID string, day time.Time) string {
	return fmt.Sprintf("hark:%s:user:%s:metrics:%s", instanceName, userID, day.UTC().Format("2006-01-02"))
}

// EventsChannel returns the Pub/Sub channel producers publish raw events to.
// Pattern: hark:{instance_name}:events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("hark:%s:events", instanceName)
}

// MessagesChannel returns the Pub/Sub channel emitted messages are published on
// for the UI layer.
// Pattern: hark:{instance_name}:messages
func MessagesChannel(instanceName string) string {
	return fmt.Sprintf("hark:%s:messages", instanceName)
}
