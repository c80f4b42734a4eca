// Package notifications announces episode milestones over ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so the
// workflow can call it unconditionally.
package notifications
