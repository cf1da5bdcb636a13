// Package notify delivers alerts to operator channels.
//
// Each recognised channel (CONSOLE, LOG, EMAIL, SLACK) has one Channel
// implementation. A Dispatcher holds the per-channel NotificationConfig and
// fans an alert out to the channels an escalation policy names. Delivery is
// at most once: a failing or panicking channel is logged and skipped, and
// never affects its siblings or the caller.
//
// Templates use {severity}, {message}, {agentId}, {timestamp}, {metricType},
// {value}, {threshold} and {level} placeholders.
package notify
