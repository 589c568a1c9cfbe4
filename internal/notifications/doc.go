// Package notifications delivers pipeline events via ntfy.
//
// The ntfy implementation posts plain-text messages to the topic configured
// in config.toml and degrades to a no-op when no topic is set. Each event
// type can be switched off in the [notifications] section. Callers depend
// only on the Service interface.
package notifications
