// Package config loads, normalizes, and validates narrator configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY. The Config type is passed explicitly to every component
// constructor; nothing in the repository reads directory locations from
// package-level state.
package config
