// Package config loads, normalizes, and validates splicer configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file and honours
// environment fallbacks such as OPENAI_API_KEY. The Config type centralizes
// every knob the daemon and CLI need.
//
// Pipeline stages never read Config or the environment directly. The
// orchestrator derives a Pipeline value once per assembly attempt and threads
// it through each stage.
package config
