// Package config loads, validates, and normalizes Lookbook configuration.
//
// Configuration is TOML. Load resolves the file from an explicit path, the
// user config directory, or ./lookbook.toml, layers it over built-in
// defaults, and rejects values that would break daemon operation. Secrets may
// come from the environment (OPENAI_API_KEY, GEMINI_API_KEY) when absent from
// the file.
package config
