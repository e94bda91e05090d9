// Package config loads, normalizes, and validates quill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), loads .env files, reads TOML, and honours environment fallbacks
// for every credential (ANTHROPIC_API_KEY, CMS_API_TOKEN, RESEND_API_KEY and
// friends). Publish windows and the report schedule are validated with the
// same cron parser the scheduler uses.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
