// Package config loads devforge settings from built-in defaults, a YAML
// file, .env files and the process environment, in that order.
package config
