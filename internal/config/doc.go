// Package config loads gitdeck settings.
//
// Sources, highest precedence first:
//   - command line flags
//   - GITDECK_* environment variables
//   - the repository override file .git/gitdeck.json
//   - the user file $XDG_CONFIG_HOME/gitdeck/config.yaml (or --config)
//   - built-in defaults
package config
