// SPDX-License-Identifier: MPL-2.0

// Package config handles mcwrap configuration using Viper with CUE as the file format.
//
// Configuration is loaded from $XDG_CONFIG_HOME/mcwrap/config.cue (defaulting to
// ~/.config/mcwrap/config.cue; ~/Library/Application Support/mcwrap/config.cue on
// macOS; %APPDATA%\mcwrap\config.cue on Windows), then from ./config.cue when the
// user file is absent. MCWRAP_-prefixed environment variables override both, e.g.
// MCWRAP_WATCH_DEBOUNCE=500ms or MCWRAP_SITE_PACKAGES=/a,/b.
//
// Files are validated against the embedded CUE schema (config_schema.cue) before
// they reach Viper, so type errors point at the offending field.
package config
