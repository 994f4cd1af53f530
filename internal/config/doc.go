// Package config provides the launcher's configuration.
//
// Configuration comes from three places, lowest priority first:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← COMFYLAUNCH_*
//	├─────────────────────────────┤
//	│  2. launcher_config.ini     │  ← Record (operator choices)
//	│     launcher.toml           │  ← Settings (tunables)
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// Command line flags are applied on top by the caller.
//
// # Record
//
// The Record is a KEY=VALUE text file with # comments. It holds the
// target directory, environment name, launch arguments, the update flag
// and an icon path. Unknown keys are preserved when the file is rewritten.
// An unreadable file is never fatal: Read returns Defaults together with a
// *ReadError.
//
// # Settings
//
// Settings are optional TOML tunables: shutdown timeouts, the entry point,
// log level, log buffer size and the output encoding of the server.
//
// # Live reload
//
// Watcher uses fsnotify to re-read the Record whenever the file changes
// on disk, so a running console picks up edits made elsewhere.
package config
