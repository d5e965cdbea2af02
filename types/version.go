package types

// Version is the canonical build version, reported by the CLI (the app
// version and `radiusd version`). The module ABI magic carries its own
// version field (set in cli/cmd/run.go), not this value.
const Version = "0.6.1"

// Commit is a build commit hash placeholder, "dev" by default. No package
// reads it; the CLI and the module ABI magic use cli/cmd.Commit instead.
var Commit = "dev"
