// Package logging builds the zap logger the daemon and CLI run on.
//
// New constructs a *zap.Logger from Config: JSON or console encoding,
// stdout and/or OTEL bridge outputs, level-aware sampling that never drops
// errors, and a redacting encoder that masks credential-shaped fields and
// values. Sync is tolerant of the EINVAL/ENOTTY errors syncing stdout
// returns on Linux.
package logging
