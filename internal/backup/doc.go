// Package backup exports table data into chunked blob objects and brings
// it back.
//
// A backup is a directory-like blob prefix holding one compressed chunk
// file per slice of a table plus a manifest. The manifest is written
// last, so its presence marks the backup as complete; anything without a
// readable manifest is treated as garbage from an interrupted run.
//
// Restores resolve a manifest by name or path, fall back to the legacy
// single-file layout, and write items back table by table. Retention
// keeps recent backups plus weekly and monthly representatives and
// deletes the rest. Verification checks a backup without touching the
// store it came from.
package backup
