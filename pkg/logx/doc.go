// Package logx is rankbot's structured logging layer.
//
// It wraps zerolog behind a small value-type Logger so components can carry
// fixed fields (comp, rid, run_id) without sharing mutable state. A Service
// fans records out to the console, an optional append-only file, and an
// optional rate-limited chat sink that forwards warnings to an operator chat.
package logx
