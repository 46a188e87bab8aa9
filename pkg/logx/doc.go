// Package logx configures wakealert's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional relay sink (min-level + rate limiting) for hosts that surface
//     engine diagnostics outside the process
package logx
