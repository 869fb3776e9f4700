// Package logx configures gatebot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp, file:line caller)
//   - the optional file sink is JSON
//   - the optional Telegram sink forwards warnings to a log group, rate limited
package logx
