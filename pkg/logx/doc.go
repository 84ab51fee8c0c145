// Package logx configures sharebot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp, short caller)
//   - file output is JSON
//   - an optional Telegram sink forwards warnings to a log chat
package logx
