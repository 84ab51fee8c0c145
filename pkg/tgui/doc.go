// Package tgui provides small Telegram UI helpers:
//   - inline keyboard builders
//   - callback data helpers (scope:action:payload)
//   - an HTML-safe message builder
package tgui
