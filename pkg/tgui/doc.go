// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders (from platform-neutral transport buttons)
//   - HTML escaping helpers for ParseMode="HTML"
//   - A message builder with sensible defaults (HTML, no link preview)
package tgui
