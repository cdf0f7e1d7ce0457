// Package logx provides the bot's structured logging facade on top of zerolog.
//
// Components receive a Logger (usually tagged with a "comp" field) and never
// touch zerolog directly. The Service owns the sinks: console, optional log
// file, and an optional rate-limited Telegram chat for operator alerts. Sinks
// can be swapped at runtime via Apply() when the config file changes.
package logx
