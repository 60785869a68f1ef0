// Package tgui provides small Telegram message helpers: HTML escaping
// wrappers and a line builder that escapes by default in HTML parse mode.
package tgui
