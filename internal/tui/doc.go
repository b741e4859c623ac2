// Package tui provides the terminal user interface for gitdeck.
//
// It handles:
//   - The bubbletea application model that renders engine results
//   - Structured logging and status reporting (Splog)
//   - Terminal styling and colors (using lipgloss)
//   - Progress indicators for remote operations
package tui
