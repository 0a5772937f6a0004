// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time so wording can change without touching Go code.
package assets

import (
	_ "embed"
)

// SystemInstructionPrompt sets the reviewer persona for every analysis
// request.
//
//go:embed prompts/system-instruction.txt
var SystemInstructionPrompt string
