// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML configuration at ~/.sazid/config.toml
//   - PromptStore: prompt templates under ~/.sazid/prompts
package file
