// Package interview isolates operator prompts from the engine. Batch returns
// defaults; Console prompts when stdin is a terminal.
package interview
