// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a structured error classification.
type ErrorCode string

const (
	// ErrCodeStagingInit indicates the staging root could not be created or written.
	ErrCodeStagingInit ErrorCode = "STAGING_INIT"
	// ErrCodePluginLoad indicates a plugin failed to instantiate.
	ErrCodePluginLoad ErrorCode = "PLUGIN_LOAD"
	// ErrCodeGateFailure indicates a plugin's enablement check failed.
	ErrCodeGateFailure ErrorCode = "GATE_FAILURE"
	// ErrCodeDiagnose indicates a plugin's pre-flight checks failed.
	ErrCodeDiagnose ErrorCode = "DIAGNOSE"
	// ErrCodeSetup indicates a plugin's setup hook failed.
	ErrCodeSetup ErrorCode = "SETUP"
	// ErrCodeAnalyze indicates a plugin's analyze hook failed.
	ErrCodeAnalyze ErrorCode = "ANALYZE"
	// ErrCodePostproc indicates a plugin's postproc hook failed.
	ErrCodePostproc ErrorCode = "POSTPROC"
	// ErrCodeCommandTimeout indicates an external command exceeded its time limit.
	ErrCodeCommandTimeout ErrorCode = "COMMAND_TIMEOUT"
	// ErrCodeUnknownOption indicates a referenced plugin or option does not exist.
	ErrCodeUnknownOption ErrorCode = "UNKNOWN_OPTION"
	// ErrCodePrivilege indicates the run lacks root-equivalent privilege.
	ErrCodePrivilege ErrorCode = "PRIVILEGE"
	// ErrCodePackaging indicates the archive could not be produced.
	ErrCodePackaging ErrorCode = "PACKAGING"
	// ErrCodeAborted indicates the run was stopped by the user or a signal.
	ErrCodeAborted ErrorCode = "ABORTED"
	// ErrCodeNotFound indicates a requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInternal indicates an internal system error.
	ErrCodeInternal ErrorCode = "INTERNAL"
	// ErrCodeInvalidRequest indicates malformed or invalid input.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// StructuredError provides structured error information for better observability.
// It includes an error code for programmatic handling, a human-readable message,
// the underlying cause, and optional context for debugging.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the outermost StructuredError in the chain,
// or an empty code when err carries none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// CodeOrDefault returns CodeOf(err), or def when err carries no code.
func CodeOrDefault(err error, def ErrorCode) ErrorCode {
	if code := CodeOf(err); code != "" {
		return code
	}
	return def
}

// HasCode reports whether any StructuredError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *StructuredError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}
