// User-facing error codes.
//
// Technical errors are mapped to a short message, a suggested action and a
// code that users can quote to support. Codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Patterns: "file too large", "request body too large"
//	FILE002 - Invalid table         Patterns: "invalid csv", "invalid xlsx"
//	FILE003 - Unsupported format    Patterns: "unsupported file format"
//	FILE004 - No file               Patterns: "no file provided"
//	FILE005 - Empty file            Patterns: "empty file"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy            Patterns: "too many uploads"
//	UPL002 - Batch expired          Patterns: "batch not found"
//	UPL003 - Request cancelled      Patterns: "context canceled"
//	UPL004 - Request timeout        Patterns: "context deadline exceeded"
//	UPL005 - Invalid output mode    Patterns: "unknown output mode"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Invalid record         Patterns: "invalid record"
//	REQ002 - Malformed JSON         Patterns: "decode request"
//
// # Enrichment Errors (ENR001-ENR099)
//
//	ENR001 - Parser unavailable     Patterns: "enrichment unavailable"
//	ENR002 - Enrichment disabled    Patterns: "enrichment disabled"
//
// # Rule Errors (RULE001-RULE099)
//
//	RULE001 - Profile missing       Patterns: "rule profile"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Returned when no pattern matches. Check the server log for the technical
// error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Enrichment errors wrap their cause, so they match first.
	{
		pattern: "enrichment unavailable",
		msg: UserMessage{
			Message: "Address parser is unavailable",
			Action:  "Results were normalized without enrichment; retry later",
			Code:    "ENR001",
		},
	},
	{
		pattern: "enrichment disabled",
		msg: UserMessage{
			Message: "Enrichment is not configured on this server",
			Action:  "Submit without enrichment",
			Code:    "ENR002",
		},
	},

	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid xlsx",
		msg: UserMessage{
			Message: "File is not a readable Excel workbook",
			Action:  "Re-save the workbook as .xlsx or export it to CSV",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "File type is not supported",
			Action:  "Upload a .csv or .xlsx file",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or XLSX file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and data rows",
			Code:    "FILE005",
		},
	},

	// Upload errors
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "batch not found",
		msg: UserMessage{
			Message: "Batch not found",
			Action:  "The batch may have expired. Normalize the file again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or disable enrichment",
			Code:    "UPL004",
		},
	},
	{
		pattern: "unknown output mode",
		msg: UserMessage{
			Message: "Unknown output mode",
			Action:  "Use addr-only or extended",
			Code:    "UPL005",
		},
	},

	// Request errors
	{
		pattern: "invalid record",
		msg: UserMessage{
			Message: "Address record failed validation",
			Action:  "Keep every field under 512 characters",
			Code:    "REQ001",
		},
	},
	{
		pattern: "decode request",
		msg: UserMessage{
			Message: "Request body is not valid JSON",
			Action:  "Send a JSON object with the address fields",
			Code:    "REQ002",
		},
	},

	// Rule errors
	{
		pattern: "rule profile",
		msg: UserMessage{
			Message: "Rule profile is not loaded",
			Action:  "Set ADDRNORM_PROFILE or add configs/geo_profile.yaml",
			Code:    "RULE001",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. A nil
// error yields the zero UserMessage; an unmatched error yields ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err. It returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
