//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Formatter formats errors for CLI output: root cause first, matching
// the propagation policy's "print the root cause first, then rollback
// status."
type Formatter struct {
	NoColor bool
	Writer  io.Writer

	errorColor    *color.Color
	codeColor     *color.Color
	resourceColor *color.Color
	hintColor     *color.Color
	dimColor      *color.Color
}

// NewFormatter creates a new Formatter.
func NewFormatter(w io.Writer, noColor bool) *Formatter {
	if noColor {
		color.NoColor = true
	}

	return &Formatter{
		NoColor:       noColor,
		Writer:        w,
		errorColor:    color.New(color.FgRed, color.Bold),
		codeColor:     color.New(color.FgRed),
		resourceColor: color.New(color.FgCyan),
		hintColor:     color.New(color.FgGreen),
		dimColor:      color.New(color.FgHiBlack),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (f *Formatter) formatErrorHeader(sb *strings.Builder, code Code, message string) {
	sb.WriteString(f.errorColor.Sprint("Error"))
	if code != "" {
		sb.WriteString(" ")
		sb.WriteString(f.codeColor.Sprintf("[%s]", code))
	}
	sb.WriteString(f.errorColor.Sprint(": "))
	sb.WriteString(message)
	sb.WriteString("\n")
}

// Format formats an error for CLI display.
func (f *Formatter) Format(err error) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	var usageErr *UsageError
	var unsupportedErr *UnsupportedError
	var notFoundErr *NotFoundError
	var existsErr *AlreadyExistsError
	var rateErr *RateLimitedError
	var netErr *NetworkError
	var integrityErr *IntegrityError
	var fsErr *FilesystemError
	var txnErr *TransactionAbortedError
	var internalErr *InternalError
	var baseErr *Error

	if errors.As(err, &txnErr) && txnErr.Base.Cause != nil {
		sb.WriteString(f.Format(txnErr.Base.Cause))
		fmt.Fprintf(&sb, "\n  %s%s\n", f.dimColor.Sprint("Rollback: "), txnErr.Base.Message)
		return sb.String()
	}

	switch {
	case errors.As(err, &usageErr):
		f.formatResourceError(&sb, &usageErr.Base, "Input", usageErr.Input)
	case errors.As(err, &unsupportedErr):
		f.formatResourceError(&sb, &unsupportedErr.Base, capitalize(unsupportedErr.Kind), unsupportedErr.Value)
	case errors.As(err, &notFoundErr):
		f.formatResourceError(&sb, &notFoundErr.Base, "Resource", notFoundErr.Resource)
	case errors.As(err, &existsErr):
		f.formatResourceError(&sb, &existsErr.Base, "Resource", existsErr.Resource)
	case errors.As(err, &rateErr):
		f.formatErrorHeader(&sb, rateErr.Base.Code, rateErr.Base.Message)
		fmt.Fprintf(&sb, "  %s%d\n", f.dimColor.Sprint("Wait seconds: "), rateErr.WaitSeconds)
	case errors.As(err, &netErr):
		f.formatNetworkError(&sb, netErr)
	case errors.As(err, &integrityErr):
		f.formatIntegrityError(&sb, integrityErr)
	case errors.As(err, &fsErr):
		f.formatResourceError(&sb, &fsErr.Base, "Path", fsErr.Path)
	case errors.As(err, &txnErr):
		f.formatErrorHeader(&sb, txnErr.Base.Code, txnErr.Base.Message)
		if txnErr.Base.Cause != nil {
			fmt.Fprintf(&sb, "\n  %s%s\n", f.dimColor.Sprint("Root cause: "), txnErr.Base.Cause.Error())
		}
	case errors.As(err, &internalErr):
		f.formatResourceError(&sb, &internalErr.Base, "Invariant", internalErr.Invariant)
	case errors.As(err, &baseErr):
		f.formatBaseError(&sb, baseErr)
	default:
		sb.WriteString(f.errorColor.Sprint("Error: "))
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}

	return sb.String()
}

func (f *Formatter) formatResourceError(sb *strings.Builder, base *Error, label, value string) {
	f.formatErrorHeader(sb, base.Code, base.Message)
	if value != "" {
		fmt.Fprintf(sb, "  %s%s\n", f.dimColor.Sprintf("%s: ", label), f.resourceColor.Sprint(value))
	}
	if base.Cause != nil {
		fmt.Fprintf(sb, "\n  %s%s\n", f.dimColor.Sprint("Cause: "), base.Cause.Error())
	}
	f.formatHint(sb, base)
}

func (f *Formatter) formatNetworkError(sb *strings.Builder, err *NetworkError) {
	f.formatErrorHeader(sb, err.Base.Code, err.Base.Message)
	if err.URL != "" {
		fmt.Fprintf(sb, "  %s%s\n", f.dimColor.Sprint("URL:    "), err.URL)
	}
	if err.StatusCode > 0 {
		fmt.Fprintf(sb, "  %s%s\n", f.dimColor.Sprint("Status: "), f.codeColor.Sprintf("%d", err.StatusCode))
	}
	if err.Base.Cause != nil {
		fmt.Fprintf(sb, "\n  %s%s\n", f.dimColor.Sprint("Cause: "), err.Base.Cause.Error())
	}
	f.formatHint(sb, &err.Base)
}

func (f *Formatter) formatIntegrityError(sb *strings.Builder, err *IntegrityError) {
	f.formatErrorHeader(sb, err.Base.Code, err.Base.Message)
	if err.Resource != "" {
		fmt.Fprintf(sb, "  %s%s\n", f.dimColor.Sprint("Resource: "), f.resourceColor.Sprint(err.Resource))
	}
	if err.Expected != "" {
		fmt.Fprintf(sb, "  %s%s\n", f.dimColor.Sprint("Expected: "), err.Expected)
		fmt.Fprintf(sb, "  %s%s\n", f.dimColor.Sprint("Got:      "), err.Got)
	}
	f.formatHint(sb, &err.Base)
}

func (f *Formatter) formatBaseError(sb *strings.Builder, err *Error) {
	f.formatErrorHeader(sb, err.Code, err.Message)
	if err.Cause != nil {
		fmt.Fprintf(sb, "\n  %s%s\n", f.dimColor.Sprint("Cause: "), err.Cause.Error())
	}
	f.formatHint(sb, err)
}

func (f *Formatter) formatHint(sb *strings.Builder, err *Error) {
	if err.Hint == "" {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(f.hintColor.Sprint("Hint: "))
	lines := strings.Split(err.Hint, "\n")
	sb.WriteString(lines[0])
	sb.WriteString("\n")
	for _, line := range lines[1:] {
		sb.WriteString("      ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

// FormatJSON formats an error as JSON.
func (f *Formatter) FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return nil, nil
	}

	var usageErr *UsageError
	var unsupportedErr *UnsupportedError
	var notFoundErr *NotFoundError
	var existsErr *AlreadyExistsError
	var rateErr *RateLimitedError
	var netErr *NetworkError
	var integrityErr *IntegrityError
	var fsErr *FilesystemError
	var txnErr *TransactionAbortedError
	var internalErr *InternalError
	var baseErr *Error

	switch {
	case errors.As(err, &usageErr):
		return json.MarshalIndent(usageErr, "", "  ")
	case errors.As(err, &unsupportedErr):
		return json.MarshalIndent(unsupportedErr, "", "  ")
	case errors.As(err, &notFoundErr):
		return json.MarshalIndent(notFoundErr, "", "  ")
	case errors.As(err, &existsErr):
		return json.MarshalIndent(existsErr, "", "  ")
	case errors.As(err, &rateErr):
		return json.MarshalIndent(rateErr, "", "  ")
	case errors.As(err, &netErr):
		return json.MarshalIndent(netErr, "", "  ")
	case errors.As(err, &integrityErr):
		return json.MarshalIndent(integrityErr, "", "  ")
	case errors.As(err, &fsErr):
		return json.MarshalIndent(fsErr, "", "  ")
	case errors.As(err, &txnErr):
		return json.MarshalIndent(txnErr, "", "  ")
	case errors.As(err, &internalErr):
		return json.MarshalIndent(internalErr, "", "  ")
	case errors.As(err, &baseErr):
		return json.MarshalIndent(baseErr, "", "  ")
	default:
		return json.MarshalIndent(map[string]string{"error": err.Error()}, "", "  ")
	}
}
