package provider

import (
	"errors"
	"fmt"

	gosmtp "github.com/emersion/go-smtp"
)

// ProviderError wraps a transport failure with its classification.
type ProviderError struct {
	Provider string
	// Code is the SMTP reply code, or 0 when the failure happened below SMTP.
	Code      int
	Message   string
	Permanent bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PermanentFailure reports whether retrying cannot succeed. The queue
// moves such tasks straight to the DLQ.
func (e *ProviderError) PermanentFailure() bool { return e.Permanent }

// IsPermanent returns true if err carries a permanent ProviderError.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}

// ClassifySMTPError converts a transport error into a ProviderError. SMTP
// 5xx replies are permanent; 4xx replies and network errors are transient.
func ClassifySMTPError(providerName string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	pe := &ProviderError{Provider: providerName, Message: err.Error(), Err: err}

	var se *gosmtp.SMTPError
	if errors.As(err, &se) {
		pe.Code = se.Code
		pe.Message = se.Message
		pe.Permanent = se.Code >= 500 && se.Code < 600
	}
	return pe
}
