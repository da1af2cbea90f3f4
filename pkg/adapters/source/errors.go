package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a connector failure.
type Kind string

const (
	KindUnreachable Kind = "unreachable"
	KindAuthFailed  Kind = "auth_failed"
	KindTimeout     Kind = "timeout"
	KindQueryError  Kind = "query_error"
)

// ConnectorError wraps a driver error with its classified kind.
type ConnectorError struct {
	Kind Kind
	Err  error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// NewConnectorError wraps err with an explicit kind.
func NewConnectorError(kind Kind, err error) *ConnectorError {
	return &ConnectorError{Kind: kind, Err: err}
}

// authFailureMarkers are driver-message fragments that indicate rejected
// credentials across the supported drivers (pgconn 28P01/28000 text, mysql
// error 1045, mssql login failures).
var authFailureMarkers = []string{
	"password authentication failed",
	"authentication failed",
	"access denied",
	"login failed",
	"28p01",
	"28000",
}

// Classify maps a raw driver error to a *ConnectorError. Already-classified
// errors pass through unchanged.
func Classify(err error) *ConnectorError {
	if err == nil {
		return nil
	}

	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectorError{Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ConnectorError{Kind: KindTimeout, Err: err}
		}
		return &ConnectorError{Kind: KindUnreachable, Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range authFailureMarkers {
		if strings.Contains(msg, marker) {
			return &ConnectorError{Kind: KindAuthFailed, Err: err}
		}
	}
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable") {
		return &ConnectorError{Kind: KindUnreachable, Err: err}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return &ConnectorError{Kind: KindTimeout, Err: err}
	}

	return &ConnectorError{Kind: KindQueryError, Err: err}
}
