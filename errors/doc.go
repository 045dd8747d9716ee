// Package errors provides the error classification used across ywdash.
//
// # Error Classification
//
// Errors fall in one of three classes:
//
//   - Transient: connection loss, timeouts, 5xx responses from the daemon
//   - Invalid: malformed input, unknown entities, 4xx responses, bad command bodies
//   - Fatal: unusable configuration, exhausted resources
//
// The event-aggregation core never retries actions on its own. A failed
// action is reported to its caller and the message-derived state is left
// untouched; classification only tells the caller what kind of failure it got.
//
// # Wrapping
//
// Errors are wrapped with "component.method: action failed: cause":
//
//	if err != nil {
//	    return errors.WrapTransient(err, "transport", "Do", "send request")
//	}
//
// Wrapped errors keep their chain, so errors.Is and errors.As work against the
// sentinel values declared in this package.
package errors
