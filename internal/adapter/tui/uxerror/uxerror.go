// Package uxerror turns surface and gateway errors into short messages with
// recovery hints.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"devicepair/internal/adapter/tui/theme"
	"devicepair/internal/domain"
)

// FriendlyError is a user-facing error.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error for the surface.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(theme.TextError.Render(theme.SymbolError + " " + fe.Title))
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	for _, h := range fe.Hints {
		sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Sentinels first so errors.Is works through wrapping. Errors coming back
	// over the websocket are plain strings and fall through to text matches.
	{
		match: isOrContains(domain.ErrGatewayAuthFailed, "unauthorized", "401"),
		produce: constantError("Not Authorized", "The setup service rejected the surface token.",
			[]string{"Pass the token configured under gateway.auth.tokens", "Set DEVICEPAIR_SURFACE_TOKEN for the surface"}),
	},
	{
		match: isOrContains(domain.ErrUnknownCommand, domain.ErrUnknownCommand.Error()),
		produce: constantError("Command Not Supported", "The setup service does not accept that command.",
			[]string{"Update the surface to match the service version"}),
	},
	{
		match: isOrContains(domain.ErrInvalidInput, domain.ErrInvalidInput.Error()),
		produce: constantError("Invalid Selection", "The setup service rejected the value.",
			[]string{"Check the address format, for example http://192.168.1.10:6712"}),
	},
	{
		match: containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Setup Service Unreachable", "Could not connect to the setup gateway.",
			[]string{"Start the service with 'devicepair run'", "Check gateway.addr in the config"}),
	},
	{
		match: containsAny("deadline exceeded", "timeout"),
		produce: constantError("Timed Out", "The setup service did not answer in time.",
			[]string{"Try again", "Check that the device is not overloaded"}),
	},
	{
		match: containsAny("429", "too many requests"),
		produce: constantError("Slow Down", "Too many requests were sent to the setup service.",
			[]string{"Wait a moment before retrying"}),
	},
}

// Humanize converts err into a FriendlyError.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with DEVICEPAIR_LOGGER_LEVEL=debug for details"},
		Raw:     err.Error(),
	}
}

func isOrContains(target error, substrs ...string) func(error) bool {
	contains := containsAny(substrs...)
	return func(err error) bool {
		return errors.Is(err, target) || contains(err)
	}
}

func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: message, Hints: hints, Raw: err.Error()}
	}
}
