package device

import "context"

// GateResult is the outcome of a device biometric prompt.
type GateResult int

const (
	// GatePassed means the device authenticated the user locally.
	GatePassed GateResult = iota
	// GateDenied means the prompt ran and the user failed it. Always blocks.
	GateDenied
	// GateUnavailable means the device has no capability or no enrollment.
	// Policy decides whether that skips to the face match or blocks.
	GateUnavailable
)

// BiometricGate wraps the platform's local authentication check. External
// capability; the coordinator only consumes the verdict.
type BiometricGate interface {
	Authenticate(ctx context.Context, prompt string) (GateResult, error)
}

// UnavailablePolicy configures how GateUnavailable is treated.
type UnavailablePolicy int

const (
	// UnavailableSkips proceeds straight to the face-match identity proof.
	UnavailableSkips UnavailablePolicy = iota
	// UnavailableBlocks refuses the punch when the gate cannot run.
	UnavailableBlocks
)

// NopGate always reports GateUnavailable, for devices without biometrics.
type NopGate struct{}

func (NopGate) Authenticate(ctx context.Context, prompt string) (GateResult, error) {
	return GateUnavailable, nil
}
