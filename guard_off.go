//go:build profileoff

package profilez

// This file is the no-op half of the build-time toggle. Building with the
// "profileoff" tag compiles every instrumentation entry point down to an empty
// Guard, so marked blocks carry no timing state at all. The lifecycle calls
// still work; they just never see spans.

const instrumentationEnabled = false

// Guard is empty when built with the profileoff tag.
type Guard struct{}

// Begin is a no-op when built with the profileoff tag.
func (*Thread) Begin(string) Guard { return Guard{} }

// BeginHere is a no-op when built with the profileoff tag.
func (*Thread) BeginHere() Guard { return Guard{} }

// End is a no-op when built with the profileoff tag.
func (Guard) End() {}
