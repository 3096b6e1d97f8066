package protocol

import "context"

// StaticFingerprintProvider returns the same operator-configured bio/rat
// blobs for every correlation_id. The vendored fingerprint bodies this
// interface models are produced by a third-party library out of scope here
// (see config.Rules.FingerprintBio/FingerprintRat); this is not an attempt
// to reproduce that generation, only to satisfy the interface with whatever
// an operator has provisioned so the dialog has something to submit.
type StaticFingerprintProvider struct {
	Bio string
	Rat string
}

// Fingerprint implements FingerprintProvider by returning the configured
// blobs unchanged, ignoring correlationID.
func (p StaticFingerprintProvider) Fingerprint(_ context.Context, _ string) (bio, rat string, err error) {
	return p.Bio, p.Rat, nil
}
