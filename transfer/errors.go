package transfer

import "errors"

// ErrRejected is returned to a sender when the receiver's Answer has
// Accept == false.
var ErrRejected = errors.New("transfer: receiver rejected the offer")

// ErrWouldOverwrite is returned by a receiver when the destination
// path for an incoming file already exists, per spec.md §4.4's
// refuse-to-overwrite invariant.
var ErrWouldOverwrite = errors.New("transfer: destination already exists")

// ErrPathEscape is returned when a tar entry's name would resolve
// outside the destination directory.
var ErrPathEscape = errors.New("transfer: tar entry escapes destination directory")

// ErrSizeMismatch is returned by a receiver when the number of bytes
// actually received does not match the sender's declared file size.
var ErrSizeMismatch = errors.New("transfer: received size does not match offer")

// ErrChecksumMismatch is returned when the trailing ack's sha256 does
// not match the bytes the receiver wrote, per spec.md §4.4's final
// ack{sha256} record and the S2 testable property.
var ErrChecksumMismatch = errors.New("transfer: checksum mismatch")
