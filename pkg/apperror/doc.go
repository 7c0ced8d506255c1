// Package apperror defines the error taxonomy shared by the sync pipeline
// and the read API.
//
//   - ErrUpstream: the remote API failed or answered with an unexpected shape.
//   - ErrPersistence: a store operation failed or wrote fewer rows than asked.
//   - ErrCorruptState: the store contents contradict program assumptions
//     (e.g. a partially present seed set). Never repaired automatically.
//
// Errors are *Error values carrying one of the kinds; match them with
// errors.Is(err, apperror.ErrUpstream).
package apperror
