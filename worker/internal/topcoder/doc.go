// Package topcoder is the HTTP client for the remote challenge platform.
//
// FetchCandidateChallenges lists active challenges with the configured query
// filter and keeps those whose name contains the keyword. FetchResults reads
// one challenge's final results from the base URL of its community.
//
// Response bodies are decoded into DTOs and checked with go-playground/validator
// before they are converted to pkg/types values. Every failure is returned as
// apperror.ErrUpstream, except the platform's "not yet finished" error detail
// on a result request, which FetchResults reports as (nil, nil).
package topcoder
