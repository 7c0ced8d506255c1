// Package reconcile computes which remote challenges are not yet stored.
package reconcile
