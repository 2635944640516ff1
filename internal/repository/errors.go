package repository

import "errors"

// Sentinel errors shared by the repositories. Services map them with svcErr.Map.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrSessionNotFound = errors.New("session not found")

	// ErrPurchaseNotFound: no purchase with that id belongs to the caller.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrPurchaseUnavailable: the purchase exists but is consumed, pending, failed
	// or for a different sku.
	ErrPurchaseUnavailable = errors.New("purchase unavailable")
	// ErrPurchaseOwnership: a provider transaction replay disagrees on owner or sku.
	ErrPurchaseOwnership = errors.New("purchase ownership mismatch")
)
