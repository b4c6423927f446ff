// Package domain contains core concepts of the real-time hub.
// This file defines identity and connection addressing.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is the stable username used as the addressing key for
// presence, rooms and calls.
type Identity string

// ConnID identifies one open connection. A user with several devices
// holds several ConnIDs bound to the same Identity.
type ConnID string

func (i Identity) String() string { return string(i) }

func (c ConnID) String() string { return string(c) }
