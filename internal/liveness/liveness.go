// Package liveness is the identity integrity gate used by underwriting.
//
// A check combines facial liveness / deepfake detection, replay detection,
// sanctions screening, device risk, and velocity limits into a single
// pass/fail result. External providers are optional: when none is configured
// the checker runs in a deterministic demo mode derived from content hashes,
// so repeated checks on the same input always agree.
package liveness

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("liveness: check not found")
)

// Warning flags attached to a check result.
const (
	FlagImageTooSmall  = "IMAGE_TOO_SMALL"
	FlagInvalidImage   = "INVALID_IMAGE_FORMAT"
	FlagDeepfake       = "DEEPFAKE_DETECTED"
	FlagReplay         = "REPLAY_DETECTED"
	FlagSanctionsMatch = "SANCTIONS_MATCH"
	FlagHighDeviceRisk = "HIGH_DEVICE_RISK"
	FlagVelocityAbuse  = "VELOCITY_ABUSE"
)

// Decision thresholds.
const (
	MinLivenessScore      = 0.6
	MaxDeviceRisk         = 0.8
	MaxDeepfakeConfidence = 0.5
	MaxChecksPerUser      = 10
)

// Check is one liveness verification request.
type Check struct {
	UserID            string `json:"userId"`
	UserName          string `json:"userName,omitempty"`
	ImageData         string `json:"imageData"` // base64-encoded selfie
	DeviceFingerprint string `json:"deviceFingerprint"`
}

// CheckResult is the outcome of one verification.
type CheckResult struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	Pass              bool      `json:"pass"`
	Score             float64   `json:"score"` // 0-1 liveness confidence
	ReplayDetected    bool      `json:"replayDetected"`
	SanctionsPass     bool      `json:"sanctionsPass"`
	DeviceRisk        float64   `json:"deviceRisk"` // 0-1
	Flags             []string  `json:"flags"`
	CheckedAt         time.Time `json:"checkedAt"`
}

// DeviceStats summarizes what is known about one device fingerprint.
type DeviceStats struct {
	DeviceFingerprint string   `json:"deviceFingerprint"`
	UserCount         int      `json:"userCount"`
	Users             []string `json:"users"`
	Flagged           bool     `json:"flagged"`
}

// Store persists check results and supports the device/velocity queries the
// checker needs.
type Store interface {
	// Create persists a check result.
	Create(ctx context.Context, result *CheckResult) error
	// ListByUser returns a user's checks, newest first.
	ListByUser(ctx context.Context, userID string) ([]CheckResult, error)
	// Latest returns a user's most recent check.
	Latest(ctx context.Context, userID string) (*CheckResult, error)
	// CountByUser returns how many checks a user has run.
	CountByUser(ctx context.Context, userID string) (int, error)
	// DeviceUsers returns the distinct user ids seen on a device.
	DeviceUsers(ctx context.Context, deviceFingerprint string) ([]string, error)
}
