package liveness

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/durinhq/durin/internal/idgen"
	"github.com/durinhq/durin/internal/logging"
	"github.com/durinhq/durin/internal/metrics"
	"github.com/durinhq/durin/internal/traces"
)

// Device fingerprints known from past fraud cases. In production this would
// come from a shared intelligence feed; the deny-list covers the demo set.
var flaggedDevices = map[string]bool{
	"suspicious_device_001": true,
	"known_fraud_device_42": true,
}

// Checker runs liveness verifications. provider and sanctions may be nil;
// each missing client falls back to a deterministic demo path.
type Checker struct {
	store     Store
	provider  *ProviderClient
	sanctions *SanctionsClient
}

// NewChecker creates a checker. provider and sanctions may be nil.
func NewChecker(store Store, provider *ProviderClient, sanctions *SanctionsClient) *Checker {
	return &Checker{store: store, provider: provider, sanctions: sanctions}
}

// Verify runs all checks for one request, persists the result, and returns
// it. Invalid images fail fast without touching external providers.
func (c *Checker) Verify(ctx context.Context, check Check) (*CheckResult, error) {
	ctx, span := traces.StartSpan(ctx, "liveness.verify")
	defer span.End()

	result := &CheckResult{
		ID:                idgen.WithPrefix("lv_"),
		UserID:            check.UserID,
		DeviceFingerprint: check.DeviceFingerprint,
		SanctionsPass:     true,
		Flags:             []string{},
		CheckedAt:         time.Now().UTC(),
	}

	image, err := base64.StdEncoding.DecodeString(check.ImageData)
	if err != nil {
		result.Flags = append(result.Flags, FlagInvalidImage)
		return c.finish(ctx, result)
	}
	if len(image) < 1000 {
		result.Flags = append(result.Flags, FlagImageTooSmall)
		return c.finish(ctx, result)
	}

	result.Score = c.livenessScore(ctx, image, result)
	result.ReplayDetected = detectReplay(image)
	if result.ReplayDetected {
		result.Flags = append(result.Flags, FlagReplay)
	}

	name := check.UserName
	if name == "" {
		name = check.UserID
	}
	result.SanctionsPass = c.screenSanctions(ctx, name)
	if !result.SanctionsPass {
		result.Flags = append(result.Flags, FlagSanctionsMatch)
	}

	result.DeviceRisk = c.deviceRisk(ctx, check.DeviceFingerprint)
	if result.DeviceRisk > 0.7 {
		result.Flags = append(result.Flags, FlagHighDeviceRisk)
	}

	if count, err := c.store.CountByUser(ctx, check.UserID); err == nil && count > MaxChecksPerUser {
		result.Flags = append(result.Flags, FlagVelocityAbuse)
	}

	result.Pass = result.Score >= MinLivenessScore &&
		!result.ReplayDetected &&
		result.SanctionsPass &&
		result.DeviceRisk < MaxDeviceRisk

	return c.finish(ctx, result)
}

func (c *Checker) finish(ctx context.Context, result *CheckResult) (*CheckResult, error) {
	if err := c.store.Create(ctx, result); err != nil {
		return nil, err
	}

	outcome := "fail"
	if result.Pass {
		outcome = "pass"
	}
	metrics.LivenessChecksTotal.WithLabelValues(outcome).Inc()
	logging.L(ctx).Info("liveness check completed",
		"check_id", result.ID,
		"user_id", result.UserID,
		"pass", result.Pass,
		"flags", result.Flags)
	return result, nil
}

// livenessScore returns the 0-1 liveness confidence. With a provider
// configured, a deepfake confidence d maps to max(0, 1-2d) so a 0.5 deepfake
// score is already a failing liveness score. Without one the score derives
// from the image hash, shifted by file size as a crude quality proxy.
func (c *Checker) livenessScore(ctx context.Context, image []byte, result *CheckResult) float64 {
	if c.provider != nil {
		conf, err := c.provider.DeepfakeConfidence(ctx, image)
		if err == nil {
			if conf > MaxDeepfakeConfidence {
				result.Flags = append(result.Flags, FlagDeepfake)
			}
			score := 1.0 - conf*2
			if score < 0 {
				score = 0
			}
			return round3(score)
		}
		logging.L(ctx).Warn("deepfake provider failed, using demo scoring", "error", err)
	}

	score := 0.5 + float64(hashPrefix(image)%1000)/2222.0
	if len(image) < 10000 {
		score *= 0.7
	}
	if len(image) > 50000 {
		score *= 1.1
		if score > 0.95 {
			score = 0.95
		}
	}
	return round3(score)
}

// detectReplay flags probable screen captures. Tiny files are treated as
// recompressed screenshots; otherwise a hash-derived ~10% of images are
// flagged so the demo path exercises the failure branch deterministically.
func detectReplay(image []byte) bool {
	if len(image) < 5000 {
		return true
	}
	sum := sha256.Sum256(image)
	return sum[0] < 26
}

func (c *Checker) screenSanctions(ctx context.Context, name string) bool {
	if c.sanctions != nil {
		match, err := c.sanctions.Screen(ctx, name)
		if err != nil {
			// Screening outages must not block onboarding.
			logging.L(ctx).Warn("sanctions screening failed, defaulting to pass", "error", err)
			return true
		}
		return match == nil
	}
	return !demoSanctionsList[hashHex(name)]
}

// demoSanctionsList is the hashed deny-list used when no screening API is
// configured.
var demoSanctionsList = map[string]bool{
	hashHex("blocked_user_1"):    true,
	hashHex("sanctioned_person"): true,
	hashHex("pep_individual"):    true,
}

// deviceRisk scores a device 0-1: deny-listed devices near 1, heavily shared
// devices high, everything else a low hash-derived baseline.
func (c *Checker) deviceRisk(ctx context.Context, fingerprint string) float64 {
	if flaggedDevices[fingerprint] {
		return 0.95
	}

	users, err := c.store.DeviceUsers(ctx, fingerprint)
	if err == nil {
		switch n := len(users); {
		case n > 10:
			return 0.9
		case n > 5:
			return 0.8
		case n > 2:
			return 0.5
		}
	}

	return round3(0.05 + float64(hashPrefix([]byte(fingerprint))%100)/400.0)
}

// DeviceStats reports what the store knows about a device fingerprint.
func (c *Checker) DeviceStats(ctx context.Context, fingerprint string) (*DeviceStats, error) {
	users, err := c.store.DeviceUsers(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	return &DeviceStats{
		DeviceFingerprint: fingerprint,
		UserCount:         len(users),
		Users:             users,
		Flagged:           flaggedDevices[fingerprint],
	}, nil
}

func hashPrefix(data []byte) uint32 {
	sum := sha256.Sum256(data)
	return binary.BigEndian.Uint32(sum[:4])
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
