package gallery

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
)

// fingerprintLen is the number of hex characters of the SHA-256 digest
// embedded in uploaded filenames. 48 bits is plenty for a gallery of a
// few thousand images.
const fingerprintLen = 12

// Fingerprint derives the content identity of prepared image bytes.
// It is computed over the device-ready JPEG, not the source file, so
// the same photo re-exported at a different source quality still
// deduplicates once prepared identically.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// TargetName builds the on-device filename for an upload:
// the first fingerprintLen hex characters of the fingerprint, an
// underscore, then the sanitised source basename with a .jpg
// extension. The device only ever reports name, size, and time for
// gallery entries, so the embedded prefix is what lets later syncs
// detect duplicates without re-downloading bytes.
func TargetName(fingerprint, sourceName string) string {
	base := path.Base(sourceName)
	ext := path.Ext(base)
	base = strings.TrimSuffix(base, ext)

	base = unsafeNameChars.ReplaceAllString(base, "_")
	if base == "" {
		base = "image"
	}

	return fingerprint[:fingerprintLen] + "_" + base + ".jpg"
}

// fingerprintFromName recovers the embedded fingerprint prefix from a
// device filename. Returns false for names not produced by TargetName
// (out-of-band uploads); those entries cannot be deduplicated by
// content and are left alone.
func fingerprintFromName(name string) (string, bool) {
	idx := strings.IndexByte(name, '_')
	if idx != fingerprintLen {
		return "", false
	}

	prefix := name[:fingerprintLen]
	for _, r := range prefix {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return "", false
		}
	}
	return prefix, true
}
