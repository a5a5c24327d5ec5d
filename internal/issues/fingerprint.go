package issues

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sitewarden/sitewarden/internal/models"
)

// siteWideTarget collapses per-URL fingerprints to one site-level issue when
// the analyzer declares the finding site-wide.
const siteWideTarget = "site"

// Fingerprint computes the stable identity of a finding across runs:
// hash(plugin_name, category, normalised target). The target is the finding's
// URL for per-URL findings, or the literal site key when the finding is
// declared site-wide.
func Fingerprint(pluginName string, f models.Finding) string {
	target := f.URL
	if f.SiteWide {
		target = siteWideTarget
	}
	h := sha256.New()
	h.Write([]byte(pluginName))
	h.Write([]byte{0})
	h.Write([]byte(f.Category))
	h.Write([]byte{0})
	h.Write([]byte(target))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
