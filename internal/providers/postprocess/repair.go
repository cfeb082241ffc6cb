package postprocess

import "strings"

// Replacement is the letter substituted for the decoding artifact.
const Replacement = "И"

// In UTF-8 "И" is D0 98, and 0x98 has no windows-1251 mapping, so it is the
// one Cyrillic letter that comes back from a mis-decoded page as U+FFFD,
// sometimes trailed by a no-break space. Only the encoded EF BF BD sequence
// matches; invalid bytes of pages in other encodings are left alone.
var mojibake = strings.NewReplacer(
	"\uFFFD\u00A0", Replacement,
	"\uFFFD", Replacement,
)

// Repair replaces every U+FFFD, optionally followed by U+00A0, with "И".
// The result never contains U+FFFD, so Repair is idempotent.
func Repair(s string) string {
	return mojibake.Replace(s)
}
