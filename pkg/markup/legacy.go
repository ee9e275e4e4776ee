package markup

import (
	"regexp"
	"strings"
)

var legacyHex = regexp.MustCompile(`&(#[a-fA-F0-9]{6})`)

var legacyCodes = strings.NewReplacer(
	"&0", "<reset><black>",
	"&1", "<reset><dark_blue>",
	"&2", "<reset><dark_green>",
	"&3", "<reset><dark_aqua>",
	"&4", "<reset><dark_red>",
	"&5", "<reset><dark_purple>",
	"&6", "<reset><gold>",
	"&7", "<reset><gray>",
	"&8", "<reset><dark_gray>",
	"&9", "<reset><blue>",
	"&a", "<reset><green>",
	"&b", "<reset><aqua>",
	"&c", "<reset><red>",
	"&d", "<reset><light_purple>",
	"&e", "<reset><yellow>",
	"&f", "<reset><white>",
	"&k", "<obfuscated>",
	"&l", "<bold>",
	"&m", "<strikethrough>",
	"&n", "<u>",
	"&o", "<i>",
	"&r", "<reset>",
)

// ReplaceLegacy translates '&' (and section sign) colour codes into tags.
// Hex codes (&#rrggbb) are handled before the single-character codes.
func ReplaceLegacy(s string) string {
	s = strings.ReplaceAll(s, "§", "&")
	s = legacyHex.ReplaceAllString(s, "<reset><color:$1>")
	return legacyCodes.Replace(s)
}
