package storage

import "strings"

var keyReplacer = strings.NewReplacer(
	".", "_",
	"$", "_",
	"#", "_",
	"[", "_",
	"]", "_",
	"/", "_",
)

// SanitizeKey replaces the characters the remote path syntax reserves.
func SanitizeKey(key string) string {
	return keyReplacer.Replace(key)
}

func conversationsPath(owner string) string {
	return SanitizeKey(owner) + "/conversations"
}

func titlesPath(owner string) string {
	return SanitizeKey(owner) + "/customTitles"
}

func profilePath(userID string) string {
	return "users/" + SanitizeKey(userID)
}

const profileKey = "profile"
