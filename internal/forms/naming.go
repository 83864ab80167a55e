package forms

import (
	"fmt"
	"strings"
	"time"
)

// StartFilename is the filename of the process start form.
const StartFilename = "000-start.form"

// FormExt is the extension of generated form files.
const FormExt = ".form"

// TimestampLayout is the compact UTC timestamp appended to form ids.
const TimestampLayout = "20060102T150405Z"

const maxSlug = 60

// Slug lowercases s and collapses every run of characters outside [a-z0-9]
// into a single hyphen.
func Slug(s string) string {
	var sb strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && sb.Len() > 0 {
			sb.WriteByte('-')
			hyphen = true
		}
	}
	out := strings.TrimSuffix(sb.String(), "-")
	if len(out) > maxSlug {
		out = strings.TrimRight(out[:maxSlug], "-")
	}
	return out
}

// Filename is "<NNN>-<slug>.form" for position, slugging name or, when name
// has no usable characters, nodeID.
func Filename(position int, name, nodeID string) string {
	slug := Slug(name)
	if slug == "" {
		slug = Slug(nodeID)
	}
	if slug == "" {
		slug = "step"
	}
	return fmt.Sprintf("%03d-%s%s", position, slug, FormExt)
}

// FormID is "<filename stem>-<compact UTC timestamp>".
func FormID(filename string, at time.Time) string {
	return strings.TrimSuffix(filename, FormExt) + "-" + at.UTC().Format(TimestampLayout)
}
