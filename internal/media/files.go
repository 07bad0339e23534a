package media

import (
	"regexp"
	"strings"
)

var (
	videoRe    = regexp.MustCompile(`(?i)\.(mp4|mkv|avi|mov|wmv|flv|webm|mpeg|mpg|m4v|3gp|vob|ts|mts|m2ts|rmvb|divx)$`)
	subtitleRe = regexp.MustCompile(`(?i)\.(srt|sub|idx|ass|ssa|smi|vtt|sbv|sami|usf|stl|dks|pjs|jss|psb|rt|scc|cap|sup|dfxp|ttml)$`)

	// langRe matches a language code right before a subtitle extension: .en, .eng, .en-US.
	langRe = regexp.MustCompile(`(\.[a-zA-Z]{2,3}(?:[-_][a-zA-Z]{2,4})?)$`)
)

// IsVideo reports whether filename has a recognized video extension.
func IsVideo(filename string) bool {
	return videoRe.MatchString(filename)
}

// IsSubtitle reports whether filename has a recognized subtitle extension.
func IsSubtitle(filename string) bool {
	return subtitleRe.MatchString(filename)
}

// IsSample reports whether name looks like a release sample.
func IsSample(name string) bool {
	return strings.Contains(strings.ToLower(name), "sample")
}

// SplitExtension separates a known media extension from filename. Subtitle
// extensions keep their language code (".en.srt"). Unknown suffixes are not
// treated as extensions, so "Mr. Robot" stays whole.
func SplitExtension(filename string) (stem, ext string) {
	switch {
	case IsSubtitle(filename):
		loc := subtitleRe.FindStringIndex(filename)
		before := filename[:loc[0]]
		lang := langRe.FindString(before)
		// A three letter "language" that is really a title word is kept.
		if lang != "" && !looksLikeLanguage(lang) {
			lang = ""
		}
		cut := loc[0] - len(lang)
		return filename[:cut], filename[cut:]
	case IsVideo(filename):
		dot := strings.LastIndex(filename, ".")
		return filename[:dot], filename[dot:]
	}
	return filename, ""
}

func looksLikeLanguage(code string) bool {
	code = strings.TrimPrefix(code, ".")
	base, _, _ := strings.Cut(strings.ReplaceAll(code, "_", "-"), "-")
	return base == strings.ToLower(base)
}
