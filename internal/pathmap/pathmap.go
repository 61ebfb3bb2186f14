// Package pathmap normalizes source paths and maps them onto a destination
// root. Windows-style paths (drive letters, UNC shares) are handled on every
// host so that copy-tool listings can be processed anywhere.
//
// Normalized paths keep their case; compare them with EqualFold or
// HasPrefixFold.
package pathmap

import (
	"runtime"
	"strings"
)

// Style describes a path syntax.
type Style struct {
	Sep byte
}

var (
	// Windows paths use backslashes, drive letters and \\server\share roots.
	Windows = Style{Sep: '\\'}
	// Unix paths use forward slashes and a single / root.
	Unix = Style{Sep: '/'}
	// Native is the style of the running platform.
	Native = nativeStyle()
)

func nativeStyle() Style {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return Unix
}

func (s Style) windows() bool { return s.Sep == '\\' }

// FoldsCase reports whether names differing only in case refer to the same
// file. True for Windows paths only.
func (s Style) FoldsCase() bool { return s.windows() }

// Key returns the normalized form of p used to index paths: lower-cased for
// case-folding styles, unchanged otherwise.
func (s Style) Key(p string) string {
	p = s.Normalize(p)
	if s.FoldsCase() {
		return strings.ToLower(p)
	}
	return p
}

// Normalize converts forward slashes to the style separator, collapses
// repeated separators and strips trailing ones. Drive roots (C:\), the Unix
// root (/) and UNC prefixes are preserved.
func (s Style) Normalize(p string) string {
	if p == "" {
		return ""
	}
	if s.windows() {
		p = strings.ReplaceAll(p, "/", `\`)
	}

	// Collapse runs of separators, leaving a leading UNC "\\" alone.
	buf := make([]byte, 0, len(p))
	start := 0
	if s.windows() && strings.HasPrefix(p, `\\`) {
		buf = append(buf, '\\', '\\')
		start = 2
	}
	for i := start; i < len(p); i++ {
		if p[i] == s.Sep && len(buf) > start && buf[len(buf)-1] == s.Sep {
			continue
		}
		buf = append(buf, p[i])
	}
	out := string(buf)

	root := s.rootLen(out)
	for len(out) > root && out[len(out)-1] == s.Sep {
		out = out[:len(out)-1]
	}
	return out
}

// volumeLen returns the length of a leading drive ("C:") or UNC
// ("\\server\share") volume name. Always 0 for Unix paths.
func (s Style) volumeLen(p string) int {
	if !s.windows() {
		return 0
	}
	if len(p) >= 2 && p[1] == ':' && isLetter(p[0]) {
		return 2
	}
	if !strings.HasPrefix(p, `\\`) {
		return 0
	}
	// \\server\share
	rest := p[2:]
	i := strings.IndexByte(rest, '\\')
	if i < 0 {
		return len(p)
	}
	j := strings.IndexByte(rest[i+1:], '\\')
	if j < 0 {
		return len(p)
	}
	return 2 + i + 1 + j
}

// Volume returns the drive ("C:") or UNC share ("\\server\share") that p
// lives on, or "" when p has none.
func (s Style) Volume(p string) string {
	n := s.Normalize(p)
	return n[:s.volumeLen(n)]
}

// rootLen is the length of the part of p that trailing-separator stripping
// must never remove.
func (s Style) rootLen(p string) int {
	if !s.windows() {
		if strings.HasPrefix(p, "/") {
			return 1
		}
		return 0
	}
	if strings.HasPrefix(p, `\\`) {
		return s.volumeLen(p)
	}
	v := s.volumeLen(p)
	if v == 2 && len(p) > 2 && p[2] == '\\' {
		return 3
	}
	return v
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// IsAbs reports whether p is absolute: a drive root or UNC share for
// Windows, a leading slash for Unix.
func (s Style) IsAbs(p string) bool {
	if p == "" {
		return false
	}
	if !s.windows() {
		return p[0] == '/'
	}
	p = strings.ReplaceAll(p, "/", `\`)
	if strings.HasPrefix(p, `\\`) {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && isLetter(p[0]) && p[2] == '\\'
}

// IsUNC reports whether p names a \\server\share path.
func (s Style) IsUNC(p string) bool {
	if !s.windows() {
		return false
	}
	p = strings.ReplaceAll(p, "/", `\`)
	return len(p) > 2 && strings.HasPrefix(p, `\\`) && p[2] != '\\'
}

// IsRoot reports whether p is a bare root: "/", "C:\", or "\\server\share".
func (s Style) IsRoot(p string) bool {
	n := s.Normalize(p)
	return n != "" && s.rootLen(n) == len(n) && s.IsAbs(n)
}

// Join appends elements to base with exactly one separator between them.
// A bare drive token ("C:") is treated as its root.
func (s Style) Join(base string, elem ...string) string {
	out := s.Normalize(base)
	sep := string(s.Sep)
	for _, e := range elem {
		e = s.Normalize(e)
		e = strings.Trim(e, sep)
		if e == "" {
			continue
		}
		switch {
		case out == "":
			out = e
		case out[len(out)-1] == s.Sep:
			out += e
		default:
			out += sep + e
		}
	}
	return s.Normalize(out)
}

// EqualFold compares two paths case-insensitively after normalization.
func (s Style) EqualFold(a, b string) bool {
	return strings.EqualFold(s.Normalize(a), s.Normalize(b))
}

// HasPrefixFold reports whether p is root or lies beneath it, comparing
// whole path components case-insensitively.
func (s Style) HasPrefixFold(p, root string) bool {
	np, nr := s.Normalize(p), s.Normalize(root)
	if nr == "" || len(np) < len(nr) {
		return false
	}
	if !strings.EqualFold(np[:len(nr)], nr) {
		return false
	}
	if len(np) == len(nr) || nr[len(nr)-1] == s.Sep {
		return true
	}
	return np[len(nr)] == s.Sep
}

// Rel returns p relative to root. ok is false when p is not under root.
func (s Style) Rel(p, root string) (rel string, ok bool) {
	if !s.HasPrefixFold(p, root) {
		return "", false
	}
	np, nr := s.Normalize(p), s.Normalize(root)
	return strings.TrimLeft(np[len(nr):], string(s.Sep)), true
}

// Split breaks a relative path into its components.
func (s Style) Split(rel string) []string {
	rel = strings.Trim(s.Normalize(rel), string(s.Sep))
	if rel == "" {
		return nil
	}
	return strings.Split(rel, string(s.Sep))
}

// Base returns the last component of p, or p itself for a root.
func (s Style) Base(p string) string {
	n := s.Normalize(p)
	if s.rootLen(n) == len(n) {
		return n
	}
	i := strings.LastIndexByte(n, s.Sep)
	if i < 0 {
		return n
	}
	return n[i+1:]
}

// Dir returns all but the last component of p. The parent of a root is the
// root itself.
func (s Style) Dir(p string) string {
	n := s.Normalize(p)
	root := s.rootLen(n)
	if root == len(n) {
		return n
	}
	i := strings.LastIndexByte(n, s.Sep)
	if i < 0 {
		return ""
	}
	if i < root {
		return n[:root]
	}
	return n[:i]
}

// MapDestination maps sourcePath beneath sourceRoot onto destRoot. When
// sourcePath equals sourceRoot the result is exactly destRoot.
func (s Style) MapDestination(sourcePath, sourceRoot, destRoot string) string {
	dst, _ := s.MapDestinationOK(sourcePath, sourceRoot, destRoot)
	return dst
}

// MapDestinationOK is MapDestination that also reports whether sourcePath
// was under sourceRoot. Paths outside the root map to destRoot joined with
// their base name.
func (s Style) MapDestinationOK(sourcePath, sourceRoot, destRoot string) (string, bool) {
	rel, ok := s.Rel(sourcePath, sourceRoot)
	if !ok {
		return s.Join(destRoot, s.Base(sourcePath)), false
	}
	if rel == "" {
		return destRoot, true
	}
	return s.Join(destRoot, rel), true
}

// NormalizePath normalizes p in the native style.
func NormalizePath(p string) string { return Native.Normalize(p) }

// MapDestination maps sourcePath onto destRoot in the native style.
func MapDestination(sourcePath, sourceRoot, destRoot string) string {
	return Native.MapDestination(sourcePath, sourceRoot, destRoot)
}

// StyleFor guesses the style of p: Windows when p carries a drive letter,
// a UNC prefix or backslashes, the native style otherwise.
func StyleFor(p string) Style {
	if strings.HasPrefix(p, `\\`) || strings.Contains(p, `\`) {
		return Windows
	}
	if len(p) >= 2 && p[1] == ':' && isLetter(p[0]) {
		return Windows
	}
	return Native
}
