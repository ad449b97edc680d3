package engine

import (
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// compiledPatterns only ever holds immutable *regexp.Regexp values keyed by
// flags and pattern text, so sharing it across requests is safe.
var compiledPatterns = gocache.New(30*time.Minute, 10*time.Minute)

// ConfigurePatternCache resets the compiled pattern cache with a new TTL.
// Call it once at startup, before any request is served.
func ConfigurePatternCache(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	compiledPatterns = gocache.New(ttl, ttl/3)
}

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// CompilePattern compiles a stored pattern into a Go regexp. Patterns may be
// written in literal form (/body/flags); flags i, m and s map to Go inline
// flags, the stateful JS flags g, u and y have no Go equivalent and are dropped.
func CompilePattern(pattern, flags string, caseInsensitive bool) (*regexp.Regexp, error) {
	body, literalFlags := splitLiteral(pattern)
	prefix := inlineFlags(flags+literalFlags, caseInsensitive)
	key := prefix + "\x00" + body

	if cached, ok := compiledPatterns.Get(key); ok {
		cp := cached.(compiledPattern)
		return cp.re, cp.err
	}

	re, err := regexp.Compile(prefix + body)
	compiledPatterns.SetDefault(key, compiledPattern{re: re, err: err})
	return re, err
}

func splitLiteral(pattern string) (string, string) {
	if len(pattern) < 2 || pattern[0] != '/' {
		return pattern, ""
	}
	end := strings.LastIndexByte(pattern, '/')
	if end <= 0 {
		return pattern, ""
	}
	flags := pattern[end+1:]
	for _, r := range flags {
		if !strings.ContainsRune("gimsuy", r) {
			return pattern, ""
		}
	}
	return pattern[1:end], flags
}

func inlineFlags(flags string, caseInsensitive bool) string {
	var b strings.Builder
	for _, f := range "ims" {
		if strings.ContainsRune(flags, f) || (f == 'i' && caseInsensitive) {
			b.WriteRune(f)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}
