package stow

import (
	"strings"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// ContentType is a parsed media type of the form
// "type/subtype[+suffix][;key=value...]". Unlike RFC 2045 media types the
// parameter order is significant here: two content types with the same
// parameters in different order identify different codecs.
type ContentType struct {
	// Type is the top-level type, e.g. "application".
	Type string
	// Subtype is the subtype without the structured syntax suffix, e.g.
	// "vnd.stowage.report".
	Subtype string
	// Suffix is the optional structured syntax suffix, e.g. "json" in
	// "application/vnd.stowage.report+json".
	Suffix string
	// Params holds the parameters in the order they were written.
	Params []ContentTypeParam
}

// ContentTypeParam is a single key=value media type parameter.
type ContentTypeParam struct {
	Key   string
	Value string
}

// ParseContentType parses s into a ContentType. Type, subtype, suffix and
// parameter keys are lowercased; parameter values and order are preserved.
func ParseContentType(s string) (ContentType, error) {
	var ct ContentType

	parts := strings.Split(s, ";")
	mediaType := strings.TrimSpace(parts[0])

	base, suffix, _ := strings.Cut(mediaType, "+")
	typ, subtype, ok := strings.Cut(base, "/")
	if !ok {
		return ct, errdefs.Newf(errdefs.ErrInvalidParameter,
			"content type %q: missing %q separator", s, "/")
	}
	ct.Type = strings.ToLower(typ)
	ct.Subtype = strings.ToLower(subtype)
	ct.Suffix = strings.ToLower(suffix)
	if !validToken(ct.Type) || !validToken(ct.Subtype) || (suffix != "" && !validToken(ct.Suffix)) {
		return ct, errdefs.Newf(errdefs.ErrInvalidParameter,
			"content type %q: malformed media type %q", s, mediaType)
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			return ct, errdefs.Newf(errdefs.ErrInvalidParameter,
				"content type %q: empty parameter", s)
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ct, errdefs.Newf(errdefs.ErrInvalidParameter,
				"content type %q: parameter %q: missing %q separator", s, part, "=")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if !validToken(key) {
			return ct, errdefs.Newf(errdefs.ErrInvalidParameter,
				"content type %q: malformed parameter key %q", s, key)
		}
		value = strings.TrimSpace(value)
		if unquoted, ok := strings.CutPrefix(value, `"`); ok {
			value, ok = strings.CutSuffix(unquoted, `"`)
			if !ok {
				return ct, errdefs.Newf(errdefs.ErrInvalidParameter,
					"content type %q: unterminated quoted value %q", s, part)
			}
		}
		ct.Params = append(ct.Params, ContentTypeParam{Key: key, Value: value})
	}
	return ct, nil
}

// MediaType returns the media type without parameters, e.g.
// "application/vnd.stowage.report+json".
func (c ContentType) MediaType() string {
	mt := c.Type + "/" + c.Subtype
	if c.Suffix != "" {
		mt += "+" + c.Suffix
	}
	return mt
}

// String returns the canonical form of the content type with parameters in
// their original order. Two content types are interchangeable only if their
// canonical forms are equal.
func (c ContentType) String() string {
	var sb strings.Builder
	sb.WriteString(c.MediaType())
	for _, p := range c.Params {
		sb.WriteString(";")
		sb.WriteString(p.Key)
		sb.WriteString("=")
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// Param returns the value of the named parameter.
func (c ContentType) Param(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, p := range c.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// CanonicalContentType returns the canonical form of s, suitable as a lookup
// key. See ContentType.String for the equality semantics.
func CanonicalContentType(s string) (string, error) {
	ct, err := ParseContentType(s)
	if err != nil {
		return "", err
	}
	return ct.String(), nil
}

// validToken reports whether s is a non-empty token without whitespace or
// delimiter characters.
func validToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, " \t/;=+\"")
}
