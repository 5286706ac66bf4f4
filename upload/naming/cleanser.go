// Package naming maps local file and folder names to valid remote node
// names.
package naming

import (
	"context"
	"fmt"
	"strings"
)

// Kind distinguishes file names from folder names; the default transform
// treats them differently.
type Kind int

const (
	// KindFile ...
	KindFile Kind = iota
	// KindFolder ...
	KindFolder
)

// DefaultReplacement substitutes for characters the repository does not
// accept in node names.
const DefaultReplacement = "-"

// characters rejected by the repository in node names
const disallowedCharacters = "%/\\:*?\"[]|#{}^;+& \t"

// TransformFunc rewrites a raw local name before character cleansing. It
// runs on the base name only; file extensions are reattached afterwards.
type TransformFunc func(ctx context.Context, kind Kind, name string) (string, error)

// DefaultTransform lowercases folder names and leaves file names untouched.
func DefaultTransform(ctx context.Context, kind Kind, name string) (string, error) {
	if kind == KindFolder {
		return strings.ToLower(name), nil
	}
	return name, nil
}

// Options configures a Cleanser.
type Options struct {
	// Transform is applied before character replacement. Defaults to
	// DefaultTransform.
	Transform TransformFunc
	// Replacement substitutes for each disallowed character. Must be a
	// single character and must not itself be disallowed. Defaults to
	// DefaultReplacement.
	Replacement string
}

// Cleanser converts local names into valid remote node names.
type Cleanser struct {
	transform   TransformFunc
	replacement string
}

// New validates the options and creates a Cleanser. An invalid replacement
// character is a configuration error and fails here, before any upload
// work starts.
func New(options Options) (*Cleanser, error) {
	replacement := options.Replacement
	if replacement == "" {
		replacement = DefaultReplacement
	}
	if len([]rune(replacement)) != 1 {
		return nil, fmt.Errorf("replacement value %q must be a single character", replacement)
	}
	if strings.ContainsAny(replacement, disallowedCharacters) {
		return nil, fmt.Errorf("replacement value %q is itself a disallowed character", replacement)
	}

	transform := options.Transform
	if transform == nil {
		transform = DefaultTransform
	}

	return &Cleanser{transform: transform, replacement: replacement}, nil
}

// Cleanse maps rawName to a remote node name. For files the extension is
// preserved verbatim; only the base name is transformed and cleansed.
func (c *Cleanser) Cleanse(ctx context.Context, kind Kind, rawName string) (string, error) {
	base, ext := rawName, ""
	if kind == KindFile {
		if idx := strings.LastIndex(rawName, "."); idx > 0 {
			base, ext = rawName[:idx], rawName[idx:]
		}
	}

	transformed, err := c.transform(ctx, kind, base)
	if err != nil {
		return "", fmt.Errorf("transform name %q: %w", rawName, err)
	}

	var builder strings.Builder
	for _, r := range transformed {
		if strings.ContainsRune(disallowedCharacters, r) {
			builder.WriteString(c.replacement)
		} else {
			builder.WriteRune(r)
		}
	}

	cleansed := builder.String() + ext
	if cleansed == ext {
		return "", fmt.Errorf("name %q cleansed to an empty node name", rawName)
	}
	return cleansed, nil
}
