package custos

import (
	"fmt"
	"strings"
)

// splitCode splits a permission code into its kind qualifier and codename.
// "document.view_document" yields ("document", "view_document"); a bare
// "view_document" yields ("", "view_document").
func splitCode(code string) (kind, codename string) {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i], code[i+1:]
	}
	return "", code
}

// codenameFor validates one code against the kind it is used with and
// returns the bare codename. A kind qualifier, if present, must match.
func codenameFor(code, kind string) (string, error) {
	qualifier, codename := splitCode(code)
	if codename == "" || strings.Contains(codename, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	if qualifier != "" && qualifier != kind {
		return "", fmt.Errorf("%w: %q used with kind %q", ErrWrongKind, code, kind)
	}
	return codename, nil
}

// codenamesFor validates a batch of codes against one kind. Qualifiers
// must agree with each other before they are compared to the kind, so a
// mixed batch reports ErrMixedKinds even when one member would also be
// the wrong kind.
func codenamesFor(codes []string, kind string) ([]string, error) {
	codenames := make([]string, 0, len(codes))
	qualifier := ""
	for _, code := range codes {
		q, codename := splitCode(code)
		if codename == "" || strings.Contains(codename, ".") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
		}
		if q != "" {
			if qualifier != "" && q != qualifier {
				return nil, fmt.Errorf("%w: %q and %q", ErrMixedKinds, qualifier, q)
			}
			qualifier = q
		}
		codenames = append(codenames, codename)
	}
	if qualifier != "" && qualifier != kind {
		return nil, fmt.Errorf("%w: %q used with kind %q", ErrWrongKind, qualifier, kind)
	}
	return codenames, nil
}

// globalCode validates a code for the global paths, which require the
// kind-qualified form.
func globalCode(code string) (kind, codename string, err error) {
	kind, codename = splitCode(code)
	if kind == "" || codename == "" || strings.Contains(codename, ".") {
		return "", "", fmt.Errorf("%w: global permission needs %q form, got %q", ErrInvalidCode, "kind.codename", code)
	}
	return kind, codename, nil
}

// distinctCount returns the number of distinct strings in values.
func distinctCount(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
