package extension

import "strings"

// DefaultPrefix marks revealed extensions.
const DefaultPrefix = "Ext_"

// Filter decides whether the extension name in package pkg is revealed.
type Filter func(pkg, name string) bool

// PrefixFilter reveals names starting with prefix.
func PrefixFilter(prefix string) Filter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return func(_, name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}
