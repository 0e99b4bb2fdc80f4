// Package naming turns an IP's place in the inventory into a DNS label:
// it builds a naming context, renders it through a template and normalizes
// the result.
package naming

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

var invalidLabelChars = regexp.MustCompile(`[^A-Za-z0-9-]`)

// Clean replaces every character outside [A-Za-z0-9-] with '-' and strips
// leading and trailing dashes. It never fails; input made only of invalid
// characters yields "".
func Clean(s string) string {
	return strings.Trim(invalidLabelChars.ReplaceAllString(s, "-"), "-")
}

// cleanValue is Clean over any template value. Absent values (nil, nil
// pointers) clean to "".
func cleanValue(v any) string {
	if isAbsent(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return Clean(x)
	case fmt.Stringer:
		return Clean(x.String())
	}
	return Clean(fmt.Sprint(v))
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
