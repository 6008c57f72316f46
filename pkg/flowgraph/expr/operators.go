package expr

import (
	"fmt"
	"strings"
)

type binaryOp struct {
	token   string
	compare func(left, right any) bool
}

// operators are tried in order; two-character tokens come before their
// one-character prefixes.
var operators = []binaryOp{
	{"==", func(l, r any) bool { return equal(l, r) }},
	{"!=", func(l, r any) bool { return !equal(l, r) }},
	{">=", func(l, r any) bool { return toFloat64(l) >= toFloat64(r) }},
	{"<=", func(l, r any) bool { return toFloat64(l) <= toFloat64(r) }},
	{">", func(l, r any) bool { return toFloat64(l) > toFloat64(r) }},
	{"<", func(l, r any) bool { return toFloat64(l) < toFloat64(r) }},
	{" contains ", func(l, r any) bool {
		return strings.Contains(fmt.Sprint(l), fmt.Sprint(r))
	}},
}

// equal compares numerically when both sides are numbers, else as text.
func equal(l, r any) bool {
	if isNumber(l) && isNumber(r) {
		return toFloat64(l) == toFloat64(r)
	}
	return fmt.Sprint(l) == fmt.Sprint(r)
}
