/*
Package expr evaluates small boolean conditions, used for configurable
policy such as which scored evidence is included.

# Syntax

	<expr> := 'not' <expr> | '!' <expr>
	        | <expr> 'and' <expr>
	        | <expr> 'or' <expr>
	        | <value> <op> <value>
	        | <value>

	<op>    := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'
	<value> := 'string' | "string" | number | true | false | null | identifier

An expression is split at its first "and" before any "or" is looked at.
There are no parentheses.
Numbers compare numerically; == falls back to text comparison when either
side is not a number.

# Rules

Compile validates a condition against the variables it may use, so a
typo in a theme file fails when the theme loads:

	rule, err := expr.Compile("total >= 6 and substance > 0",
	    "total", "relevance", "corroboration", "thematic", "substance", "kind")

	ok, err := rule.Match(map[string]any{"total": 7.0, "substance": 1.0, ...})

An identifier that is not a known variable is an *UnknownVariableError.
*/
package expr
