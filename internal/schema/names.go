package schema

import "strings"

// RelationName derives a relationship property name from a foreign key column,
// stripping a trailing "_id"/"Id" suffix and camel-casing the remainder. When
// the column carries no recognizable suffix the referenced table's singular
// form is used instead, so "author_id" -> "author" and "owner" -> referenced
// table name.
func RelationName(fkColumn, referencedTable string) string {
	base := fkColumn
	switch {
	case strings.HasSuffix(base, "_id"):
		base = base[:len(base)-3]
	case strings.HasSuffix(base, "Id"):
		base = base[:len(base)-2]
	default:
		base = Singularize(referencedTable)
	}
	return ToCamelCase(base)
}

// InverseRelationName derives the reverse relationship name on the referenced
// table: the pluralized camel-case form of the owning table's name.
func InverseRelationName(owningTable string) string {
	return ToCamelCase(Pluralize(Singularize(owningTable)))
}

// ToCamelCase converts a snake_case identifier to lowerCamelCase.
func ToCamelCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if first {
			b.WriteString(strings.ToLower(p[:1]) + p[1:])
			first = false
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

// ToPascalCase converts a snake_case identifier to PascalCase. Used for
// finder capability names such as FindByUserId.
func ToPascalCase(s string) string {
	camel := ToCamelCase(s)
	if camel == "" {
		return ""
	}
	return strings.ToUpper(camel[:1]) + camel[1:]
}

// ToSnakeCase converts a camel-case identifier to snake_case, handling
// acronyms (HTTPServer -> http_server, userID -> user_id).
func ToSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// Pluralize applies basic English pluralization rules.
func Pluralize(s string) string {
	switch {
	case s == "":
		return s
	case strings.HasSuffix(s, "s"),
		strings.HasSuffix(s, "x"),
		strings.HasSuffix(s, "z"),
		strings.HasSuffix(s, "ch"),
		strings.HasSuffix(s, "sh"):
		return s + "es"
	case strings.HasSuffix(s, "y") && !hasVowelBefore(s, len(s)-1):
		return s[:len(s)-1] + "ies"
	default:
		return s + "s"
	}
}

// Singularize is the rough inverse of Pluralize. It only needs to be good
// enough for table names produced by common conventions.
func Singularize(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses"),
		strings.HasSuffix(s, "xes"),
		strings.HasSuffix(s, "zes"),
		strings.HasSuffix(s, "ches"),
		strings.HasSuffix(s, "shes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s") && len(s) > 1:
		return s[:len(s)-1]
	default:
		return s
	}
}

func hasVowelBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	return strings.ContainsRune("aeiou", rune(s[i-1]))
}
