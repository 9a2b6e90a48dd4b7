package naming

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	prefixPattern  = regexp.MustCompile(`^[a-z]{2,8}$`)
	unsafePattern  = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedUnders = regexp.MustCompile(`_{2,}`)
)

// reservedColumns are column names the platform provisions on every table.
// A user attribute with one of these names must be qualified with its entity
// name or the create call collides with the built-in column.
var reservedColumns = map[string]struct{}{
	"name":          {},
	"id":            {},
	"createdon":     {},
	"createdby":     {},
	"modifiedon":    {},
	"modifiedby":    {},
	"ownerid":       {},
	"owninguser":    {},
	"owningteam":    {},
	"statecode":     {},
	"statuscode":    {},
	"versionnumber": {},
	"description":   {},
}

// ValidatePrefix ensures a publisher customization prefix is 2-8 lowercase letters.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid publisher prefix %q: must match ^[a-z]{2,8}$", prefix)
	}
	return nil
}

// Safe converts an arbitrary display name into a lowercase identifier the
// platform accepts as part of a schema name.
func Safe(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("name is required")
	}

	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = unsafePattern.ReplaceAllString(normalized, "")
	normalized = repeatedUnders.ReplaceAllString(normalized, "_")
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}

	return normalized, nil
}

// MustSafe is Safe for inputs already validated upstream; it panics on empty results.
func MustSafe(name string) string {
	safe, err := Safe(name)
	if err != nil {
		panic(err)
	}
	return safe
}

// LogicalName derives the prefixed logical name of a custom table or column.
func LogicalName(prefix, name string) (string, error) {
	safe, err := Safe(name)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(safe, prefix+"_") {
		// Already qualified; do not double-prefix.
		return safe, nil
	}
	return prefix + "_" + safe, nil
}

// IsReservedColumn reports whether the platform already provisions a column with this name.
func IsReservedColumn(name string) bool {
	_, ok := reservedColumns[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ColumnSchemaName derives the schema name of an attribute. Reserved words are
// qualified with the entity name so they never collide with built-in columns.
func ColumnSchemaName(prefix, entityName, attributeName string) (string, error) {
	safeAttr, err := Safe(attributeName)
	if err != nil {
		return "", err
	}
	if IsReservedColumn(safeAttr) {
		safeEntity, err := Safe(entityName)
		if err != nil {
			return "", err
		}
		safeAttr = safeEntity + "_" + safeAttr
	}
	return prefix + "_" + safeAttr, nil
}

// RelationshipSchemaName derives the positional schema name of a one-to-many
// relationship: prefix_from_to, lowercased. The same derivation runs at
// deployment and at rollback so the delete targets the created name.
func RelationshipSchemaName(prefix, fromEntity, toEntity string) (string, error) {
	safeFrom, err := Safe(fromEntity)
	if err != nil {
		return "", fmt.Errorf("relationship source: %w", err)
	}
	safeTo, err := Safe(toEntity)
	if err != nil {
		return "", fmt.Errorf("relationship target: %w", err)
	}
	return strings.ToLower(prefix + "_" + safeFrom + "_" + safeTo), nil
}
