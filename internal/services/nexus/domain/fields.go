package domain

import (
	"strconv"
	"strings"
)

// BalancePrefix flags metadata fields that carry ledger, leaderboard and
// notification side effects.
const BalancePrefix = "balance"

// IsBalanceField reports whether field is a balance field.
func IsBalanceField(field string) bool {
	return strings.HasPrefix(strings.ToLower(field), BalancePrefix)
}

// NormalizeGroup trims group and substitutes DefaultGroup for blanks.
func NormalizeGroup(group string) string {
	group = strings.TrimSpace(group)
	if group == "" {
		return DefaultGroup
	}
	return group
}

// ResolveField scopes a bare field name to a group: "balance" in "lobby"
// is stored as "balance_lobby".
func ResolveField(field, group string) string {
	return strings.TrimSpace(field) + "_" + NormalizeGroup(group)
}

// FormatAmount renders a numeric value the way stored fields are written.
func FormatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
