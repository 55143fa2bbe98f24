package router

import (
	"strings"
)

// GroupTargetPrefix addresses every process of a group in a raw target.
const GroupTargetPrefix = "group:"

// Identity is how this process is addressed on the network.
type Identity struct {
	Name  string
	Group string
}

// Accepts reports whether an envelope is addressed to this process: the
// broadcast target, this process's name, or this process's group. All
// comparisons ignore case.
func (id Identity) Accepts(envelope Envelope) bool {
	target := strings.TrimSpace(envelope.Target)
	if strings.EqualFold(target, TargetAll) {
		return true
	}
	if name := strings.TrimSpace(id.Name); name != "" && strings.EqualFold(target, name) {
		return true
	}
	if envelope.Packet == nil {
		return false
	}
	group := strings.TrimSpace(envelope.Packet.TargetGroup)
	return group != "" && strings.EqualFold(group, strings.TrimSpace(id.Group))
}

// ParseTarget turns a caller-facing target into an envelope target and an
// optional target group. "group:<g>" addresses group g, "all" and "*"
// address everyone, anything else names a process.
func ParseTarget(raw string) (target, group string) {
	raw = strings.TrimSpace(raw)
	if len(raw) > len(GroupTargetPrefix) && strings.EqualFold(raw[:len(GroupTargetPrefix)], GroupTargetPrefix) {
		return TargetGroup, strings.TrimSpace(raw[len(GroupTargetPrefix):])
	}
	if raw == "*" || strings.EqualFold(raw, TargetAll) {
		return TargetAll, ""
	}
	return raw, ""
}

// describe renders an envelope target for logs and the journal.
func describe(envelope Envelope) string {
	if envelope.Packet != nil && strings.TrimSpace(envelope.Packet.TargetGroup) != "" {
		return GroupTargetPrefix + strings.TrimSpace(envelope.Packet.TargetGroup)
	}
	return strings.TrimSpace(envelope.Target)
}
