package event

import "strings"

// Topic is a dot separated event namespace such as "entity.group".
// Subscription patterns may use "*" for exactly one segment and "**" for
// zero or more segments.
type Topic string

// Topics published by the server.
const (
	TopicGroup      Topic = "entity.group"
	TopicUser       Topic = "entity.user"
	TopicRepository Topic = "entity.repository"
	TopicHook       Topic = "hook"
	TopicAuth       Topic = "auth"

	// TopicAll matches every topic.
	TopicAll Topic = "**"
)

// Matches reports whether the concrete topic t matches pattern.
func (t Topic) Matches(pattern Topic) bool {
	if pattern == t {
		return true
	}
	return matchSegments(strings.Split(string(t), "."), strings.Split(string(pattern), "."))
}

func matchSegments(topic, pattern []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "**":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(topic); i++ {
				if matchSegments(topic[i:], pattern[1:]) {
					return true
				}
			}
			return false
		case "*":
			if len(topic) == 0 {
				return false
			}
		default:
			if len(topic) == 0 || topic[0] != pattern[0] {
				return false
			}
		}
		topic = topic[1:]
		pattern = pattern[1:]
	}
	return len(topic) == 0
}
