package core

import "strings"

// Matcher decides whether a subscription filter covers a concrete topic.
type Matcher interface {
	Match(filter, topic string) bool
}

// DefaultMatcher matches dot-separated topics. "*" stands for exactly one
// level and "#" for any number of levels, including none:
//
//	"sensors.*"      matches "sensors.temp"     but not "sensors.a.temp"
//	"sensors.#"      matches "sensors" and "sensors.a.temp"
//	"sensors.#.temp" matches "sensors.temp" and "sensors.a.b.temp"
type DefaultMatcher struct{}

func (DefaultMatcher) Match(filter, topic string) bool {
	return matchLevels(strings.Split(filter, "."), strings.Split(topic, "."))
}

func matchLevels(filter, topic []string) bool {
	for len(filter) > 0 {
		head := filter[0]
		if head == "#" {
			rest := filter[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(topic); i++ {
				if matchLevels(rest, topic[i:]) {
					return true
				}
			}
			return false
		}
		if len(topic) == 0 {
			return false
		}
		if head != "*" && head != topic[0] {
			return false
		}
		filter, topic = filter[1:], topic[1:]
	}
	return len(topic) == 0
}
