package kafkax

import "strings"

// DLTSuffix marks a dead-letter topic.
const DLTSuffix = ".DLT"

// OriginalTopic strips a dead-letter suffix, in any case, from topic.
func OriginalTopic(topic string) string {
	topic = strings.TrimSpace(topic)
	if len(topic) > len(DLTSuffix) && strings.EqualFold(topic[len(topic)-len(DLTSuffix):], DLTSuffix) {
		return topic[:len(topic)-len(DLTSuffix)]
	}
	return topic
}

func DLTTopic(topic string) string {
	return OriginalTopic(topic) + DLTSuffix
}
