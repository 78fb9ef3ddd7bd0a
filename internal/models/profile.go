package models

// AnonymousUserID identifies callers without an account. It is never persisted.
const AnonymousUserID = "anonymous"

const maxFrequentTopics = 10

// UserProfile is the long-term record kept for authenticated users.
type UserProfile struct {
	UserID             string   `json:"user_id"`
	LanguagePreference string   `json:"language_preference"`
	FrequentTopics     []string `json:"frequent_topics"`
	LastActivity       float64  `json:"last_activity"`
}

// Touch records activity in the given language, moving topic (if any) to
// the front of FrequentTopics.
func (p *UserProfile) Touch(language, topic string, at float64) {
	p.LanguagePreference = language
	p.LastActivity = at
	if topic == "" {
		return
	}

	topics := make([]string, 0, len(p.FrequentTopics)+1)
	topics = append(topics, topic)
	for _, t := range p.FrequentTopics {
		if t != topic {
			topics = append(topics, t)
		}
	}
	if len(topics) > maxFrequentTopics {
		topics = topics[:maxFrequentTopics]
	}
	p.FrequentTopics = topics
}

// IsAnonymous reports whether userID denotes a caller without an account.
func IsAnonymous(userID string) bool {
	return userID == "" || userID == AnonymousUserID
}
