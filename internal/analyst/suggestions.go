package analyst

import "strings"

const maxFollowUps = 4

var starterQuestions = []string{
	"What is the total revenue?",
	"Show revenue by country",
	"Top 10 customers by revenue",
	"Monthly revenue trend",
}

// StarterQuestions returns the canned questions shown before the first ask.
func StarterQuestions() []string {
	return append([]string(nil), starterQuestions...)
}

// FollowUps suggests up to four related questions, skipping topics the
// question already covers.
func FollowUps(question string) []string {
	q := strings.ToLower(question)
	var out []string
	add := func(topic, suggestion string) {
		if !strings.Contains(q, topic) {
			out = append(out, suggestion)
		}
	}

	if strings.Contains(q, "revenue") {
		add("country", "Revenue by country")
		add("industry", "Revenue by industry")
		add("media", "Revenue by media type")
		add("month", "Monthly revenue trend")
	} else {
		out = append(out, "Total revenue", "Top 10 customers")
	}
	add("customer", "Top customers by revenue")
	add("photographer", "Top photographers")
	add("status", "Orders by status")

	if len(out) > maxFollowUps {
		out = out[:maxFollowUps]
	}
	return out
}
