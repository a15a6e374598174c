package services

import (
	"regexp"
	"strings"

	"oee-copilot/pkg/models"
)

// TopicClassifier はユーザーの質問をトピックに分類する戦略です。
// recentAssistantText は直近のアシスタント応答を連結したもの（フォローアップ判定用）。
type TopicClassifier interface {
	Classify(message, recentAssistantText string) models.Topic
}

// topicRule 優先順位つきのキーワード規則
type topicRule struct {
	topic    models.Topic
	keywords []string
}

// 先頭から順に評価し、最初に一致した規則を採用する
var topicRules = []topicRule{
	{models.TopicPareto, []string{"pareto", "cause", "reason"}},
	{models.TopicAvailability, []string{"availability", "uptime"}},
	{models.TopicDowntime, []string{"downtime"}},
	{models.TopicDataQuery, []string{"record", "data", "count", "how many"}},
}

var (
	followUpMarkers = []string{"what about", "how about", "tell me more", "and what", "why is that", "more detail"}
	followUpPronoun = regexp.MustCompile(`\b(it|that|this|they|those|them)\b`)
	leadingWords    = map[string]struct{}{
		"why": {}, "what": {}, "how": {}, "which": {}, "who": {}, "when": {}, "where": {},
		"it": {}, "that": {}, "this": {}, "they": {}, "and": {},
	}
	chartKeywords = []string{"chart", "graph", "plot", "visual", "pareto", "pie", "trend", "show me"}
)

// KeywordClassifier 部分文字列一致による分類器
type KeywordClassifier struct{}

// NewKeywordClassifier creates a keyword based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify はメッセージをトピックに分類します。
// フォローアップと判定された場合は、メッセージと直近の応答を連結したテキストを同じ優先順位で分類します。
func (k *KeywordClassifier) Classify(message, recentAssistantText string) models.Topic {
	if !IsFollowUp(message) || strings.TrimSpace(recentAssistantText) == "" {
		return matchTopic(message)
	}
	return matchTopic(message + " " + recentAssistantText)
}

func matchTopic(text string) models.Topic {
	lower := strings.ToLower(text)
	for _, rule := range topicRules {
		if containsAny(lower, rule.keywords) {
			return rule.topic
		}
	}
	return models.TopicGeneral
}

// IsFollowUp は前のターンに依存する質問かどうかを判定します。
func IsFollowUp(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return false
	}
	if containsAny(lower, followUpMarkers) || followUpPronoun.MatchString(lower) {
		return true
	}

	words := strings.Fields(lower)
	if len(words) > 5 {
		return false
	}
	first := strings.Trim(words[0], "?!.,")
	_, ok := leadingWords[first]
	return ok
}

// WantsChart はメッセージがチャートを要求しているかを返します。
func WantsChart(message string) bool {
	return containsAny(strings.ToLower(message), chartKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
