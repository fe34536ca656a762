// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"strings"
)

// ============================================================================
// KNOWLEDGE BASE
// ============================================================================

// Topic is one canned answer selected by keyword.
type Topic struct {
	Name     string
	Keywords []string
	Answer   string
	Links    []string
}

// Answer is the reply chosen for a message.
type Answer struct {
	Topic           string
	Text            string
	Recommendations []string
}

// Topic names that are not knowledge base entries.
const (
	TopicGreeting = "greeting"
	TopicFallback = "fallback"
)

// KnowledgeBase is an ordered list of topics. The first topic with a keyword
// contained in the lowercased message wins.
type KnowledgeBase []Topic

// DefaultKnowledgeBase returns the product answers served by the dev backend.
func DefaultKnowledgeBase() KnowledgeBase {
	return KnowledgeBase{
		{
			Name:     "pricing",
			Keywords: []string{"price", "cost", "plan", "subscription", "bill"},
			Answer: "LeadQ offers three pricing tiers:\n" +
				"- **Starter**: $29/mo for basic lead scoring and email outreach.\n" +
				"- **Professional**: $99/mo for advanced analytics, CRM integration, and 3 users.\n" +
				"- **Enterprise**: Custom pricing for unlimited users and dedicated support.",
			Links: []string{"View Pricing Plans", "Compare Features"},
		},
		{
			Name:     "features",
			Keywords: []string{"feature", "do", "capability", "function"},
			Answer: "LeadQ provides a suite of sales intelligence tools:\n" +
				"- **AI Lead Scoring**: Automatically rank leads based on conversion probability.\n" +
				"- **Automated Outreach**: Personalized email sequences driven by AI.\n" +
				"- **CRM Sync**: Seamless integration with Salesforce, HubSpot, and Pipedrive.\n" +
				"- **Analytics Dashboard**: Real-time insights into your funnel performance.",
			Links: []string{"Explore Features", "Request Demo"},
		},
		{
			Name:     "support",
			Keywords: []string{"help", "support", "contact", "issue", "bug", "ticket"},
			Answer: "Our support team is available 24/7. You can:\n" +
				"- Email us at **support@leadq.ai**\n" +
				"- Submit a ticket via the **Help & Support** tab in settings.\n" +
				"- Chat with me (Veda) for immediate assistance!",
			Links: []string{"Submit Ticket", "Read FAQs"},
		},
		{
			Name:     "about",
			Keywords: []string{"leadq", "what is", "who are you", "veda"},
			Answer: "I am **Veda**, your AI Sales Assistant. LeadQ is an all-in-one sales " +
				"intelligence platform designed to help teams close more deals with less " +
				"effort using AI-driven insights.",
			Links: []string{"About Us", "Our Mission"},
		},
		{
			Name:     "integration",
			Keywords: []string{"integrate", "connect", "salesforce", "hubspot", "api"},
			Answer: "We support native integrations with major CRMs including Salesforce, " +
				"HubSpot, Zoho, and Pipedrive. You can configure these in the " +
				"**Integrations** section of your dashboard.",
			Links: []string{"Integration Setup", "API Docs"},
		},
	}
}

const (
	greetingAnswer = "Hello! I am Veda, your AI assistant. I can help you with pricing, " +
		"features, integrations, and support. How can I assist you today?"
	fallbackAnswer = "I can definitely help with that. Could you provide a bit more detail? " +
		"I'm an expert on LeadQ's **Pricing**, **Features**, and **Integrations**."
)

var (
	greetingLinks = []string{"Show Pricing", "Explain Features", "Contact Support"}
	fallbackLinks = []string{"Pricing", "Features", "Support", "Integrations"}
)

// Lookup picks the answer for message. Matching is plain substring search,
// so "hi" also matches inside longer words; that mirrors the production
// service the dev backend stands in for.
func (kb KnowledgeBase) Lookup(message string) Answer {
	lower := strings.ToLower(message)

	for _, topic := range kb {
		for _, kw := range topic.Keywords {
			if strings.Contains(lower, kw) {
				return Answer{
					Topic:           topic.Name,
					Text:            topic.Answer,
					Recommendations: append([]string(nil), topic.Links...),
				}
			}
		}
	}

	if strings.Contains(lower, "hello") || strings.Contains(lower, "hi") {
		return Answer{
			Topic:           TopicGreeting,
			Text:            greetingAnswer,
			Recommendations: append([]string(nil), greetingLinks...),
		}
	}

	return Answer{
		Topic:           TopicFallback,
		Text:            fallbackAnswer,
		Recommendations: append([]string(nil), fallbackLinks...),
	}
}

// rephraseLeadIns open a regenerated answer. The choice rotates so repeated
// regenerations read differently.
var rephraseLeadIns = []string{
	"Let me put that another way. ",
	"Here's another take. ",
	"To rephrase: ",
}

// Rephrase prefixes text with the n-th lead-in.
func Rephrase(text string, n int) string {
	if n < 0 {
		n = -n
	}
	return rephraseLeadIns[n%len(rephraseLeadIns)] + text
}

// SplitWords cuts text into word-sized chunks that concatenate back to text.
// Each chunk carries the whitespace that follows its word.
func SplitWords(text string) []string {
	var chunks []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !space {
			chunks = append(chunks, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
