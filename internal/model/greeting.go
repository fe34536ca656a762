// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// Recommendations offered with the greeting of a fresh conversation.
var GreetingRecommendations = []string{
	"What is the pricing?",
	"How does Lead Scoring work?",
	"Connect my CRM",
}

// Greeting returns the assistant message that opens every new conversation,
// worded for the local time of day.
func Greeting(now time.Time) Message {
	msg := NewAssistantMessage("", TimeOfDayGreeting(now)+" I'm your AI assistant. How can I help you today?")
	msg.Recommendations = append([]string(nil), GreetingRecommendations...)
	msg.Timestamp = now
	return msg
}

// TimeOfDayGreeting returns the salutation for the hour of now. Morning ends
// at noon and afternoon at 18:00.
func TimeOfDayGreeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Good morning!"
	case h < 18:
		return "Good afternoon!"
	default:
		return "Good evening!"
	}
}
