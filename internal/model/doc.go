// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation state shared by the chat session
// client, the widget and the history store.
//
// # Key Types
//
//   - Message: one user or assistant turn, with optional recommendations and
//     feedback
//   - Conversation: the ordered message list, the typing flag and the backend
//     session id. Every mutation is keyed by message id and is a no-op for ids
//     that no longer exist, so late events from a superseded stream are
//     harmless.
//
// # Usage
//
//	conv := model.NewConversation(model.Greeting(time.Now()))
//	user := conv.AppendUserMessage("What is the pricing?")
//	id := model.NewID()
//	conv.OpenAssistantMessage(id, "LeadQ offers")
//	conv.UpdateAssistantContent(id, "LeadQ offers three pricing tiers")
package model
