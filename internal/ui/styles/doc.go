// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling of the veda chat widget.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection.

# Colors (colors.go)

  - Indigo - Brand color for the trigger, header and prompt
  - Cyan - Recommendation chips
  - Emerald / Rose - Liked and disliked answers
  - Amber - Notices such as voice input errors

Warnings pair the color with an ASCII indicator:

	styles.RenderWarning("Voice input is not supported")   // "[!] Voice input is not supported"

# Theme (theme.go)

	theme := styles.NewTheme()
	theme.SetSize(width, height)
	bubble := theme.AssistantBubble.Width(theme.BubbleWidth())
*/
package styles
