package simulator

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Persona describes one assistive-technology user profile. The prompt frames
// the provider as that user walking through the page.
type Persona struct {
	Key         string `json:"-"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// LoadPersonas reads a persona catalog from path, falling back to the
// built-in catalog when the file is missing, empty, or malformed.
func LoadPersonas(path string, logger *logrus.Logger) map[string]Persona {
	if logger == nil {
		logger = logrus.New()
	}
	if path == "" {
		return builtinPersonas()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Warn("Failed to read persona catalog, using built-ins")
		}
		return builtinPersonas()
	}

	var parsed map[string]Persona
	if err := json.Unmarshal(data, &parsed); err != nil || len(parsed) == 0 {
		logger.WithError(err).Warn("Persona catalog is empty or malformed, using built-ins")
		return builtinPersonas()
	}
	for key, persona := range parsed {
		persona.Key = key
		if strings.TrimSpace(persona.Prompt) == "" {
			logger.WithField("persona", key).Warn("Persona has no prompt, dropping")
			delete(parsed, key)
			continue
		}
		parsed[key] = persona
	}
	if len(parsed) == 0 {
		return builtinPersonas()
	}
	return parsed
}

// PersonaKeys returns catalog keys in stable order for CLI listings.
func PersonaKeys(personas map[string]Persona) []string {
	keys := make([]string, 0, len(personas))
	for key := range personas {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func builtinPersonas() map[string]Persona {
	personas := map[string]Persona{
		"blind_screen_reader": {
			Label:       "Blind user with screen reader",
			Description: "Navigates entirely using keyboard and screen reader software.",
			Prompt: `You are simulating a user who is blind and relies fully on screen reader software to navigate the web. This user cannot see visual layout, images, or content. They use keyboard shortcuts and linear audio output to understand the structure of the page.

Pay special attention to:
- Page title, landmarks, heading structure
- Missing or non-descriptive alt text on images
- Buttons or links without labels
- Dynamic content that may not be announced
- Reading order and tab sequence

Highlight the biggest frustrations and recommend improvements to make this experience smoother for screen reader users.`,
		},
		"low_vision_elderly": {
			Label:       "Low-vision elderly person",
			Description: "Struggles with contrast, font size, and visual layout.",
			Prompt: `You are simulating an elderly user with low vision and declining visual acuity. This person struggles with small font sizes, low color contrast, dense content, and poor spacing. They may zoom in to read, use a magnifier, or have trouble tracking elements.

Evaluate:
- Text readability (size, contrast, spacing)
- Link and button visibility
- Zoom behavior (does layout break?)
- Visual clarity and clutter

Provide feedback on how readable and usable the page is for someone with reduced visual perception.`,
		},
		"motor_impaired_keyboard": {
			Label:       "Motor-impaired keyboard-only user",
			Description: "Cannot use a mouse, relies on keyboard for navigation.",
			Prompt: `You are simulating a user with a motor impairment who cannot use a mouse and relies entirely on keyboard navigation. They may use assistive devices like sip-and-puff or single-switch input.

Assess the experience based on:
- Tab order consistency
- Presence of visible focus indicators
- Availability of skip links
- Whether all interactive elements (forms, menus, modals) are accessible by keyboard
- Any keyboard traps or broken tab loops

Report on how frustrating or seamless the experience would be for a keyboard-only user.`,
		},
		"cognitive_load": {
			Label:       "User with cognitive or attention difficulties",
			Description: "Overwhelmed by dense layouts, jargon, and moving content.",
			Prompt: `You are simulating a user with cognitive and attention difficulties. Dense walls of text, inconsistent navigation, unexpected motion, jargon, and time-limited interactions quickly overwhelm this user.

Evaluate:
- Plain-language clarity of headings, labels, and instructions
- Consistency and predictability of navigation
- Auto-playing or moving content that breaks concentration
- Error messages: are they understandable and recoverable?
- Forms: are steps short, labeled, and forgiving?

Describe where the page loses this user and how to reduce its cognitive load.`,
		},
	}
	for key, persona := range personas {
		persona.Key = key
		personas[key] = persona
	}
	return personas
}

// Describe renders a short catalog listing.
func Describe(personas map[string]Persona) string {
	var b strings.Builder
	for _, key := range PersonaKeys(personas) {
		persona := personas[key]
		fmt.Fprintf(&b, "%-26s %s: %s\n", key, persona.Label, persona.Description)
	}
	return b.String()
}
