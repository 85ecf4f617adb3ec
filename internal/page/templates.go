package page

import (
	"sort"

	"nexcrm/builder/internal/schema"
)

// Template names.
const (
	TemplateHeroSection = "hero-section"
	TemplateTwoColumn   = "two-column"
	TemplateFeatureGrid = "feature-grid"
)

// templates are shared source structures. Their ids are placeholders; the
// editor always inserts them through CloneWithFreshIDs.
var templates = map[string]*Node{
	TemplateHeroSection: NewNode("tpl-hero", schema.TypeSection, Props{"width": "full", "padding": "xl"},
		NewNode("tpl-hero-block", schema.TypeHero, Props{"align": "center"}).WithContent(Props{
			"heading":  "Build something people love",
			"subtitle": "Launch pages in minutes, not weeks.",
			"image":    "",
			"ctaLabel": "Start now",
			"ctaHref":  "#contact",
		}),
	),
	TemplateTwoColumn: NewNode("tpl-2col", schema.TypeGrid, Props{"columns": 2, "gap": "lg"},
		NewNode("tpl-2col-left", schema.TypeContainer, Props{"direction": "column"},
			NewNode("tpl-2col-heading", schema.TypeHeading, Props{"text": "Left column", "level": 3}),
			NewNode("tpl-2col-text", schema.TypeText, Props{"text": "Tell your story here."}),
		),
		NewNode("tpl-2col-right", schema.TypeContainer, Props{"direction": "column"},
			NewNode("tpl-2col-image", schema.TypeImage, Props{"src": "", "alt": "Illustration"}),
		),
	),
	TemplateFeatureGrid: NewNode("tpl-features", schema.TypeGrid, Props{"columns": 3, "gap": "md"},
		NewNode("tpl-feature-1", schema.TypeFeatureCard, nil).WithContent(Props{"icon": "bolt", "title": "Fast", "body": "Pages load in a blink."}),
		NewNode("tpl-feature-2", schema.TypeFeatureCard, nil).WithContent(Props{"icon": "shield", "title": "Secure", "body": "Every change is versioned."}),
		NewNode("tpl-feature-3", schema.TypeFeatureCard, nil).WithContent(Props{"icon": "heart", "title": "Friendly", "body": "Anyone on the team can edit."}),
	),
}

// Template returns the named template structure. The result is shared and
// must be cloned before insertion.
func Template(name string) (*Node, bool) {
	n, ok := templates[name]
	return n, ok
}

// Templates lists template names in sorted order.
func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
