package page

import "nexcrm/builder/internal/schema"

// Ids of the starter document.
const (
	RootID           = "root"
	StarterSectionID = "s1"
)

// Starter returns the document a new page begins with: a Body holding one
// Section with a Heading.
func Starter() *Node {
	section, _ := schema.Describe(schema.TypeSection)
	heading, _ := schema.Describe(schema.TypeHeading)
	body, _ := schema.Describe(schema.TypeBody)

	headingProps := Props(heading.DefaultProps())
	headingProps["text"] = "Welcome to your new page"
	headingProps["level"] = float64(1)

	return NewNode(RootID, schema.TypeBody, body.DefaultProps(),
		NewNode(StarterSectionID, schema.TypeSection, section.DefaultProps(),
			NewNode("h1", schema.TypeHeading, headingProps),
		),
	)
}
