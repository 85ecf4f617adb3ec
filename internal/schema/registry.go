package schema

// Type names.
const (
	TypeBody        = "Body"
	TypeSection     = "Section"
	TypeContainer   = "Container"
	TypeGrid        = "Grid"
	TypeHeading     = "Heading"
	TypeText        = "Text"
	TypeButton      = "Button"
	TypeImage       = "Image"
	TypeHTMLBlock   = "HtmlBlock"
	TypeDynamicList = "DynamicList"
	TypeDivider     = "Divider"
	TypeSpacer      = "Spacer"
	TypeVideo       = "Video"
	TypeHero        = "Hero"
	TypeFeatureCard = "FeatureCard"
	TypeTestimonial = "Testimonial"
)

var (
	alignOptions   = []string{"left", "center", "right"}
	spacingOptions = []string{"none", "sm", "md", "lg", "xl"}
	widthOptions   = []string{"narrow", "normal", "wide", "full"}
)

// styleFields are shared by every type.
var styleFields = []Field{
	{Name: "className", Kind: KindString, Default: ""},
	{Name: "padding", Kind: KindToken, Default: "md", Options: spacingOptions},
}

func fields(own ...Field) []Field {
	out := make([]Field, 0, len(own)+len(styleFields))
	out = append(out, own...)
	return append(out, styleFields...)
}

var registry = map[string]Schema{
	TypeBody: {
		Type:      TypeBody,
		Container: true,
		Fields: fields(
			Field{Name: "background", Kind: KindString, Default: "#ffffff"},
			Field{Name: "fontFamily", Kind: KindString, Default: "Inter, sans-serif"},
		),
	},
	TypeSection: {
		Type:      TypeSection,
		Container: true,
		Fields: fields(
			Field{Name: "background", Kind: KindString, Default: ""},
			Field{Name: "width", Kind: KindToken, Default: "normal", Options: widthOptions},
		),
	},
	TypeContainer: {
		Type:      TypeContainer,
		Container: true,
		Fields: fields(
			Field{Name: "direction", Kind: KindToken, Default: "column", Options: []string{"row", "column"}},
			Field{Name: "gap", Kind: KindToken, Default: "md", Options: spacingOptions},
		),
	},
	TypeGrid: {
		Type:      TypeGrid,
		Container: true,
		Fields: fields(
			Field{Name: "columns", Kind: KindNumber, Default: float64(2)},
			Field{Name: "gap", Kind: KindToken, Default: "md", Options: spacingOptions},
		),
		DefaultChildren: []Child{
			{Type: TypeContainer},
			{Type: TypeContainer},
		},
	},
	TypeHeading: {
		Type: TypeHeading,
		Fields: fields(
			Field{Name: "text", Kind: KindString, Default: "Heading"},
			Field{Name: "level", Kind: KindNumber, Default: float64(2)},
			Field{Name: "align", Kind: KindToken, Default: "left", Options: alignOptions},
		),
	},
	TypeText: {
		Type: TypeText,
		Fields: fields(
			Field{Name: "text", Kind: KindString, Default: "Write something here."},
			Field{Name: "align", Kind: KindToken, Default: "left", Options: alignOptions},
		),
	},
	TypeButton: {
		Type: TypeButton,
		Fields: fields(
			Field{Name: "label", Kind: KindString, Default: "Click me"},
			Field{Name: "href", Kind: KindString, Default: "#"},
			Field{Name: "variant", Kind: KindToken, Default: "primary", Options: []string{"primary", "secondary", "link"}},
			Field{Name: "newTab", Kind: KindBool, Default: false},
		),
	},
	TypeImage: {
		Type: TypeImage,
		Fields: fields(
			Field{Name: "src", Kind: KindString, Default: ""},
			Field{Name: "alt", Kind: KindString, Default: ""},
			Field{Name: "width", Kind: KindNumber},
		),
	},
	TypeHTMLBlock: {
		Type: TypeHTMLBlock,
		Fields: fields(
			Field{Name: "html", Kind: KindString, Default: "<p>Custom HTML</p>"},
		),
	},
	TypeDynamicList: {
		Type: TypeDynamicList,
		Fields: fields(
			Field{Name: "source", Kind: KindToken, Default: "tours", Options: []string{"tours", "clients", "invoices", "posts", "cases"}},
			Field{Name: "limit", Kind: KindNumber, Default: float64(6)},
			Field{Name: "layout", Kind: KindToken, Default: "grid", Options: []string{"grid", "list", "carousel"}},
		),
	},
	TypeDivider: {
		Type: TypeDivider,
		Fields: fields(
			Field{Name: "color", Kind: KindString, Default: "#e5e7eb"},
		),
	},
	TypeSpacer: {
		Type: TypeSpacer,
		Fields: fields(
			Field{Name: "height", Kind: KindNumber, Default: float64(32)},
		),
	},
	TypeVideo: {
		Type: TypeVideo,
		Fields: fields(
			Field{Name: "url", Kind: KindString, Default: ""},
			Field{Name: "autoplay", Kind: KindBool, Default: false},
		),
	},
	TypeHero: {
		Type: TypeHero,
		Fields: fields(
			Field{Name: "align", Kind: KindToken, Default: "center", Options: alignOptions},
		),
		ContentFields: []Field{
			{Name: "heading", Kind: KindString, Default: "Your headline"},
			{Name: "subtitle", Kind: KindString, Default: "A short supporting sentence."},
			{Name: "image", Kind: KindString, Default: ""},
			{Name: "ctaLabel", Kind: KindString, Default: "Get started"},
			{Name: "ctaHref", Kind: KindString, Default: "#"},
		},
	},
	TypeFeatureCard: {
		Type:   TypeFeatureCard,
		Fields: fields(),
		ContentFields: []Field{
			{Name: "icon", Kind: KindString, Default: "star"},
			{Name: "title", Kind: KindString, Default: "Feature"},
			{Name: "body", Kind: KindString, Default: "Describe the feature."},
		},
	},
	TypeTestimonial: {
		Type:   TypeTestimonial,
		Fields: fields(),
		ContentFields: []Field{
			{Name: "quote", Kind: KindString, Default: "It changed how we work."},
			{Name: "author", Kind: KindString, Default: "Happy customer"},
			{Name: "avatar", Kind: KindString, Default: ""},
			{Name: "rating", Kind: KindNumber, Default: float64(5)},
		},
	},
}
