package export

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"nexcrm/builder/internal/page"
	"nexcrm/builder/internal/schema"
)

// RenderHTML renders a page document to an HTML fragment. Node types the
// registry does not know render as a visible placeholder instead of failing
// the whole page.
func RenderHTML(root *page.Node) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, root)
	return b.String()
}

func renderNode(b *strings.Builder, n *page.Node) {
	var attrs string
	if _, known := schema.Describe(n.Type()); known {
		attrs = classAttr(n)
	}

	switch n.Type() {
	case schema.TypeBody:
		fmt.Fprintf(b, `<main data-id="%s"%s style="%s">`, esc(n.ID()), attrs,
			style("background", str(n, "background"), "font-family", str(n, "fontFamily")))
		renderChildren(b, n)
		b.WriteString("</main>\n")
	case schema.TypeSection:
		fmt.Fprintf(b, `<section data-id="%s"%s data-width="%s" style="%s">`, esc(n.ID()), attrs,
			esc(str(n, "width")), style("background", str(n, "background")))
		renderChildren(b, n)
		b.WriteString("</section>\n")
	case schema.TypeContainer:
		fmt.Fprintf(b, `<div data-id="%s"%s style="display:flex;flex-direction:%s" data-gap="%s">`, esc(n.ID()), attrs,
			esc(str(n, "direction")), esc(str(n, "gap")))
		renderChildren(b, n)
		b.WriteString("</div>\n")
	case schema.TypeGrid:
		columns := int(num(n, "columns"))
		if columns < 1 {
			columns = 1
		}
		fmt.Fprintf(b, `<div data-id="%s"%s style="display:grid;grid-template-columns:repeat(%d,1fr)" data-gap="%s">`, esc(n.ID()), attrs,
			columns, esc(str(n, "gap")))
		renderChildren(b, n)
		b.WriteString("</div>\n")
	case schema.TypeHeading:
		level := int(num(n, "level"))
		if level < 1 || level > 6 {
			level = 2
		}
		fmt.Fprintf(b, `<h%d data-id="%s"%s style="text-align:%s">%s</h%d>`+"\n", level, esc(n.ID()), attrs,
			esc(str(n, "align")), esc(str(n, "text")), level)
	case schema.TypeText:
		fmt.Fprintf(b, `<p data-id="%s"%s style="text-align:%s">%s</p>`+"\n", esc(n.ID()), attrs,
			esc(str(n, "align")), esc(str(n, "text")))
	case schema.TypeButton:
		target := ""
		if flag(n, "newTab") {
			target = ` target="_blank" rel="noopener"`
		}
		fmt.Fprintf(b, `<a data-id="%s"%s href="%s"%s>%s</a>`+"\n", esc(n.ID()), attrs,
			esc(str(n, "href")), target, esc(str(n, "label")))
	case schema.TypeImage:
		width := ""
		if w := num(n, "width"); w > 0 {
			width = fmt.Sprintf(` width="%s"`, strconv.FormatFloat(w, 'f', -1, 64))
		}
		fmt.Fprintf(b, `<img data-id="%s"%s src="%s" alt="%s"%s>`+"\n", esc(n.ID()), attrs,
			esc(str(n, "src")), esc(str(n, "alt")), width)
	case schema.TypeHTMLBlock:
		fmt.Fprintf(b, `<div data-id="%s"%s>%s</div>`+"\n", esc(n.ID()), attrs, str(n, "html"))
	case schema.TypeDynamicList:
		fmt.Fprintf(b, `<div data-id="%s"%s data-source="%s" data-limit="%d" data-layout="%s"></div>`+"\n",
			esc(n.ID()), attrs, esc(str(n, "source")), int(num(n, "limit")), esc(str(n, "layout")))
	case schema.TypeDivider:
		fmt.Fprintf(b, `<hr data-id="%s"%s style="%s">`+"\n", esc(n.ID()), attrs, style("border-color", str(n, "color")))
	case schema.TypeSpacer:
		fmt.Fprintf(b, `<div data-id="%s"%s style="height:%dpx"></div>`+"\n", esc(n.ID()), attrs, int(num(n, "height")))
	case schema.TypeVideo:
		auto := ""
		if flag(n, "autoplay") {
			auto = " autoplay muted"
		}
		fmt.Fprintf(b, `<video data-id="%s"%s src="%s" controls%s></video>`+"\n", esc(n.ID()), attrs, esc(str(n, "url")), auto)
	case schema.TypeHero:
		renderHero(b, n, attrs)
	case schema.TypeFeatureCard:
		fmt.Fprintf(b, `<article data-id="%s"%s><span class="pb-icon" data-icon="%s"></span><h3>%s</h3><p>%s</p></article>`+"\n",
			esc(n.ID()), attrs, esc(content(n, "icon")), esc(content(n, "title")), esc(content(n, "body")))
	case schema.TypeTestimonial:
		renderTestimonial(b, n, attrs)
	default:
		fmt.Fprintf(b, `<div class="pb-unknown" data-type="%s">Unknown block: %s</div>`+"\n", esc(n.Type()), esc(n.Type()))
	}
}

func renderChildren(b *strings.Builder, n *page.Node) {
	for i := 0; i < n.Len(); i++ {
		renderNode(b, n.Child(i))
	}
}

func renderHero(b *strings.Builder, n *page.Node, attrs string) {
	fmt.Fprintf(b, `<header data-id="%s"%s style="text-align:%s">`, esc(n.ID()), attrs, esc(str(n, "align")))
	if img := content(n, "image"); img != "" {
		fmt.Fprintf(b, `<img src="%s" alt="">`, esc(img))
	}
	fmt.Fprintf(b, "<h1>%s</h1>", esc(content(n, "heading")))
	if sub := content(n, "subtitle"); sub != "" {
		fmt.Fprintf(b, "<p>%s</p>", esc(sub))
	}
	if label := content(n, "ctaLabel"); label != "" {
		fmt.Fprintf(b, `<a class="pb-button pb-button-primary" href="%s">%s</a>`, esc(content(n, "ctaHref")), esc(label))
	}
	b.WriteString("</header>\n")
}

func renderTestimonial(b *strings.Builder, n *page.Node, attrs string) {
	fmt.Fprintf(b, `<figure data-id="%s"%s>`, esc(n.ID()), attrs)
	fmt.Fprintf(b, "<blockquote>%s</blockquote><figcaption>", esc(content(n, "quote")))
	if avatar := content(n, "avatar"); avatar != "" {
		fmt.Fprintf(b, `<img src="%s" alt="">`, esc(avatar))
	}
	b.WriteString(esc(content(n, "author")))
	if v, ok := n.Content()["rating"].(float64); ok && v > 0 {
		stars := int(v)
		if stars > 5 {
			stars = 5
		}
		fmt.Fprintf(b, ` <span class="pb-rating" aria-label="%d of 5">%s</span>`, stars, strings.Repeat("★", stars))
	}
	b.WriteString("</figcaption></figure>\n")
}

func classAttr(n *page.Node) string {
	classes := []string{"pb-" + strings.ToLower(n.Type())}
	if n.Type() == schema.TypeButton {
		classes = append(classes, "pb-button-"+str(n, "variant"))
	}
	if pad := str(n, "padding"); pad != "" {
		classes = append(classes, "pb-pad-"+pad)
	}
	if extra := strings.TrimSpace(str(n, "className")); extra != "" {
		classes = append(classes, extra)
	}
	return fmt.Sprintf(` class="%s"`, esc(strings.Join(classes, " ")))
}

func style(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		parts = append(parts, pairs[i]+":"+pairs[i+1])
	}
	return esc(strings.Join(parts, ";"))
}

func str(n *page.Node, key string) string {
	v, _ := n.Prop(key)
	s, _ := v.(string)
	return s
}

func num(n *page.Node, key string) float64 {
	v, _ := n.Prop(key)
	f, _ := v.(float64)
	return f
}

func flag(n *page.Node, key string) bool {
	v, _ := n.Prop(key)
	b, _ := v.(bool)
	return b
}

func content(n *page.Node, key string) string {
	s, _ := n.Content()[key].(string)
	return s
}

func esc(s string) string {
	return html.EscapeString(s)
}
