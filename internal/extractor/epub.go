package extractor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// EPUBExtractor reads EPUB 2/3 containers.
type EPUBExtractor struct{}

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Titles []string  `xml:"metadata>title"`
	Items  []opfItem `xml:"manifest>item"`
	Spine  []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

type opfItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

func (e *EPUBExtractor) Title(p string) (string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	pkg, _, err := readPackage(&zr.Reader)
	if err != nil {
		return "", err
	}
	for _, t := range pkg.Titles {
		if t = strings.TrimSpace(t); t != "" {
			return t, nil
		}
	}
	return "", nil
}

func (e *EPUBExtractor) Sections(p string) ([]Section, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	pkg, opfDir, err := readPackage(&zr.Reader)
	if err != nil {
		return nil, err
	}
	items := make(map[string]opfItem, len(pkg.Items))
	for _, it := range pkg.Items {
		items[it.ID] = it
	}

	var sections []Section
	for _, ref := range pkg.Spine {
		it, ok := items[ref.IDRef]
		if !ok || !isDocument(it.MediaType) {
			continue
		}
		if isFrontMatter(it.ID) || isFrontMatter(it.Href) {
			continue
		}
		href, err := url.PathUnescape(it.Href)
		if err != nil {
			href = it.Href
		}
		f, err := openZipFile(&zr.Reader, path.Join(opfDir, href))
		if err != nil {
			return nil, err
		}
		name, text, err := documentText(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", href, err)
		}
		if name == "" {
			name = strings.TrimSuffix(path.Base(href), path.Ext(href))
		}
		sections = append(sections, Section{Name: name, Text: text})
	}
	return sections, nil
}

func readPackage(zr *zip.Reader) (*opfPackage, string, error) {
	cf, err := openZipFile(zr, "META-INF/container.xml")
	if err != nil {
		return nil, "", err
	}
	var container epubContainer
	err = xml.NewDecoder(cf).Decode(&container)
	cf.Close()
	if err != nil {
		return nil, "", fmt.Errorf("decode container.xml: %w", err)
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, "", errors.New("container.xml has no rootfile")
	}
	opfPath := container.Rootfiles[0].FullPath

	of, err := openZipFile(zr, opfPath)
	if err != nil {
		return nil, "", err
	}
	defer of.Close()
	var pkg opfPackage
	if err := xml.NewDecoder(of).Decode(&pkg); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", opfPath, err)
	}
	dir := path.Dir(opfPath)
	if dir == "." {
		dir = ""
	}
	return &pkg, dir, nil
}

func openZipFile(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("epub entry not found: %s", name)
}

func isDocument(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}

// documentText returns the document's heading (or <title>) and body text.
func documentText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}
	name := findHeading(doc)
	if name == "" {
		name = findElementText(doc, "title")
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head":
				return
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
				buf.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}
	walk(body)
	return CollapseWhitespace(name), buf.String(), nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findElementText(n *html.Node, tag string) string {
	el := findElement(n, tag)
	if el == nil {
		return ""
	}
	return textContent(el)
}

func findHeading(n *html.Node) string {
	for _, tag := range []string{"h1", "h2", "h3"} {
		if t := findElementText(n, tag); t != "" {
			return t
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}
