package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// MaxPackageSize bounds the uncompressed size of a package.
const MaxPackageSize = 64 << 20

var ErrNoManifest = errors.New("imsmanifest.xml not found")

type Manifest struct {
	Resources []ManifestResource
}

type ManifestResource struct {
	Identifier string
	Href       string
	Type       string
	Files      []string
}

type imsManifest struct {
	XMLName   xml.Name      `xml:"manifest"`
	Resources []imsResource `xml:"resources>resource"`
}
type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Href       string    `xml:"href,attr"`
	Type       string    `xml:"type,attr"`
	Files      []imsFile `xml:"file"`
}
type imsFile struct {
	Href string `xml:"href,attr"`
}

// Package is a QTI content package held in memory.
type Package struct {
	Manifest Manifest
	ItemRefs []string
	files    map[string][]byte
}

// Open reads a zipped package.
func Open(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("qti: %w", err)
	}
	p := &Package{files: map[string][]byte{}}
	var total int64
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.TrimPrefix(f.Name, "/"))
		if strings.HasPrefix(name, "../") || name == ".." {
			return nil, fmt.Errorf("qti: illegal path %q", f.Name)
		}
		total += int64(f.UncompressedSize64)
		if total > MaxPackageSize {
			return nil, fmt.Errorf("qti: package exceeds %d bytes", MaxPackageSize)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(io.LimitReader(rc, MaxPackageSize))
		rc.Close()
		if err != nil {
			return nil, err
		}
		p.files[name] = b
	}
	if err := p.parseManifest(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Package) parseManifest() error {
	var raw []byte
	for _, name := range []string{"imsmanifest.xml", "manifest.xml"} {
		if b, ok := p.files[name]; ok {
			raw = b
			break
		}
	}
	if raw == nil {
		return ErrNoManifest
	}
	var mf imsManifest
	if err := xml.Unmarshal(raw, &mf); err != nil {
		return fmt.Errorf("qti manifest: %w", err)
	}
	for _, r := range mf.Resources {
		res := ManifestResource{
			Identifier: r.Identifier,
			Href:       r.Href,
			Type:       r.Type,
		}
		for _, f := range r.Files {
			res.Files = append(res.Files, f.Href)
		}
		p.Manifest.Resources = append(p.Manifest.Resources, res)
		href := strings.ToLower(r.Href)
		if strings.HasSuffix(href, ".xml") && !strings.Contains(href, "manifest") &&
			(r.Type == "" || strings.Contains(strings.ToLower(r.Type), "item")) {
			p.ItemRefs = append(p.ItemRefs, path.Clean(r.Href))
		}
	}
	return nil
}

// File returns the raw bytes of a file inside the package.
func (p *Package) File(name string) ([]byte, bool) {
	b, ok := p.files[path.Clean(name)]
	return b, ok
}

// Media lists non-XML files, typically images referenced from prompts.
func (p *Package) Media() map[string][]byte {
	out := map[string][]byte{}
	for name, b := range p.files {
		if !strings.HasSuffix(strings.ToLower(name), ".xml") {
			out[name] = b
		}
	}
	return out
}

// Items parses every item referenced by the manifest, in manifest order.
func (p *Package) Items() ([]ParsedItem, error) {
	out := make([]ParsedItem, 0, len(p.ItemRefs))
	for _, ref := range p.ItemRefs {
		b, ok := p.files[ref]
		if !ok {
			return nil, fmt.Errorf("qti: item %s missing from package", ref)
		}
		it, err := ParseItem(b)
		if err != nil {
			return nil, fmt.Errorf("qti: item %s: %w", ref, err)
		}
		it.Href = ref
		out = append(out, it)
	}
	return out, nil
}
