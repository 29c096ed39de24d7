package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Record field names.
const (
	FieldSaleType     = "sale_type"
	FieldPrice        = "price"
	FieldViews        = "views"
	FieldDate         = "date"
	FieldElanID       = "elan_id"
	FieldPropertyType = "property_type"
	FieldRooms        = "rooms"
	FieldAreaM2       = "area_m2"
	FieldLandAreaSot  = "land_area_sot"
	FieldFloors       = "floors"
	FieldDescription  = "description"
	FieldFeatures     = "features"
	FieldRegion       = "region"
	FieldAddress      = "address"
	FieldContactName  = "contact_name"
	FieldContactType  = "contact_type"
	FieldPhone        = "phone"
	FieldImages       = "images"
	FieldImageCount   = "image_count"
)

const minDescriptionRunes = 20

var phoneSrc = regexp.MustCompile(`/tel-show/(\d+)`)

// Record parses a listing page. Pages without the listing table yield no record.
func (e *Extractor) Record(page crawler.Page) (crawler.Record, bool) {
	doc, ok := parse(page)
	if !ok {
		return nil, false
	}
	view := doc.Find("table.view").First()
	if view.Length() == 0 {
		return nil, false
	}

	rec := crawler.Record{
		crawler.FieldURL: page.URL,
		crawler.FieldID:  crawler.DeriveRecordID(page.URL),
	}
	setText(rec, FieldSaleType, view.Find("tip").First())
	setText(rec, FieldPrice, view.Find("price").First())
	setText(rec, FieldPropertyType, view.Find("emlak").First())
	e.stats(rec, view)
	e.params(rec, view)
	e.description(rec, view)
	e.address(rec, view)
	setText(rec, FieldContactName, view.Find("div.ad").First())
	setText(rec, FieldContactType, view.Find("div.elvrn").First())
	e.phone(rec, view)

	features := []string{}
	view.Find("div.check").Each(func(_ int, s *goquery.Selection) {
		features = append(features, strippedText(s))
	})
	rec[FieldFeatures] = features

	images := e.images(view)
	rec[FieldImages] = images
	rec[FieldImageCount] = len(images)
	return rec, true
}

func setText(rec crawler.Record, field string, s *goquery.Selection) {
	if s.Length() == 0 {
		return
	}
	rec[field] = strippedText(s)
}

// stats reads the view counter, publication date and site listing number.
func (e *Extractor) stats(rec crawler.Record, view *goquery.Selection) {
	view.Find("titem").Each(func(_ int, item *goquery.Selection) {
		text := item.Text()
		if g := item.Find("g").First(); g.Length() > 0 && strings.Contains(text, "Baxis") {
			setText(rec, FieldViews, g.Find("b").First())
		}
		switch {
		case strings.Contains(text, "Tarix"):
			setText(rec, FieldDate, item.Find("b").First())
		case strings.Contains(text, "Elan"):
			setText(rec, FieldElanID, item.Find("b").First())
		}
	})
}

// params maps the "params" boxes onto rooms, area, land area and floors by
// keyword, then fills whatever is still missing with positionalFallback.
func (e *Extractor) params(rec crawler.Record, view *goquery.Selection) {
	box := view.Find("div.box").First()
	if box.Length() == 0 {
		return
	}
	var values []string
	box.Find("div.params").Each(func(_ int, p *goquery.Selection) {
		b := p.Find("b").First()
		if b.Length() == 0 {
			return
		}
		value := strippedText(b)
		values = append(values, value)

		label := strippedText(p)
		lower := strings.ToLower(label)
		switch {
		case strings.Contains(lower, "otaq"):
			rec[FieldRooms] = value
		case strings.Contains(label, "m2"):
			rec[FieldAreaM2] = value
		case strings.Contains(lower, "sot"):
			rec[FieldLandAreaSot] = value
		case strings.Contains(lower, "mertebeli"):
			rec[FieldFloors] = value
		}
	})
	positionalFallback(rec, values)
}

// positionalSlots is the order the site lists the params boxes in when their
// labels are missing or unrecognized.
var positionalSlots = []string{FieldRooms, FieldAreaM2, FieldLandAreaSot, FieldFloors}

// positionalFallback assigns the i-th param value to the i-th slot for every
// slot keyword matching left empty. It relies only on the site's layout.
func positionalFallback(rec crawler.Record, values []string) {
	for i, field := range positionalSlots {
		if i >= len(values) {
			return
		}
		if _, ok := rec[field]; !ok {
			rec[field] = values[i]
		}
	}
}

func (e *Extractor) description(rec crawler.Record, view *goquery.Selection) {
	var parts []string
	view.Find("div.text").Each(func(_ int, s *goquery.Selection) {
		text := strippedText(s)
		if utf8.RuneCountInString(text) > minDescriptionRunes {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		rec[FieldDescription] = strings.Join(parts, " ")
	}
}

// address collects the blocks that follow an "Ünvan" heading up to the next
// heading. The first block is the region, the rest form the address.
func (e *Extractor) address(rec crawler.Record, view *goquery.Selection) {
	var parts []string
	view.Find("h1").Each(func(_ int, h *goquery.Selection) {
		if !strings.Contains(h.Text(), "nvan") {
			return
		}
		h.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			switch goquery.NodeName(sib) {
			case "h1":
				return false
			case "div":
				if sib.HasClass("params") {
					if b := sib.Find("b").First(); b.Length() > 0 {
						parts = append(parts, strippedText(b))
					}
				} else if sib.HasClass("text") {
					if text := strippedText(sib); text != "" {
						parts = append(parts, text)
					}
				}
			}
			return true
		})
	})
	if len(parts) > 0 {
		rec[FieldRegion] = parts[0]
	}
	if len(parts) > 1 {
		rec[FieldAddress] = strings.Join(parts[1:], ", ")
	}
}

func (e *Extractor) phone(rec crawler.Record, view *goquery.Selection) {
	src, ok := view.Find("div.tel img").First().Attr("src")
	if !ok || src == "" {
		return
	}
	if m := phoneSrc.FindStringSubmatch(src); m != nil {
		rec[FieldPhone] = m[1]
		return
	}
	rec[FieldPhone] = src
}

// images lists gallery links with the main image first.
func (e *Extractor) images(view *goquery.Selection) []string {
	images := []string{}
	view.Find("div.img_div").Each(func(_ int, d *goquery.Selection) {
		if href, ok := d.Find("a").First().Attr("href"); ok && href != "" {
			images = append(images, href)
		}
	})
	src, ok := view.Find("img.imgb").First().Attr("src")
	if !ok || src == "" {
		return images
	}
	main := e.resolve(src)
	for _, img := range images {
		if img == main {
			return images
		}
	}
	return append([]string{main}, images...)
}
