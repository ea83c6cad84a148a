package crawler

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"imovelsage/models"
)

var (
	// Canonical listing URLs end in a stable "digits-digits" segment.
	listingIDPattern = regexp.MustCompile(`/(\d+-\d+)$`)
	nonDigits        = regexp.MustCompile(`[^\d]`)
	// Transaction-and-type token embedded in the listing path.
	subtypePattern = regexp.MustCompile(`(?:venda|arrendamento)-([a-zá-ú]+)`)
)

// subtypeNames is the fixed vocabulary of property subtypes the site embeds
// in listing URLs. Anything else classifies as "Outro".
var subtypeNames = map[string]string{
	"apartamento": "Apartamento",
	"moradia":     "Moradia",
	"terreno":     "Terreno",
	"loja":        "Loja",
	"escritorio":  "Escritório",
	"escritório":  "Escritório",
	"predio":      "Prédio",
	"prédio":      "Prédio",
	"quinta":      "Quinta",
	"armazem":     "Armazém",
	"armazém":     "Armazém",
	"garagem":     "Garagem",
}

// CleanInt strips every non-digit rune before parsing. The site interleaves
// thousands separators, currency symbols and unit suffixes, so a plain
// strconv parse would fail on almost every value.
func CleanInt(raw string) int {
	clean := nonDigits.ReplaceAllString(raw, "")
	if clean == "" {
		return 0
	}
	n, err := strconv.Atoi(clean)
	if err != nil {
		return 0
	}
	return n
}

// CleanFloat is CleanInt for decimal columns. Decimal parts are dropped with
// the separators; the source only ever renders whole euros and square meters.
func CleanFloat(raw string) float64 {
	return float64(CleanInt(raw))
}

// ListingID derives the stable identifier from a canonical listing link.
// When the trailing pattern is missing the full link is returned with
// stable=false; such ids break upsert stability if the URL ever changes.
func ListingID(link string) (id string, stable bool) {
	if m := listingIDPattern.FindStringSubmatch(link); m != nil {
		return m[1], true
	}
	return link, false
}

// Subtype classifies the property from the transaction-and-type token in its
// link ("…/venda-apartamento-t2-…"). Unrecognized tokens land in the generic
// bucket rather than erroring.
func Subtype(link string) string {
	m := subtypePattern.FindStringSubmatch(strings.ToLower(link))
	if m == nil {
		return models.Unknown
	}
	if name, ok := subtypeNames[m[1]]; ok {
		return name
	}
	return "Outro"
}

// ExtractSummaries pulls one ListingSummary per card from a parsed index
// page. Missing fields resolve to defaults; a card without a link is dropped.
func ExtractSummaries(doc *goquery.Document, baseURL string, pageNumber int) []models.ListingSummary {
	var summaries []models.ListingSummary

	doc.Find(`a[data-id="listing-card-link"]`).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Attr("href")
		if !ok || href == "" {
			return
		}

		link := href
		if !strings.HasPrefix(link, "http") {
			link = baseURL + link
		}

		id, stable := ListingID(link)

		summaries = append(summaries, models.ListingSummary{
			ID:         id,
			Link:       link,
			Price:      CleanFloat(findText(card, "span", "€")),
			AreaM2:     CleanInt(findText(card, "b", "m²")),
			Locality:   cardLocality(card),
			PageNumber: pageNumber,
			UnstableID: !stable,
		})
	})

	return summaries
}

// detailRule locates one labeled value on a detail page. The site renders
// technical fields as <span>label</span><span>value</span> pairs.
type detailRule struct {
	field  string
	labels []string // tried in order
}

// detailRules is the full set of labeled detail-page fields, one rule per
// record column.
var detailRules = []detailRule{
	{"gross_private_area", []string{"Área Bruta Privativa"}},
	{"gross_area", []string{"Área Bruta"}},
	{"usable_area", []string{"Área Útil"}},
	{"lot_area", []string{"Área Total do Lote"}},
	{"build_year", []string{"Ano de Construção"}},
	{"bedrooms", []string{"Quartos"}},
	{"bathrooms", []string{"WC", "Casas de banho"}},
	{"parking", []string{"Estacionamento"}},
	{"elevator", []string{"Elevador"}},
}

// ExtractDetail merges a parsed detail page with the summary that triggered
// its fetch into a complete record. It never fails: absent fields keep their
// defaults so downstream consumers always see a full shape.
func ExtractDetail(doc *goquery.Document, summary models.ListingSummary, now time.Time) *models.ListingRecord {
	rec := &models.ListingRecord{
		ID:                summary.ID,
		Link:              summary.Link,
		LastCrawled:       now,
		PublishedAt:       now,
		Price:             summary.Price,
		Locality:          summary.Locality,
		Subtype:           Subtype(summary.Link),
		GrossAreaM2:       float64(summary.AreaM2),
		UnstableID:        summary.UnstableID,
		ListingPageNumber: summary.PageNumber,
	}

	values := make(map[string]string, len(detailRules))
	for _, rule := range detailRules {
		for _, label := range rule.labels {
			if v := labeledValue(doc, label); v != "" {
				values[rule.field] = v
				break
			}
		}
	}

	// Area precedence: gross private area wins over gross area; if neither
	// is present the index-page estimate stands. This mirrors the site's own
	// field hierarchy and must not be reordered.
	if v, ok := values["gross_private_area"]; ok {
		rec.GrossAreaM2 = CleanFloat(v)
	} else if v, ok := values["gross_area"]; ok {
		rec.GrossAreaM2 = CleanFloat(v)
	}

	if v, ok := values["usable_area"]; ok {
		rec.UsableAreaM2 = floatPtr(CleanFloat(v))
	}
	if v, ok := values["lot_area"]; ok {
		rec.LotAreaM2 = floatPtr(CleanFloat(v))
	}
	if v, ok := values["build_year"]; ok {
		rec.BuildYear = intPtr(CleanInt(v))
	}
	if v, ok := values["bedrooms"]; ok {
		rec.Bedrooms = intPtr(CleanInt(v))
	}
	if v, ok := values["bathrooms"]; ok {
		rec.Bathrooms = intPtr(CleanInt(v))
	}
	if v, ok := values["parking"]; ok {
		rec.Parking = strPtr(v)
	}
	if v, ok := values["elevator"]; ok {
		rec.Elevator = strPtr(v)
	}

	if desc := strings.Join(strings.Fields(doc.Find("#description .custom-description").Text()), " "); desc != "" {
		rec.Description = strPtr(desc)
	}

	if cert := energyCertificate(doc); cert != "" {
		rec.EnergyCertificate = strPtr(cert)
	}

	return rec
}

// labeledValue resolves a <span>label</span><span>value</span> pair.
func labeledValue(doc *goquery.Document, label string) string {
	var value string
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), label) {
			return true
		}
		if v := strings.TrimSpace(s.NextFiltered("span").Text()); v != "" {
			value = v
			return false
		}
		return true
	})
	return value
}

// energyCertificate reads the rating from the img alt next to the
// "Eficiência energética" label.
func energyCertificate(doc *goquery.Document) string {
	var alt string
	doc.Find("span, div, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), "Eficiência energética") || s.Children().Length() > 0 {
			return true
		}
		if a, ok := s.NextAll().Find("img").First().Attr("alt"); ok && a != "" {
			alt = strings.TrimSpace(a)
			return false
		}
		return true
	})
	return alt
}

// findText returns the text of the first matching element containing marker.
func findText(sel *goquery.Selection, tag, marker string) string {
	var text string
	sel.Find(tag).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), marker) {
			text = s.Text()
			return false
		}
		return true
	})
	return text
}

func cardLocality(card *goquery.Selection) string {
	loc := strings.TrimSpace(card.Find("p.text-ellipsis").First().Text())
	if loc == "" {
		return models.Unknown
	}
	return strings.TrimSpace(strings.SplitN(loc, ",", 2)[0])
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
