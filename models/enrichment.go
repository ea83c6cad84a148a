package models

import "time"

// DescriptionInsights is the qualitative signal set the enrichment worker
// extracts from a listing's free-text description.
type DescriptionInsights struct {
	ListingID  string    `json:"listing_id" db:"imovel_id"`
	Condition  int       `json:"condition" db:"estado_conservacao"`   // 1-5 rating
	UrgentSale bool      `json:"urgent_sale" db:"venda_urgente"`      // seller signals urgency
	Potential  string    `json:"potential" db:"potencial_investimento"`
	AnalyzedAt time.Time `json:"analyzed_at" db:"analisado_em"`
}
