package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"imovelsage/config"
	"imovelsage/models"
	"imovelsage/storage"
)

// EnrichmentWorker reads stored listing descriptions and asks a local
// OpenAI-compatible inference endpoint to score them. Results land in
// imoveis_ai_data, one row per listing, so a listing is analyzed once.
type EnrichmentWorker struct {
	store      *storage.PostgresStore
	httpClient *http.Client
	endpoint   string
	model      string
	triggerCh  chan struct{}
}

func NewEnrichmentWorker(store *storage.PostgresStore, client *http.Client, cfg config.EnrichConfig) *EnrichmentWorker {
	return &EnrichmentWorker{
		store:      store,
		httpClient: client,
		endpoint:   cfg.URL,
		model:      cfg.Model,
		triggerCh:  make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *EnrichmentWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the enrichment worker loop
func (w *EnrichmentWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Enrichment worker stopping")
			return
		case <-w.triggerCh:
			log.Println("Enrichment worker triggered manually")
			w.processBatch(ctx, batchSize)
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *EnrichmentWorker) processBatch(ctx context.Context, batchSize int) {
	listings, err := w.store.GetUnanalyzedListings(ctx, batchSize)
	if err != nil {
		log.Printf("Enrichment: query error: %v", err)
		return
	}
	if len(listings) == 0 {
		return
	}

	log.Printf("Enrichment: processing %d listings", len(listings))
	start := time.Now()
	analyzed := 0

	for _, l := range listings {
		if ctx.Err() != nil {
			return
		}

		insights, err := w.Analyze(ctx, l.ID, l.Description)
		if err != nil {
			log.Printf("Enrichment: failed to analyze %s: %v", l.ID, err)
			continue
		}

		if err := w.store.UpsertInsights(ctx, insights); err != nil {
			log.Printf("Enrichment: failed to store insights for %s: %v", l.ID, err)
			continue
		}
		analyzed++
	}

	log.Printf("Enrichment: batch done, %d/%d analyzed in %s", analyzed, len(listings), time.Since(start).Round(time.Second))
}

const analystPrompt = `You are a Real Estate Analyst. Analyze the Portuguese text and extract JSON.
RULES:
- 'estado' (Int 1-5): 1=Ruin/Demolish, 2=Renovation Needed, 3=Habitable/Used, 4=Good, 5=New/Luxury. Default to 3.
- 'urgencia' (Bool): true ONLY if debt/bank/urgent/divorce mentioned.
- 'tipo' (String): Summarize opportunity in Portuguese (max 15 words).`

// maxDescriptionLen caps what is sent to the model; beyond this the text is
// boilerplate and only slows inference down.
const maxDescriptionLen = 1200

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type analysisPayload struct {
	Estado   int    `json:"estado"`
	Urgencia bool   `json:"urgencia"`
	Tipo     string `json:"tipo"`
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Analyze sends one description through the model and returns validated
// insights. Model misbehavior degrades to the neutral defaults rather than
// failing the listing.
func (w *EnrichmentWorker) Analyze(ctx context.Context, listingID, description string) (*models.DescriptionInsights, error) {
	text := strings.ReplaceAll(description, "\n", " ")
	text = strings.ReplaceAll(text, `"`, "'")
	if len(text) > maxDescriptionLen {
		// Cut on a rune boundary; Portuguese text is full of multi-byte runes.
		cut := maxDescriptionLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	body, err := json.Marshal(chatRequest{
		Model: w.model,
		Messages: []chatMessage{
			{Role: "system", Content: analystPrompt},
			{Role: "user", Content: "Description: " + text},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference endpoint returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	return parseAnalysis(listingID, cr.Choices[0].Message.Content), nil
}

// parseAnalysis extracts the JSON payload from the model's reply. Small
// models wrap JSON in prose often enough that a regex fallback is needed.
func parseAnalysis(listingID, content string) *models.DescriptionInsights {
	insights := &models.DescriptionInsights{
		ListingID:  listingID,
		Condition:  3,
		UrgentSale: false,
		Potential:  "N/A",
		AnalyzedAt: time.Now(),
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		match := jsonObjectPattern.FindString(content)
		if match == "" {
			return insights
		}
		if err := json.Unmarshal([]byte(match), &payload); err != nil {
			return insights
		}
	}

	if payload.Estado >= 1 && payload.Estado <= 5 {
		insights.Condition = payload.Estado
	}
	insights.UrgentSale = payload.Urgencia
	if payload.Tipo != "" {
		insights.Potential = payload.Tipo
	}
	return insights
}
