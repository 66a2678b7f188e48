package simulator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nexassist/a11yscan/internal/fetch"
	"github.com/nexassist/a11yscan/pkg/models"
)

// simulationHTMLLimit caps how much rendered HTML a single persona pass may
// narrate before the page is chunked.
const (
	simulationHTMLLimit = 60000
	simulationChunkSize = 3000
)

// PageFetcher renders the target page for the simulation; the simulator never
// consumes ScanResults, it fetches independently.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*models.DomSnapshot, error)
}

// Narrator sends a narrative payload down the provider chain.
type Narrator interface {
	Analyze(ctx context.Context, payload *models.AnalysisPayload) (*models.RawProviderOutput, *models.AnalysisError)
}

// Experience is one persona's narrated walkthrough of the target page.
type Experience struct {
	Persona   Persona `json:"persona"`
	URL       string  `json:"url"`
	PageTitle string  `json:"page_title"`
	Narrative string  `json:"narrative"`
	Chunked   bool    `json:"chunked"`
}

// Simulator renders a page and asks the analysis chain to narrate how a given
// assistive-technology persona would experience it.
type Simulator struct {
	fetcher  PageFetcher
	narrator Narrator
	personas map[string]Persona
	logger   *logrus.Logger
}

func NewSimulator(fetcher PageFetcher, narrator Narrator, personas map[string]Persona, logger *logrus.Logger) *Simulator {
	if logger == nil {
		logger = logrus.New()
	}
	if personas == nil {
		personas = builtinPersonas()
	}
	return &Simulator{
		fetcher:  fetcher,
		narrator: narrator,
		personas: personas,
		logger:   logger,
	}
}

func (s *Simulator) Personas() map[string]Persona { return s.personas }

// Simulate narrates one persona's experience of the page at url.
func (s *Simulator) Simulate(ctx context.Context, personaKey, pageURL string) (*Experience, error) {
	persona, ok := s.personas[personaKey]
	if !ok {
		return nil, fmt.Errorf("unknown persona: %s (known: %s)",
			personaKey, strings.Join(PersonaKeys(s.personas), ", "))
	}

	snapshot, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.narrate(ctx, persona, snapshot)
}

// SimulateAll runs every requested persona against one fetched snapshot,
// narrating concurrently. The page is fetched once so the target sees a
// single load regardless of persona count.
func (s *Simulator) SimulateAll(ctx context.Context, personaKeys []string, pageURL string) ([]*Experience, error) {
	for _, key := range personaKeys {
		if _, ok := s.personas[key]; !ok {
			return nil, fmt.Errorf("unknown persona: %s", key)
		}
	}

	snapshot, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	experiences := make([]*Experience, len(personaKeys))
	for i, key := range personaKeys {
		i, persona := i, s.personas[key]
		g.Go(func() error {
			exp, err := s.narrate(ctx, persona, snapshot)
			if err != nil {
				return fmt.Errorf("persona %s: %w", persona.Key, err)
			}
			mu.Lock()
			experiences[i] = exp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return experiences, nil
}

func (s *Simulator) narrate(ctx context.Context, persona Persona, snapshot *models.DomSnapshot) (*Experience, error) {
	html := snapshot.RenderedHTML
	chunked := len(html) > simulationHTMLLimit

	var excerpts []string
	if chunked {
		excerpts = fetch.SplitHTML(html, simulationChunkSize, 0)
		s.logger.WithFields(logrus.Fields{
			"persona": persona.Key,
			"chunks":  len(excerpts),
		}).Info("HTML content chunked for simulation")
	} else {
		excerpts = []string{html}
	}

	payload := &models.AnalysisPayload{
		SnapshotExcerpts: excerpts,
		Instructions:     persona.Prompt + "\n\nOutput your walkthrough in structured Markdown.",
		Narrative:        true,
	}
	raw, analysisErr := s.narrator.Analyze(ctx, payload)
	if analysisErr != nil {
		return nil, analysisErr
	}

	return &Experience{
		Persona:   persona,
		URL:       snapshot.URL,
		PageTitle: snapshot.Title,
		Narrative: strings.TrimSpace(raw.Body),
		Chunked:   chunked,
	}, nil
}
