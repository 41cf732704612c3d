package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"paper-trawl/models"
	"paper-trawl/providers"
)

// retryBaseDelay ist die Basis-Wartezeit zwischen zwei Versuchen einer
// Quelle; sie verdoppelt sich je Fehlversuch. Tests setzen sie herunter.
var retryBaseDelay = time.Second

// maxAttempts ist die Zahl der Versuche je Quelle und Lauf.
const maxAttempts = 3

// SourceOutcome bilanziert, was eine Quelle zu einem Lauf beigetragen hat.
// Error hält den letzten Fehler, wenn die Quelle aufgegeben wurde.
type SourceOutcome struct {
	Source   string `json:"source"`
	Attempts int    `json:"attempts"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

// Orchestrator ruft alle registrierten Provider parallel auf und hängt
// deren Ergebnisse zusammen. Jede Quelle bekommt bis zu drei Versuche,
// wobei eine leere Trefferliste als Fehlversuch zählt. Gibt eine Quelle
// endgültig auf, trägt sie nichts bei; der Lauf geht trotzdem weiter.
type Orchestrator struct {
	Logger    *zap.Logger
	Providers []providers.Provider
}

// NewOrchestrator erstellt einen Orchestrator über den gegebenen Providern.
func NewOrchestrator(logger *zap.Logger, provs []providers.Provider) *Orchestrator {
	return &Orchestrator{Logger: logger, Providers: provs}
}

// FetchAll führt die Anfrage bei allen Providern parallel aus. Die
// Reihenfolge der Ergebnisse zwischen den Quellen ist nicht definiert.
func (o *Orchestrator) FetchAll(ctx context.Context, req providers.Request) ([]*models.Publication, []SourceOutcome) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		pubs     []*models.Publication
		outcomes []SourceOutcome
	)

	for _, provider := range o.Providers {
		wg.Add(1)
		go func(p providers.Provider) {
			defer wg.Done()
			result, outcome := o.fetchOne(ctx, p, req)
			mu.Lock()
			pubs = append(pubs, result...)
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(provider)
	}
	wg.Wait()

	o.Logger.Info("Alle Quellen abgeschlossen",
		zap.Int("sources", len(o.Providers)), zap.Int("publications", len(pubs)))
	return pubs, outcomes
}

// fetchOne fragt eine einzelne Quelle mit Wiederholungen ab.
func (o *Orchestrator) fetchOne(ctx context.Context, p providers.Provider, req providers.Request) ([]*models.Publication, SourceOutcome) {
	log := o.Logger.With(zap.String("source", p.Name()))
	outcome := SourceOutcome{Source: p.Name()}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt

		pubs, err := searchAttempt(ctx, p, req)
		if err == nil && len(pubs) > 0 {
			log.Info("Quelle hat geliefert", zap.Int("attempt", attempt), zap.Int("count", len(pubs)))
			outcome.Count = len(pubs)
			outcome.Error = ""
			return pubs, outcome
		}

		if err != nil {
			log.Warn("Versuch fehlgeschlagen", zap.Int("attempt", attempt), zap.Error(err))
			outcome.Error = err.Error()
		} else {
			log.Warn("Versuch ohne Treffer", zap.Int("attempt", attempt))
			outcome.Error = "keine Treffer"
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			log.Warn("Abbruch über Context, keine weiteren Versuche", zap.Error(ctx.Err()))
			outcome.Error = ctx.Err().Error()
			return nil, outcome
		case <-time.After(retryBaseDelay << (attempt - 1)):
		}
	}

	log.Error("Quelle nach allen Versuchen aufgegeben", zap.String("last_error", outcome.Error))
	return nil, outcome
}

// searchAttempt ruft die Quelle auf und fängt dabei auch Panics als Fehler,
// damit eine außer Kontrolle geratene Quelle nur ihren eigenen Versuch kostet.
func searchAttempt(ctx context.Context, p providers.Provider, req providers.Request) (pubs []*models.Publication, err error) {
	defer func() {
		if r := recover(); r != nil {
			pubs, err = nil, fmt.Errorf("panic in quelle %s: %v", p.Name(), r)
		}
	}()
	return p.Search(ctx, req)
}
