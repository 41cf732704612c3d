package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"paper-trawl/models"
)

// PortalResolver löst Portalnamen in persistierte Portal-Zeilen auf.
// Die Menge der Portale ist klein und wächst praktisch nie, deshalb hält
// der Resolver einen prozessweiten Cache über alle Suchläufe hinweg.
type PortalResolver struct {
	DB     *gorm.DB
	Logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*models.Portal
}

// NewPortalResolver erstellt einen neuen PortalResolver.
func NewPortalResolver(db *gorm.DB, logger *zap.Logger) *PortalResolver {
	return &PortalResolver{
		DB:     db,
		Logger: logger,
		cache:  make(map[string]*models.Portal),
	}
}

// Resolve liefert das Portal zur Beschreibung und legt es bei Bedarf an.
// Leere Beschreibungen fallen auf das Unknown-Portal zurück. Der Vergleich
// ignoriert Groß-/Kleinschreibung.
func (r *PortalResolver) Resolve(description string) (*models.Portal, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		description = models.UnknownPortalName
	}
	key := strings.ToLower(description)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[key]; ok {
		return p, nil
	}

	var portal models.Portal
	err := r.DB.Where("LOWER(description) = ?", key).First(&portal).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		portal = models.Portal{Description: description}
		if err := r.DB.Create(&portal).Error; err != nil {
			return nil, fmt.Errorf("portal %q anlegen: %w", description, err)
		}
		r.Logger.Info("Neues Portal angelegt", zap.String("portal", portal.Description))
	case err != nil:
		return nil, fmt.Errorf("portal %q laden: %w", description, err)
	}

	r.cache[key] = &portal
	return &portal, nil
}
