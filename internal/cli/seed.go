package cli

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/service"
)

type seedItem struct {
	name      string
	qty       int64
	threshold int64
}

var supermarketStock = []seedItem{
	{"Beer", 100, 10},
	{"Wine", 50, 8},
	{"Vodka", 40, 5},
	{"Gin", 40, 5},
	{"Rum", 30, 5},
	{"Whiskey", 30, 5},
	{"Tequila", 25, 5},
	{"Juice", 60, 10},
	{"Soda", 80, 15},
	{"Water", 120, 20},
	{"Energy Drink", 40, 8},
	{"Tonic", 50, 10},
}

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo Supermarket venue and its stock",
		Long:  "Create the Supermarket venue and its inventory. Running it again only adds what is missing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewService(db)
			defer svc.Close()

			venueID, added, err := seedSupermarket(cmd.Context(), db, svc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "venue %s: %d items added\n", venueID, added)
			return nil
		},
	}
}

// seedSupermarket is idempotent by venue name and item name.
func seedSupermarket(ctx context.Context, db *database.DB, svc *service.Service) (string, int, error) {
	venue, err := db.FindVenueByName(ctx, "Supermarket")
	if errors.Is(err, common.ErrNotFound) {
		capacity := int64(200)
		venue, err = svc.CreateVenue(ctx, models.CreateVenueRequest{Name: "Supermarket", City: "Zurich", Pin: "1234", Capacity: &capacity})
		if err == nil {
			log.WithField("venue_id", venue.ID).Info("seeded venue Supermarket")
		}
	}
	if err != nil {
		return "", 0, fmt.Errorf("seed venue: %w", err)
	}

	existing, err := svc.ListInventory(ctx, venue.ID)
	if err != nil {
		return "", 0, fmt.Errorf("seed inventory: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, item := range existing {
		have[item.Name] = true
	}

	added := 0
	for _, si := range supermarketStock {
		if have[si.name] {
			continue
		}
		threshold := si.threshold
		if _, err := svc.CreateInventoryItem(ctx, venue.ID, models.CreateInventoryItemRequest{
			Name:         si.name,
			Quantity:     si.qty,
			LowThreshold: &threshold,
		}); err != nil {
			return "", 0, fmt.Errorf("seed %s: %w", si.name, err)
		}
		added++
	}
	log.WithFields(log.Fields{"venue_id": venue.ID, "added": added}).Info("supermarket seed check complete")
	return venue.ID, added, nil
}
