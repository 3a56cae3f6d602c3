package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/stores"
)

func ExampleSQLiteStore_SaveScenario() {
	ctx := context.Background()
	store, err := stores.Open(ctx, ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	_, err = store.SaveScenario(ctx, &config.Scenario{
		Name:   "plain",
		Output: "passengers_per_day",
		Inputs: map[string]interface{}{"passengers_per_year": 730.0, "days_per_year": 365.0},
	})
	if err != nil {
		log.Fatal(err)
	}

	records, err := store.ListScenarios(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range records {
		fmt.Println(r.Name, r.Output)
	}
	// Output: plain passengers_per_day
}
