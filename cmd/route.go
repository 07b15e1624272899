package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/route"
	"github.com/sells-group/arbitrage-cli/pkg/mapbox"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Plan an optimized pickup trip over completed items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ids, _ := cmd.Flags().GetStringSlice("item")
		originFlag, _ := cmd.Flags().GetString("origin")

		req := route.Request{ItemIDs: ids}
		if originFlag != "" {
			origin, err := parseOrigin(originFlag)
			if err != nil {
				return err
			}
			req.Origin = origin
		}

		env, err := initEnv(ctx, config.ModeRoute)
		if err != nil {
			return err
		}
		defer env.Close()

		plan, err := env.Planner().Plan(ctx, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	},
}

// parseOrigin parses "lat,lng".
func parseOrigin(s string) (*mapbox.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, eris.Errorf("origin must be lat,lng: %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, eris.Errorf("invalid origin latitude %q", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, eris.Errorf("invalid origin longitude %q", parts[1])
	}
	return &mapbox.Coordinate{Latitude: lat, Longitude: lng}, nil
}

func init() {
	routeCmd.Flags().StringSlice("item", nil, "item id to visit (repeatable, default all completed items)")
	routeCmd.Flags().String("origin", "", "trip start as lat,lng")
	rootCmd.AddCommand(routeCmd)
}
