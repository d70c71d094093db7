package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yourorg/tradesim/pkg/types"
)

func newCountriesCmd(opts *appOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "countries", Short: "Create or delete countries"}

	var c types.Country
	add := &cobra.Command{Use: "add <name>", Short: "Create a country", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			c.Name = args[0]
			if err := a.api.AddCountry(ctx, c); err != nil {
				return userError(err)
			}
			return printCountryList(ctx, cmd, a)
		})
	}}
	add.Flags().Float64Var(&c.Inflation, "inflation", 0, "annual inflation rate")
	add.Flags().Float64Var(&c.GDPBillions, "gdp", 0, "GDP in billions")
	add.Flags().Float64Var(&c.PopulationMillions, "population", 0, "population in millions")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{Use: "delete <name>", Short: "Delete a country", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.api.DeleteCountry(ctx, args[0]); err != nil {
				return userError(err)
			}
			return printCountryList(ctx, cmd, a)
		})
	}})
	return cmd
}

func printCountryList(ctx context.Context, cmd *cobra.Command, a *app) error {
	countries, err := a.api.Countries(ctx)
	if err != nil {
		return userError(err)
	}
	printCountries(cmd.OutOrStdout(), countries)
	return nil
}

func newCommoditiesCmd(opts *appOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "commodities", Short: "Create commodities"}

	var unitCost float64
	add := &cobra.Command{Use: "add <name>", Short: "Create a commodity", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.api.AddCommodity(ctx, args[0], unitCost); err != nil {
				return userError(err)
			}
			items, err := a.api.Commodities(ctx)
			if err != nil {
				return userError(err)
			}
			printCommodities(cmd.OutOrStdout(), items)
			return nil
		})
	}}
	add.Flags().Float64Var(&unitCost, "unit-cost", 0, "cost per unit")
	cmd.AddCommand(add)
	return cmd
}

func newRoutesCmd(opts *appOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "routes", Short: "Create or delete lanes"}

	var d types.RouteDetails
	var mode string
	add := &cobra.Command{Use: "add <origin> <destination>", Short: "Create or replace a lane", Args: cobra.ExactArgs(2), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			d.Mode = types.RouteMode(mode)
			if err := a.session.AddRoute(ctx, types.Corridor{Origin: args[0], Destination: args[1]}, d); err != nil {
				return userError(err)
			}
			printRoutes(cmd.OutOrStdout(), a.routes.Snapshot().Data)
			return nil
		})
	}}
	add.Flags().Float64Var(&d.Cost, "cost", 0, "lane cost")
	add.Flags().Float64Var(&d.Time, "time", 0, "lane time in hours")
	add.Flags().Float64Var(&d.Risk, "risk", 0, "lane risk")
	add.Flags().StringVar(&mode, "mode", "", "land, sea or air")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{Use: "delete <origin> <destination>", Short: "Delete a lane", Args: cobra.ExactArgs(2), RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(ctx context.Context, a *app) error {
			if err := a.session.DeleteRoute(ctx, types.Corridor{Origin: args[0], Destination: args[1]}); err != nil {
				return userError(err)
			}
			printRoutes(cmd.OutOrStdout(), a.routes.Snapshot().Data)
			return nil
		})
	}})
	return cmd
}
