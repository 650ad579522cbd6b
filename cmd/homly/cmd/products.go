package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/homly/catalog"
	"github.com/jmcleod/homly/client"
)

var (
	productQuery client.ProductQuery
	groupByName  bool
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products, open stores first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			page, err := a.client.Products(cmd.Context(), productQuery)
			if err != nil {
				return errors.New(client.Message(err))
			}
			stores, err := a.client.Stores(cmd.Context())
			if err != nil {
				logger.Warn("failed to load stores", "error", client.Message(err))
			}
			idx := catalog.IndexStores(stores)

			now := time.Now()
			var entries []catalog.Entry
			if groupByName {
				entries = catalog.GroupByName(page.Products, idx, now)
			} else {
				entries = catalog.Entries(page.Products, idx, now)
			}
			printEntries(cmd.OutOrStdout(), catalog.SortByOpenAndGold(entries), idx)
			fmt.Fprintf(cmd.OutOrStdout(), "\nPage %d of %d, %d products\n", page.Page, page.Pages, page.Total)
			return nil
		})
	},
}

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List stores and whether they are open now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			stores, err := a.client.Stores(cmd.Context())
			if err != nil {
				return errors.New(client.Message(err))
			}
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tHOURS\tOPEN")
			for i := range stores {
				s := &stores[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, hours(s), yesNo(catalog.IsStoreOpen(s, now)))
			}
			return tw.Flush()
		})
	},
}

func hours(s *client.Store) string {
	if s.OpeningTime != "" && s.ClosingTime != "" {
		return s.OpeningTime + "-" + s.ClosingTime
	}
	if s.Timing != "" {
		return s.Timing
	}
	return "-"
}

func printEntries(w io.Writer, entries []catalog.Entry, idx catalog.StoreIndex) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tSTORE\tOPEN")
	for _, e := range entries {
		title := e.Product.Title
		if e.Product.IsGold {
			title += " *"
		}
		price := fmt.Sprintf("%.2f", e.Product.Price)
		store := idx.StoreName(e.Product.StoreID)
		if e.IsGroup {
			price = fmt.Sprintf("%.2f-%.2f", e.MinPrice, e.MaxPrice)
			store = fmt.Sprintf("%d stores", e.StoreCount)
		}
		if e.Product.Unit != "" {
			price += "/" + e.Product.Unit
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, title, price, store, yesNo(e.AnyStoreOpen))
	}
	tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	f := productsCmd.Flags()
	f.StringVar(&productQuery.Category, "category", "", "Only products in this category")
	f.StringVar(&productQuery.Search, "search", "", "Match title or description")
	f.StringVar(&productQuery.StoreID, "store", "", "Only products of this store id")
	f.BoolVar(&productQuery.Featured, "featured", false, "Only featured products")
	f.IntVar(&productQuery.Page, "page", 1, "Page number")
	f.IntVar(&productQuery.Limit, "limit", 20, "Products per page")
	f.BoolVar(&groupByName, "group", false, "Merge identical products sold by several stores")

	rootCmd.AddCommand(productsCmd, storesCmd)
}
