package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/homly/cart"
	"github.com/jmcleod/homly/client"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show the cart of the signed-in user, or the guest cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			printCart(cmd.OutOrStdout(), a.cart)
			return nil
		})
	},
}

var cartAddCmd = &cobra.Command{
	Use:   "add PRODUCT_ID",
	Short: "Add one unit of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			p, err := a.client.Product(cmd.Context(), args[0])
			if err != nil {
				return errors.New(client.Message(err))
			}
			if err := a.cart.Add(*p); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), a.cart)
			return nil
		})
	},
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove PRODUCT_ID",
	Short: "Remove a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.cart.Remove(args[0]); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), a.cart)
			return nil
		})
	},
}

var cartQtyCmd = &cobra.Command{
	Use:   "qty PRODUCT_ID QUANTITY",
	Short: "Set the quantity of a product; zero removes it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.cart.UpdateQuantity(args[0], n); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), a.cart)
			return nil
		})
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.cart.Clear()
		})
	},
}

var cartRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Update prices and availability from the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.cart.Refresh(cmd.Context(), a.client); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), a.cart)
			return nil
		})
	},
}

func printCart(w io.Writer, c *cart.Cart) {
	items := c.Items()
	if len(items) == 0 {
		fmt.Fprintf(w, "Cart of %s is empty\n", c.UserID())
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tQTY\tPRICE\tAVAILABLE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%s\n", it.ID, it.Title, it.Quantity, it.Price*float64(it.Quantity), yesNo(it.Available()))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d items, total %.2f\n", c.Count(), c.Total())
}

func init() {
	cartCmd.AddCommand(cartAddCmd, cartRemoveCmd, cartQtyCmd, cartClearCmd, cartRefreshCmd)
	rootCmd.AddCommand(cartCmd)
}
