package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/homly/cart"
	"github.com/jmcleod/homly/client"
)

var checkoutForm cart.CheckoutForm

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Place a cash on delivery order for the cart",
	Long: `Place a cash on delivery order for the cart. Name, mobile and address
default to the ones saved on the account; --delivery-time is required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			ident := a.session.Identity()
			form := cart.PrefillForm(ident)
			override(&form.Name, checkoutForm.Name)
			override(&form.Mobile, checkoutForm.Mobile)
			override(&form.Street, checkoutForm.Street)
			override(&form.City, checkoutForm.City)
			override(&form.Zip, checkoutForm.Zip)
			form.DeliveryTime = checkoutForm.DeliveryTime

			charge := cart.DeliveryCharge(ident, a.cart.Items())
			o, err := a.cart.Checkout(cmd.Context(), a.client, a.session, form, time.Now())
			if err != nil {
				return errors.New(client.Message(err))
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Order %s placed\n", o.ID)
			fmt.Fprintf(w, "Delivery: %s\n", deliveryLabel(charge))
			fmt.Fprintf(w, "Total:    %.2f (%s)\n", o.Total, o.PaymentMethod.Type)
			if o.ScheduledDeliveryTime != nil {
				fmt.Fprintf(w, "Arrives:  %s\n", o.ScheduledDeliveryTime.Local().Format("Jan 2 15:04"))
			}
			return nil
		})
	},
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List the orders visible to the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			orders, err := a.client.Orders(cmd.Context())
			if err != nil {
				return errors.New(client.Message(err))
			}
			printOrders(cmd.OutOrStdout(), orders)
			return nil
		})
	},
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func deliveryLabel(charge float64) string {
	if charge == 0 {
		return "free"
	}
	return fmt.Sprintf("%.2f", charge)
}

func printOrders(w io.Writer, orders []client.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLACED\tSTATUS\tITEMS\tTOTAL")
	for _, o := range orders {
		units := 0
		for _, it := range o.Items {
			units += it.Quantity
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\n", o.ID, o.CreatedAt.Local().Format("2006-01-02 15:04"), o.Status, units, o.Total)
	}
	tw.Flush()
}

func init() {
	f := checkoutCmd.Flags()
	f.StringVar(&checkoutForm.Name, "name", "", "Recipient name")
	f.StringVar(&checkoutForm.Mobile, "mobile", "", "10-digit mobile number")
	f.StringVar(&checkoutForm.Street, "address", "", "Street address")
	f.StringVar(&checkoutForm.City, "city", "", "City")
	f.StringVar(&checkoutForm.Zip, "zip", "", "6-digit ZIP code")
	f.StringVar(&checkoutForm.DeliveryTime, "delivery-time", "", "Preferred delivery time today, HH:MM")

	rootCmd.AddCommand(checkoutCmd, ordersCmd)
}
